package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseTopic0(t *testing.T) {
	sync := "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"
	topics, err := ParseTopic0([]string{" " + sync + " ", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(topics) != 1 || topics[0] != common.HexToHash(sync) {
		t.Fatalf("unexpected topics: %v", topics)
	}

	if _, err := ParseTopic0([]string{"0x1234"}); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := ParseTopic0([]string{"nothex"}); err == nil {
		t.Fatalf("expected decode error")
	}
}
