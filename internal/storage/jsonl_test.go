package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ammstate/internal/model"
)

func TestJsonlStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl")
	s := NewJsonlStorage(path)

	records := []model.LogRecord{
		{ChainID: 1, BlockNumber: 10, Address: "0x0000000000000000000000000000000000000001", Topics: []string{"0x01"}, Data: "0x"},
		{ChainID: 1, BlockNumber: 11, Address: "0x0000000000000000000000000000000000000002", Topics: []string{"0x02"}, Data: "0x"},
	}
	if err := s.PutLogBatch(records[:1]); err != nil {
		t.Fatalf("put first batch: %v", err)
	}
	if err := s.PutLogBatch(records[1:]); err != nil {
		t.Fatalf("put second batch: %v", err)
	}
	if err := s.PutLogBatch(nil); err != nil {
		t.Fatalf("put empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.LogRecord
	err = ReadLogRecords(file, func(r model.LogRecord) error {
		got = append(got, r)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].BlockNumber != 10 || got[1].BlockNumber != 11 {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestReadLogRecordsSkipsBadLines(t *testing.T) {
	input := "\n{\"block_number\": 5}\nnot json\n\n{\"block_number\": 6}\n"
	var blocks []uint64
	var bad []int
	err := ReadLogRecords(strings.NewReader(input), func(r model.LogRecord) error {
		blocks = append(blocks, r.BlockNumber)
		return nil
	}, func(line int, _ error) { bad = append(bad, line) })
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(blocks) != 2 || blocks[0] != 5 || blocks[1] != 6 {
		t.Fatalf("unexpected blocks: %v", blocks)
	}
	if len(bad) != 1 || bad[0] != 3 {
		t.Fatalf("unexpected bad lines: %v", bad)
	}
}

func TestJsonlSnapshotsAndErrors(t *testing.T) {
	dir := t.TempDir()
	snaps := NewJsonlSnapshots(filepath.Join(dir, "snapshots.jsonl"))
	if err := snaps.PutSnapshots(context.Background(), []model.PoolSnapshot{{ID: "v2-a-b-c", Kind: "v2"}}); err != nil {
		t.Fatalf("put snapshots: %v", err)
	}
	errs := NewJsonlErrors(filepath.Join(dir, "errors.jsonl"))
	if err := errs.PutDecodeErrors([]model.DecodeError{{BlockNumber: 3, Error: "boom"}}); err != nil {
		t.Fatalf("put errors: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "snapshots.jsonl"))
	if err != nil {
		t.Fatalf("read snapshots: %v", err)
	}
	if !strings.Contains(string(raw), `"id":"v2-a-b-c"`) {
		t.Fatalf("snapshot line missing id: %s", raw)
	}
	raw, err = os.ReadFile(filepath.Join(dir, "errors.jsonl"))
	if err != nil {
		t.Fatalf("read errors: %v", err)
	}
	if !strings.Contains(string(raw), `"error":"boom"`) {
		t.Fatalf("error line missing message: %s", raw)
	}
}
