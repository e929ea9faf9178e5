package pool

import "github.com/ethereum/go-ethereum/common"

// Event signature hashes recognized by the pools.
var (
	TopicV2Sync      = mustEvent(V2PairEvents, "Sync").ID
	TopicV2Swap      = mustEvent(V2PairEvents, "Swap").ID
	TopicV2WideSync  = mustEvent(V2WideSyncEvent, "Sync").ID
	TopicV3Swap      = mustEvent(V3PoolEvents, "Swap").ID
	TopicV3Mint      = mustEvent(V3PoolEvents, "Mint").ID
	TopicV3Burn      = mustEvent(V3PoolEvents, "Burn").ID
	TopicPancakeSwap = mustEvent(PancakeV3Events, "Swap").ID
	TopicAlgebraSwap = mustEvent(AlgebraEvents, "Swap").ID
	TopicAlgebraBurn = mustEvent(AlgebraEvents, "Burn").ID
)

var eventNames = map[common.Hash]string{
	TopicV2Sync:      "Sync",
	TopicV2Swap:      "Swap",
	TopicV2WideSync:  "Sync",
	TopicV3Swap:      "Swap",
	TopicV3Mint:      "Mint",
	TopicV3Burn:      "Burn",
	TopicPancakeSwap: "Swap",
	TopicAlgebraSwap: "Swap",
	TopicAlgebraBurn: "Burn",
}

// EventName returns the event a topic0 identifies, or "" for an unknown topic.
func EventName(topic common.Hash) string {
	return eventNames[topic]
}

// Topics lists every event a pool of kind reacts to.
func Topics(kind Kind) []common.Hash {
	switch kind {
	case KindV2:
		return []common.Hash{TopicV2Swap, TopicV2Sync, TopicV2WideSync}
	case KindV3:
		return []common.Hash{TopicV3Swap, TopicV3Mint, TopicV3Burn, TopicPancakeSwap, TopicAlgebraSwap, TopicAlgebraBurn}
	default:
		return nil
	}
}

// ProfitableTopics lists the swap events of kind, the subset worth re-quoting paths on.
func ProfitableTopics(kind Kind) []common.Hash {
	switch kind {
	case KindV2:
		return []common.Hash{TopicV2Swap}
	case KindV3:
		return []common.Hash{TopicV3Swap, TopicPancakeSwap, TopicAlgebraSwap}
	default:
		return nil
	}
}
