package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"ammstate/internal/model"
	"ammstate/internal/pool"
)

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeErrorFromLog describes a rejected log. p is the pool it was routed to, or nil.
func decodeErrorFromLog(chainID uint64, log types.Log, p pool.Pool, err error) model.DecodeError {
	de := model.DecodeError{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Reason:      model.ReasonOf(err),
		Error:       err.Error(),
	}
	if p != nil {
		de.PoolKind = string(p.Kind())
		de.PoolSubType = string(p.SubType())
	}
	if len(log.Topics) > 0 {
		de.Topic0 = log.Topics[0].Hex()
		de.Event = pool.EventName(log.Topics[0])
	}
	return de
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	de := model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Reason:      model.ReasonOf(err),
		Error:       err.Error(),
	}
	if len(record.Topics) > 0 {
		de.Topic0 = record.Topics[0]
		de.Event = pool.EventName(common.HexToHash(record.Topics[0]))
	}
	return de
}
