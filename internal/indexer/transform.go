package indexer

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"

	"clipscope/internal/model"
)

func buildDisplayRecord(log types.Log, event model.CreationEvent, meta model.ResolvedMetadata) model.DisplayRecord {
	return model.DisplayRecord{
		Event:    event,
		Metadata: meta,
		Position: model.LogPosition{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash.Hex(),
			LogIndex:    uint64(log.Index),
		},
	}
}

// sortLogs orders logs by block number, then log index.
func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

// DedupeByCoin keeps only the latest record per coin address, at that
// record's position.
func DedupeByCoin(records []model.DisplayRecord) []model.DisplayRecord {
	last := make(map[string]int, len(records))
	for i, record := range records {
		last[strings.ToLower(record.Event.CoinAddress)] = i
	}

	out := make([]model.DisplayRecord, 0, len(last))
	for i, record := range records {
		if last[strings.ToLower(record.Event.CoinAddress)] == i {
			out = append(out, record)
		}
	}
	return out
}
