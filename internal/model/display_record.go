package model

// LogPosition locates the log a record was decoded from.
type LogPosition struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
}

// DisplayRecord is one catalog entry: a creation event with playable video metadata.
type DisplayRecord struct {
	Event    CreationEvent    `json:"event"`
	Metadata ResolvedMetadata `json:"metadata"`
	Position LogPosition      `json:"position"`
}
