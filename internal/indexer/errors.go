package indexer

import "fmt"

// ChainQueryError is a failed chain-height or log query. It aborts the scan.
type ChainQueryError struct {
	Op    string
	Range *BlockRange
	Err   error
}

func (e *ChainQueryError) Error() string {
	if e.Range != nil {
		return fmt.Sprintf("chain query %s [%d, %d]: %v", e.Op, e.Range.From, e.Range.To, e.Err)
	}
	return fmt.Sprintf("chain query %s: %v", e.Op, e.Err)
}

func (e *ChainQueryError) Unwrap() error { return e.Err }
