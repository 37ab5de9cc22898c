package metadata

import "fmt"

// FetchError reports a failed metadata request: transport failure, non-2xx
// status or an oversized body.
type FetchError struct {
	URI    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch metadata %s: status %d", e.URI, e.Status)
	}
	return fmt.Sprintf("fetch metadata %s: %v", e.URI, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a metadata body that is not a JSON object.
type ParseError struct {
	URI string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse metadata %s: %v", e.URI, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
