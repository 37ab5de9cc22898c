package storage

import (
	"context"
	"strings"

	"clipscope/internal/model"
)

// GlobalFeed names the unfiltered catalog.
const GlobalFeed = "global"

// Storage receives the result of a scan. Each call replaces the feed's
// previous catalog.
type Storage interface {
	PutCatalog(ctx context.Context, feed string, records []model.DisplayRecord) error
}

// FeedName returns the feed a scan with the given identity filter publishes to.
func FeedName(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return GlobalFeed
	}
	return strings.ToLower(identity)
}
