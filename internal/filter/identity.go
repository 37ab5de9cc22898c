package filter

import (
	"strings"

	"clipscope/internal/model"
)

// MatchesIdentity reports whether event was created by identity. An empty
// identity matches every event.
func MatchesIdentity(event model.CreationEvent, identity string) bool {
	if identity == "" {
		return true
	}
	return strings.EqualFold(event.CreatorAddress, identity)
}
