package filter

import (
	"strings"

	"clipscope/internal/model"
)

// VideoExtensions lists the animation suffixes accepted as playable video.
var VideoExtensions = []string{".mp4", ".webm", ".mov", ".ogg"}

// IsVideoAsset reports whether metadata describes a playable video: an
// animation URI ending in a known video extension (case-sensitive) and a
// non-empty image URI. Nil metadata is never a video asset.
func IsVideoAsset(metadata *model.ResolvedMetadata) bool {
	if metadata == nil || metadata.ImageURI == "" {
		return false
	}
	for _, ext := range VideoExtensions {
		if strings.HasSuffix(metadata.AnimationURI, ext) {
			return true
		}
	}
	return false
}
