package model

// ResolvedMetadata is the off-chain JSON document a coin's metadata URI points at.
type ResolvedMetadata struct {
	ImageURI     string                 `json:"image"`
	AnimationURI string                 `json:"animation_url"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}
