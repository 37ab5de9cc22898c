package model

// CreationEvent is a decoded coin creation log.
type CreationEvent struct {
	CoinAddress    string `json:"coin_address"`
	CreatorAddress string `json:"creator_address"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	MetadataURI    string `json:"metadata_uri"`
}
