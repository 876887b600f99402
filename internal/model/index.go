package model

// MarketIndex is a point-in-time snapshot of a market index quote. Snapshots
// are ephemeral: replaced wholesale each poll and never persisted.
type MarketIndex struct {
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	LastUpdated   string  `json:"last_updated"`
}
