package model

// ValuationData is the canonical per-symbol record produced by reconciling the
// two upstream sources. Entries are overwritten wholesale on each successful
// fetch; partial merging happens only at parse time between the raw sources.
type ValuationData struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	CurrentPrice  float64 `json:"current_price"`
	PreviousPrice float64 `json:"previous_price"`
	ChangePercent float64 `json:"change_percent"`
	LastUpdated   string  `json:"last_updated"`   // display string, e.g. "06-01 14:32"
	ValuationDate string  `json:"valuation_date"` // display string, e.g. "2024-06-01"
	SourceURL     string  `json:"source_url"`
}

// SortOrder controls how the UI orders watchlist cards. Persisted as a string.
type SortOrder string

const (
	SortDefault    SortOrder = "default"
	SortChangeDesc SortOrder = "change-desc"
	SortChangeAsc  SortOrder = "change-asc"
)

// ParseSortOrder maps a stored string to a SortOrder, falling back to SortDefault.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(s) {
	case SortChangeDesc, SortChangeAsc:
		return SortOrder(s)
	default:
		return SortDefault
	}
}
