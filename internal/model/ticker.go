package model

import (
	"regexp"

	"github.com/google/uuid"
)

// MarketKind identifies which market a ticker belongs to.
type MarketKind string

const (
	// MarketFund is the only kind supported today; the enum exists so stock
	// support can be added without a schema change.
	MarketFund MarketKind = "fund"
)

// symbolPattern matches fund codes: 5 or 6 digit numeric strings.
var symbolPattern = regexp.MustCompile(`^\d{5,6}$`)

// ValidSymbol reports whether s is an acceptable fund code.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// Ticker is a single tracked entry in the watchlist. Name stays empty until
// the first successful fetch back-fills it.
type Ticker struct {
	ID     string     `json:"id"`
	Symbol string     `json:"symbol"`
	Name   string     `json:"name"`
	Kind   MarketKind `json:"kind"`
}

// NewTicker creates a Ticker for symbol. The caller must validate the symbol first.
func NewTicker(symbol string) Ticker {
	return Ticker{
		ID:     uuid.NewString(),
		Symbol: symbol,
		Kind:   MarketFund,
	}
}
