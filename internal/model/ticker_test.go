package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSymbol(t *testing.T) {
	valid := []string{"00001", "000001", "12345", "999999"}
	for _, s := range valid {
		assert.True(t, ValidSymbol(s), s)
	}

	invalid := []string{"", "1234", "1234567", "00000a", "a00001", "000 01", "000001\n", "-00001"}
	for _, s := range invalid {
		assert.False(t, ValidSymbol(s), s)
	}
}

func TestNewTicker(t *testing.T) {
	tk := NewTicker("000001")
	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, "000001", tk.Symbol)
	assert.Empty(t, tk.Name, "name stays empty until a fetch resolves it")
	assert.Equal(t, MarketFund, tk.Kind)

	tk2 := NewTicker("000001")
	assert.NotEqual(t, tk.ID, tk2.ID)
}

func TestParseSortOrder(t *testing.T) {
	assert.Equal(t, SortChangeDesc, ParseSortOrder("change-desc"))
	assert.Equal(t, SortChangeAsc, ParseSortOrder("change-asc"))
	assert.Equal(t, SortDefault, ParseSortOrder("default"))
	assert.Equal(t, SortDefault, ParseSortOrder("garbage"))
	assert.Equal(t, SortDefault, ParseSortOrder(""))
}
