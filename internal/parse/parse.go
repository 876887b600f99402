// Package parse extracts valuation fields from the two upstream formats (a
// script document with loosely-quoted variable assignments, and a JSONP
// envelope) and reconciles them into one canonical record.
package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fundwatch/internal/model"
)

// ExtractVar scrapes the value assigned to name out of script-like text.
// Quoted assignments are tried first, then bare numeric ones. Upstream gives
// no schema guarantee, so a miss returns "" rather than an error.
func ExtractVar(text, name string) string {
	quoted := regexp.MustCompile(`(?i)(?:var|let|const)?\s*` + regexp.QuoteMeta(name) + `\s*=\s*["']([^"']*)["']`)
	if m := quoted.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	numeric := regexp.MustCompile(`(?i)(?:var|let|const)?\s*` + regexp.QuoteMeta(name) + `\s*=\s*(-?[0-9.]+)`)
	if m := numeric.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// UnwrapJSONP recovers the JSON payload from a body shaped as
// callbackName(<json>). Returns nil when the parentheses are missing or
// malformed, or when the payload is not valid JSON.
func UnwrapJSONP(body string) json.RawMessage {
	open := strings.Index(body, "(")
	end := strings.LastIndex(body, ")")
	if open < 0 || end <= open {
		return nil
	}
	payload := strings.TrimSpace(body[open+1 : end])
	if !json.Valid([]byte(payload)) {
		return nil
	}
	return json.RawMessage(payload)
}

// SourceRecord is the partial, untyped intermediate extracted from one
// upstream source. Empty string means the field was absent.
type SourceRecord struct {
	Name          string
	NetValue      string // previous-day settled price
	LiveValue     string // intraday estimated price
	ChangePercent string
	UpdatedAt     string
	ValuationDate string
}

var (
	shortTimePattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	longTimePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

// NormalizeTimestamp shortens upstream time strings for card display: a bare
// HH:MM gets today's MM-DD prefixed, a full YYYY-MM-DD HH:MM:SS is trimmed to
// MM-DD HH:MM:SS. Anything else passes through unchanged. This is display
// formatting policy only.
func NormalizeTimestamp(s string, now time.Time) string {
	switch {
	case shortTimePattern.MatchString(s):
		return now.Format("01-02") + " " + s
	case longTimePattern.MatchString(s):
		return s[5:]
	default:
		return s
	}
}

// Reconcile merges the profile-sourced (primary) and live-valuation-sourced
// (secondary) records into one ValuationData. The live source wins whenever a
// field is present in both, since it is the fresher of the two; the profile
// source fills the gaps. Both absent means the fetch failed and nil is
// returned, never a zero-filled record.
func Reconcile(primary, secondary *SourceRecord, symbol, sourceURL string, now time.Time) *model.ValuationData {
	if primary == nil && secondary == nil {
		return nil
	}
	if primary == nil {
		primary = &SourceRecord{}
	}
	if secondary == nil {
		secondary = &SourceRecord{}
	}

	name := pick(secondary.Name, primary.Name)
	if name == "" {
		name = "基金" + symbol
	}

	previous := parseFloat(pick(secondary.NetValue, primary.NetValue))
	current := parseFloat(pick(secondary.LiveValue, primary.LiveValue))
	if current == 0 {
		current = previous
	}

	updated := pick(secondary.UpdatedAt, primary.UpdatedAt)
	if updated == "" {
		updated = "--"
	} else {
		updated = NormalizeTimestamp(updated, now)
	}
	date := pick(secondary.ValuationDate, primary.ValuationDate)
	if date == "" {
		date = "--"
	}

	return &model.ValuationData{
		Symbol:        symbol,
		Name:          name,
		CurrentPrice:  current,
		PreviousPrice: previous,
		ChangePercent: parseFloat(pick(secondary.ChangePercent, primary.ChangePercent)),
		LastUpdated:   updated,
		ValuationDate: date,
		SourceURL:     sourceURL,
	}
}

// pick returns the first non-empty string.
func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// parseFloat converts upstream numeric strings, treating absence, the literal
// placeholder "-", and garbage all as zero.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
