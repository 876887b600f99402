// Package client composes the proxy fetcher and the response parsers into the
// two public fetch operations: one fund's valuation, and the market index
// snapshots.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fundwatch/internal/model"
	"fundwatch/internal/parse"
	"fundwatch/internal/proxy"
)

// Variable names scraped from the fund profile script. Best-effort: the
// document is not machine-readable and upstream may drop any of them.
const (
	varName         = "fS_name"
	varNetValue     = "fund_netvalue"
	varLiveValue    = "fund_gsz"
	varChangePct    = "fund_gszzl"
	varUpdatedAt    = "fund_gztime"
	varNetValueDate = "fund_jzrq"
)

// Client fetches fund valuations and index quotes through the proxy fetcher.
type Client struct {
	fetcher *proxy.Fetcher
	log     zerolog.Logger

	// Base URLs are fields so tests can point them at a local server.
	ProfileBase string // script document with variable assignments
	LiveBase    string // JSONP live-valuation endpoint
	QuoteBase   string // JSON quote endpoint with abbreviated field keys
}

// New creates a Client against the production endpoints.
func New(fetcher *proxy.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		fetcher:     fetcher,
		log:         log.With().Str("component", "client").Logger(),
		ProfileBase: "https://fund.eastmoney.com",
		LiveBase:    "https://fundgz.1234567.com.cn",
		QuoteBase:   "https://push2.eastmoney.com",
	}
}

// liveEnvelope is the JSON payload inside the jsonpgz(...) envelope. All
// fields arrive as strings.
type liveEnvelope struct {
	Fundcode string `json:"fundcode"`
	Name     string `json:"name"`
	Jzrq     string `json:"jzrq"`   // net value date
	Dwjz     string `json:"dwjz"`   // previous net value
	Gsz      string `json:"gsz"`    // live estimate
	Gszzl    string `json:"gszzl"`  // estimate change percent
	Gztime   string `json:"gztime"` // estimate time
}

// FetchOne fetches and reconciles one fund's valuation. Returns nil when the
// symbol is invalid or both sources failed; callers treat nil as "no data
// this cycle".
func (c *Client) FetchOne(ctx context.Context, symbol string) *model.ValuationData {
	if !model.ValidSymbol(symbol) {
		c.log.Warn().Str("symbol", symbol).Msg("refusing fetch for invalid symbol")
		return nil
	}

	ms := time.Now().UnixMilli()
	profileURL := fmt.Sprintf("%s/pingzhongdata/%s.js?v=%d", c.ProfileBase, symbol, ms)
	liveURL := fmt.Sprintf("%s/js/%s.js?rt=%d", c.LiveBase, symbol, ms)

	var primary, secondary *parse.SourceRecord

	// The two sources race independently; failure of one never aborts the
	// other, and reconciliation does not depend on arrival order.
	var g errgroup.Group
	g.Go(func() error {
		body, err := c.fetcher.Fetch(ctx, profileURL, func(b string) bool {
			return strings.Contains(b, varName)
		})
		if err != nil {
			c.log.Debug().Str("symbol", symbol).Err(err).Msg("profile source unavailable")
			return nil
		}
		primary = profileRecord(body)
		return nil
	})
	g.Go(func() error {
		body, err := c.fetcher.Fetch(ctx, liveURL, func(b string) bool {
			return strings.Contains(b, "jsonpgz(")
		})
		if err != nil {
			c.log.Debug().Str("symbol", symbol).Err(err).Msg("live source unavailable")
			return nil
		}
		secondary = liveRecord(body)
		return nil
	})
	g.Wait()

	sourceURL := fmt.Sprintf("%s/%s.html", c.ProfileBase, symbol)
	v := parse.Reconcile(primary, secondary, symbol, sourceURL, time.Now())
	if v == nil {
		c.log.Info().Str("symbol", symbol).Msg("no data this cycle")
	}
	return v
}

// profileRecord scrapes the six valuation variables out of the profile script.
func profileRecord(body string) *parse.SourceRecord {
	return &parse.SourceRecord{
		Name:          parse.ExtractVar(body, varName),
		NetValue:      parse.ExtractVar(body, varNetValue),
		LiveValue:     parse.ExtractVar(body, varLiveValue),
		ChangePercent: parse.ExtractVar(body, varChangePct),
		UpdatedAt:     parse.ExtractVar(body, varUpdatedAt),
		ValuationDate: parse.ExtractVar(body, varNetValueDate),
	}
}

// liveRecord unwraps the jsonpgz envelope. Returns nil on any parse failure.
func liveRecord(body string) *parse.SourceRecord {
	payload := parse.UnwrapJSONP(body)
	if payload == nil {
		return nil
	}
	var env liveEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}
	return &parse.SourceRecord{
		Name:          env.Name,
		NetValue:      env.Dwjz,
		LiveValue:     env.Gsz,
		ChangePercent: env.Gszzl,
		UpdatedAt:     env.Gztime,
		ValuationDate: env.Jzrq,
	}
}

// indexSpec names the fixed set of indices shown above the watchlist.
type indexSpec struct {
	secID string
	name  string
}

var indexSpecs = []indexSpec{
	{secID: "1.000001", name: "上证指数"},
	{secID: "0.399006", name: "创业板指"},
}

// FetchIndices fetches the fixed index set concurrently. Members whose fetch
// or parse failed are silently dropped rather than failing the whole batch.
func (c *Client) FetchIndices(ctx context.Context) []model.MarketIndex {
	results := make([]*model.MarketIndex, len(indexSpecs))

	var g errgroup.Group
	for i, spec := range indexSpecs {
		i, spec := i, spec
		g.Go(func() error {
			results[i] = c.fetchIndex(ctx, spec)
			return nil
		})
	}
	g.Wait()

	out := make([]model.MarketIndex, 0, len(indexSpecs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (c *Client) fetchIndex(ctx context.Context, spec indexSpec) *model.MarketIndex {
	target := fmt.Sprintf("%s/api/qt/stock/get?secid=%s&fields=f43,f57,f58,f86,f169,f170", c.QuoteBase, spec.secID)
	body, err := c.fetcher.Fetch(ctx, target, func(b string) bool {
		return strings.Contains(b, `"data"`)
	})
	if err != nil {
		c.log.Debug().Str("index", spec.name).Err(err).Msg("index fetch failed")
		return nil
	}

	var quote struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &quote); err != nil || quote.Data == nil {
		c.log.Debug().Str("index", spec.name).Msg("index parse failed")
		return nil
	}

	symbol, _ := quote.Data["f57"].(string)
	name, _ := quote.Data["f58"].(string)
	if name == "" {
		name = spec.name
	}

	updated := ""
	if ts := toFloat(quote.Data["f86"]); ts > 0 {
		updated = time.Unix(int64(ts), 0).Format("01-02 15:04")
	}

	return &model.MarketIndex{
		Name:          name,
		Symbol:        symbol,
		Value:         toFloat(quote.Data["f43"]),
		Change:        toFloat(quote.Data["f169"]),
		ChangePercent: toFloat(quote.Data["f170"]),
		LastUpdated:   updated,
	}
}

// toFloat parses quote values defensively: suspended quotes come back as the
// literal "-", which counts as zero.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if n == "-" || n == "" {
			return 0
		}
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}
