// Package proxy fetches upstream documents through an ordered list of CORS
// relay strategies, returning the first body that passes validation.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// ErrExhausted is returned when every strategy failed or timed out. Callers
// treat it as "no data this cycle", never as fatal.
var ErrExhausted = errors.New("proxy: all strategies exhausted")

// Strategy rewrites a target URL into the request URL for one relay. An empty
// Prefix is the direct (no relay) strategy. Wrapped marks relays that return
// the payload inside a {"contents": ...} JSON envelope instead of raw text.
type Strategy struct {
	Name    string
	Prefix  string
	Wrapped bool
}

// Build maps the target URL to the URL actually requested.
func (s Strategy) Build(target string) string {
	if s.Prefix == "" {
		return target
	}
	return s.Prefix + url.QueryEscape(target)
}

// DefaultStrategies is the shipped relay order: direct first, then public
// CORS relays. The set and order is configuration, not protocol.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "direct"},
		{Name: "allorigins-raw", Prefix: "https://api.allorigins.win/raw?url="},
		{Name: "allorigins-get", Prefix: "https://api.allorigins.win/get?url=", Wrapped: true},
		{Name: "corsproxy", Prefix: "https://corsproxy.io/?url="},
	}
}

// Validator decides whether a response body looks like the document the
// caller asked for. A nil validator accepts anything.
type Validator func(body string) bool

// Fetcher issues GETs through the strategy list with a per-attempt timeout.
type Fetcher struct {
	client     *http.Client
	strategies []Strategy
	timeout    time.Duration
	log        zerolog.Logger
}

// New creates a Fetcher. timeout bounds each individual strategy attempt.
func New(strategies []Strategy, timeout time.Duration, log zerolog.Logger) *Fetcher {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		strategies: strategies,
		timeout:    timeout,
		log:        log.With().Str("component", "proxy").Logger(),
	}
}

// Fetch tries each strategy exactly once, in order, and returns the first
// body that arrives with a 2xx status and passes validate. Network errors,
// bad statuses, envelope problems and validator rejections all just advance
// to the next strategy.
func (f *Fetcher) Fetch(ctx context.Context, target string, validate Validator) (string, error) {
	for _, s := range f.strategies {
		body, err := f.attempt(ctx, s, target)
		if err != nil {
			f.log.Debug().Str("strategy", s.Name).Str("target", target).Err(err).Msg("attempt failed")
			continue
		}
		if validate != nil && !validate(body) {
			f.log.Debug().Str("strategy", s.Name).Str("target", target).Msg("validator rejected body")
			continue
		}
		return body, nil
	}
	return "", ErrExhausted
}

func (f *Fetcher) attempt(ctx context.Context, s Strategy, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Build(target), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	if s.Wrapped {
		var envelope struct {
			Contents string `json:"contents"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return "", fmt.Errorf("unwrap envelope: %w", err)
		}
		if envelope.Contents == "" {
			return "", errors.New("empty envelope contents")
		}
		return envelope.Contents, nil
	}
	return string(raw), nil
}
