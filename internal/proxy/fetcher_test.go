package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestStrategyBuild(t *testing.T) {
	direct := Strategy{Name: "direct"}
	assert.Equal(t, "http://example.com/a?b=1", direct.Build("http://example.com/a?b=1"))

	relay := Strategy{Name: "relay", Prefix: "https://relay.test/raw?url="}
	assert.Equal(t,
		"https://relay.test/raw?url=http%3A%2F%2Fexample.com%2Fa%3Fb%3D1",
		relay.Build("http://example.com/a?b=1"))
}

func TestFetch_FallbackOrderAndShortCircuit(t *testing.T) {
	var calls [4]atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/s1", func(w http.ResponseWriter, r *http.Request) {
		calls[0].Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/s2", func(w http.ResponseWriter, r *http.Request) {
		calls[1].Add(1)
		w.Write([]byte("not what you want"))
	})
	mux.HandleFunc("/s3", func(w http.ResponseWriter, r *http.Request) {
		calls[2].Add(1)
		w.Write([]byte("valid payload"))
	})
	mux.HandleFunc("/s4", func(w http.ResponseWriter, r *http.Request) {
		calls[3].Add(1)
		w.Write([]byte("valid payload"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New([]Strategy{
		{Name: "one", Prefix: srv.URL + "/s1?url="},
		{Name: "two", Prefix: srv.URL + "/s2?url="},
		{Name: "three", Prefix: srv.URL + "/s3?url="},
		{Name: "four", Prefix: srv.URL + "/s4?url="},
	}, 2*time.Second, testLogger())

	body, err := f.Fetch(context.Background(), "http://target.test/doc", func(b string) bool {
		return strings.Contains(b, "valid")
	})
	require.NoError(t, err)
	assert.Equal(t, "valid payload", body)

	// Strategies 1-3 attempted exactly once each; 4 never reached.
	assert.EqualValues(t, 1, calls[0].Load())
	assert.EqualValues(t, 1, calls[1].Load())
	assert.EqualValues(t, 1, calls[2].Load())
	assert.EqualValues(t, 0, calls[3].Load())
}

func TestFetch_AllExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New([]Strategy{
		{Name: "one", Prefix: srv.URL + "/?url="},
		{Name: "two", Prefix: srv.URL + "/?url="},
	}, time.Second, testLogger())

	_, err := f.Fetch(context.Background(), "http://target.test/doc", nil)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestFetch_WrappedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"contents":"var fS_name = \"abc\";","status":{"http_code":200}}`))
	}))
	defer srv.Close()

	f := New([]Strategy{
		{Name: "wrapped", Prefix: srv.URL + "/get?url=", Wrapped: true},
	}, time.Second, testLogger())

	body, err := f.Fetch(context.Background(), "http://target.test/doc", nil)
	require.NoError(t, err)
	assert.Equal(t, `var fS_name = "abc";`, body)
}

func TestFetch_WrappedEnvelopeMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`plain text, not an envelope`))
	}))
	defer srv.Close()

	f := New([]Strategy{
		{Name: "wrapped", Prefix: srv.URL + "/get?url=", Wrapped: true},
	}, time.Second, testLogger())

	_, err := f.Fetch(context.Background(), "http://target.test/doc", nil)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestFetch_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("too late"))
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("on time"))
	}))
	defer fast.Close()

	f := New([]Strategy{
		{Name: "slow", Prefix: slow.URL + "/?url="},
		{Name: "fast", Prefix: fast.URL + "/?url="},
	}, 100*time.Millisecond, testLogger())

	body, err := f.Fetch(context.Background(), "http://target.test/doc", nil)
	require.NoError(t, err)
	assert.Equal(t, "on time", body)
}

func TestDefaultStrategies(t *testing.T) {
	ss := DefaultStrategies()
	require.NotEmpty(t, ss)
	assert.Equal(t, "direct", ss[0].Name)
	assert.Empty(t, ss[0].Prefix)

	wrapped := false
	for _, s := range ss {
		if s.Wrapped {
			wrapped = true
		}
	}
	assert.True(t, wrapped, "at least one relay returns a JSON envelope")
}
