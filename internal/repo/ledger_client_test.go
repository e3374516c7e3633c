package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

const cashSeriesBody = `{"series":[
 {"timestamp":"2026-03-01T00:00:00Z","value":12500000},
 {"timestamp":"2026-03-02T00:00:00Z","value":12650000},
 {"timestamp":"2026-03-03T00:00:00Z","value":4100000}
]}`

func TestLedgerClientFetchSeries(t *testing.T) {
	var received map[string]any
	client := NewLedgerClient(LedgerClientConfig{
		BaseURL:    "http://ledger.local/",
		SeriesPath: "api/v1/metrics/series",
		Timeout:    time.Second,
	}, nil, nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "http://ledger.local/api/v1/metrics/series" {
			t.Fatalf("unexpected url %s", req.URL)
		}
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		return jsonResponse(http.StatusOK, cashSeriesBody), nil
	})

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	series, err := client.FetchSeries(context.Background(), "cash_balance", start, start.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(series) != 3 || series[2].Value != 4100000 {
		t.Fatalf("unexpected series: %+v", series)
	}
	if received["metric"] != "cash_balance" || received["start"] != "2026-03-01T00:00:00Z" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestLedgerClientRetriesTransientFailures(t *testing.T) {
	var calls int32
	client := NewLedgerClient(LedgerClientConfig{
		BaseURL:        "http://ledger.local",
		SeriesPath:     "/series",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}, nil, nil)
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return jsonResponse(http.StatusServiceUnavailable, ""), nil
		}
		return jsonResponse(http.StatusOK, cashSeriesBody), nil
	})

	series, err := client.FetchSeries(context.Background(), "cash_balance", time.Time{}, time.Now())
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(series) != 3 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls and 3 points, got calls=%d points=%d", calls, len(series))
	}
}

func TestLedgerClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := NewLedgerClient(LedgerClientConfig{
		BaseURL:        "http://ledger.local",
		SeriesPath:     "/series",
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}, nil, nil)
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusBadRequest, ""), nil
	})

	if _, err := client.FetchSeries(context.Background(), "cash_balance", time.Time{}, time.Now()); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestLedgerClientCachesSeries(t *testing.T) {
	var calls int32
	stub := newStubCache()
	client := NewLedgerClient(LedgerClientConfig{
		BaseURL:    "http://ledger.local",
		SeriesPath: "/series",
		SeriesTTL:  time.Minute,
	}, stub, nil)
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(cashSeriesBody)),
			Header:     make(http.Header),
		}, nil
	})

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(72 * time.Hour)
	for i := 0; i < 2; i++ {
		series, err := client.FetchSeries(context.Background(), "cash_balance", start, end)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(series) != 3 || !series[0].Timestamp.Equal(start) {
			t.Fatalf("unexpected series on call %d: %+v", i, series)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cached second call, got %d requests", calls)
	}
	if !stub.has(seriesCacheKey("cash_balance", start, end)) {
		t.Fatalf("expected cache entry")
	}
}

func TestLedgerClientRequiresBaseURL(t *testing.T) {
	client := NewLedgerClient(LedgerClientConfig{}, nil, nil)
	if _, err := client.FetchSeries(context.Background(), "cash_balance", time.Time{}, time.Now()); err == nil {
		t.Fatalf("expected error without base url")
	}
}
