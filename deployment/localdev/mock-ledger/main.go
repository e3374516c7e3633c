// Command mock-ledger serves synthetic cooperative metric series for local runs of the watch scheduler.
package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/koperasi/anomaly-engine/internal/utils"
)

type seriesRequest struct {
	Metric string    `json:"metric"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type seriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// generator yields the value for day i; outliers are planted at fixed offsets.
type generator func(i int) float64

var generators = map[string]generator{
	"cash_balance": func(i int) float64 {
		if i == 17 {
			return 3_500_000
		}
		return 42_000_000 + 1_500_000*math.Sin(float64(i)/3)
	},
	"default_rate": func(i int) float64 {
		if i == 21 {
			return 12.5
		}
		return 2.8 + 0.3*math.Cos(float64(i)/2)
	},
	"transaction_volume": func(i int) float64 {
		if i == 9 {
			return 4_800
		}
		return 640 + 40*math.Sin(float64(i))
	},
	"savings_growth_rate": func(i int) float64 {
		if i < 14 {
			return 1.5 + 0.4*float64(i)
		}
		return 7.1 - 0.9*float64(i-14)
	},
}

func main() {
	logger := utils.NewLogger("info", false).With(slog.String("component", "ledger-mock"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/v1/metrics/series", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req seriesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		gen, ok := generators[req.Metric]
		if !ok {
			writeJSON(logger, w, map[string]any{"series": []seriesPoint{}})
			return
		}
		writeJSON(logger, w, map[string]any{"series": buildSeries(gen, req.Start, req.End)})
	})

	addr := ":8080"
	if v := os.Getenv("LEDGER_MOCK_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildSeries emits one point per day across [start, end], capped at 90 days.
func buildSeries(gen generator, start, end time.Time) []seriesPoint {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() || !start.Before(end) {
		start = end.Add(-30 * 24 * time.Hour)
	}
	days := int(end.Sub(start) / (24 * time.Hour))
	if days > 90 {
		days = 90
	}
	points := make([]seriesPoint, 0, days)
	for i := 0; i < days; i++ {
		points = append(points, seriesPoint{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour).UTC(),
			Value:     gen(i),
		})
	}
	return points
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
