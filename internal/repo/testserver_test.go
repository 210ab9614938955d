package repo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benchwork/procurement-bridge/internal/cache"
	"github.com/benchwork/procurement-bridge/internal/config"
)

// requestLog records requests seen by a test server; handlers run
// concurrently during page fan-out.
type requestLog struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, r.Clone(r.Context()))
}

func (l *requestLog) count(match func(*http.Request) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.requests {
		if match == nil || match(r) {
			n++
		}
	}
	return n
}

func testServiceConfig(baseURL string) config.ServiceConfig {
	return config.ServiceConfig{
		Enabled:           true,
		BaseURL:           baseURL,
		AppURL:            "https://app.example.test",
		Token:             "test-token",
		AuthMode:          "auto",
		AuthFallback:      true,
		OrdersPerPage:     2,
		MaxWorkers:        2,
		NoGrowthThreshold: 3,
		MaxPages:          50,
		LookupMaxPages:    4,
	}
}

func newServerClient(t *testing.T, handler http.HandlerFunc, mutate func(*config.ServiceConfig)) (*ProcurementClient, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testServiceConfig(srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	layer := cache.NewLayer(cache.NewMemoryProvider(nil), time.Minute, nil, nil, nil)
	return NewProcurementClient(cfg, srv.Client(), layer, nil), log
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}
