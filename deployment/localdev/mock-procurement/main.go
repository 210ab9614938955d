package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// store holds the mock procurement state. Quantities are kept as strings,
// the way the remote service returns them.
type store struct {
	mu     sync.Mutex
	orders map[string]map[string]any
	items  map[string]map[string]any
	jobs   map[string]*mockJob
	nextID int
}

type mockJob struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
	Polls   int            `json:"-"`
}

func newStore(orders, items int) *store {
	s := &store{
		orders: make(map[string]map[string]any),
		items:  make(map[string]map[string]any),
		jobs:   make(map[string]*mockJob),
	}
	statuses := []string{"ORDERED", "APPROVED", "RECEIVED", "PENDING", "CANCELLED"}
	for i := 1; i <= orders; i++ {
		id := fmt.Sprintf("o-%d", i)
		s.orders[id] = map[string]any{
			"id":             id,
			"item_name":      fmt.Sprintf("Reagent %d", i),
			"vendor_name":    "Acme Biosciences",
			"catalog_number": fmt.Sprintf("AB-%04d", i),
			"quantity":       strconv.Itoa(1 + i%5),
			"status":         statuses[i%len(statuses)],
			"created_at":     time.Now().Add(-time.Duration(i) * time.Hour).UTC().Format(time.RFC3339),
		}
	}
	locations := []string{"Freezer -80", "Fridge 4C", "Shelf A"}
	for i := 1; i <= items; i++ {
		id := fmt.Sprintf("i-%d", i)
		s.items[id] = map[string]any{
			"id":             id,
			"name":           fmt.Sprintf("Reagent %d", i),
			"vendor":         "Acme Biosciences",
			"catalog_number": fmt.Sprintf("AB-%04d", i),
			"quantity":       strconv.Itoa(i % 7),
			"location":       map[string]any{"name": locations[i%len(locations)]},
			"sublocation":    map[string]any{"name": fmt.Sprintf("Box %d", i%4)},
		}
	}
	s.nextID = items + 1
	return s
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	style := flag.String("style", "headers", "pagination style: headers, meta or none")
	orders := flag.Int("orders", 230, "number of order requests")
	items := flag.Int("items", 410, "number of inventory items")
	token := flag.String("token", "dev-token", "expected access token")
	flag.Parse()

	st := newStore(*orders, *items)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /order-requests", func(w http.ResponseWriter, r *http.Request) {
		wanted := statusFilter(r)
		st.mu.Lock()
		rows := sortedRows(st.orders, func(rec map[string]any) bool {
			return len(wanted) == 0 || wanted[strings.ToLower(fmt.Sprint(rec["status"]))]
		})
		st.mu.Unlock()
		writePage(w, r, *style, "order_requests", rows)
	})
	mux.HandleFunc("GET /order-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		rec, ok := st.orders[r.PathValue("id")]
		st.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, rec)
	})
	mux.HandleFunc("PUT /order-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		rec, ok := st.orders[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if v, ok := body["status"].(string); ok {
			rec["status"] = strings.ToUpper(v)
		}
		if v, ok := body["notes"].(string); ok {
			rec["notes"] = v
		}
		writeJSON(w, rec)
	})

	mux.HandleFunc("GET /inventory-items", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		rows := sortedRows(st.items, func(map[string]any) bool { return true })
		st.mu.Unlock()
		writePage(w, r, *style, "inventory_items", rows)
	})
	mux.HandleFunc("GET /inventory-items/{id}", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		rec, ok := st.items[r.PathValue("id")]
		st.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"inventory_item": rec})
	})
	mux.HandleFunc("PUT /inventory-items/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		q, ok := body["quantity"].(string)
		if !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		rec, found := st.items[r.PathValue("id")]
		if !found {
			http.NotFound(w, r)
			return
		}
		rec["quantity"] = q
		writeJSON(w, rec)
	})
	mux.HandleFunc("POST /inventory-items", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["name"] == nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		st.mu.Lock()
		id := fmt.Sprintf("i-%d", st.nextID)
		st.nextID++
		body["id"] = id
		st.items[id] = body
		st.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, body)
	})

	mux.HandleFunc("POST /automation/jobs", func(w http.ResponseWriter, r *http.Request) {
		var job mockJob
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		st.mu.Lock()
		id := fmt.Sprintf("job-%d", len(st.jobs)+1)
		st.jobs[id] = &job
		st.mu.Unlock()
		writeJSON(w, map[string]any{"id": id, "status": "queued"})
	})
	mux.HandleFunc("GET /automation/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		job, ok := st.jobs[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		job.Polls++
		if job.Polls < 3 {
			writeJSON(w, map[string]any{"status": "running", "log": []map[string]any{{"msg": "browser_started"}}})
			return
		}
		writeJSON(w, map[string]any{
			"status": "done",
			"log":    []map[string]any{{"msg": "browser_started"}, {"msg": "form_saved"}},
			"result": map[string]any{"kind": job.Kind},
		})
	})

	logger := log.New(log.Writer(), "procurement-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, requireToken(*token, mux)),
	}

	logger.Printf("listening on %s (pagination=%s)", *addr, *style)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// requireToken accepts the Access-Token header only; bearer requests get 401.
func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/automation/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Access-Token") != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func statusFilter(r *http.Request) map[string]bool {
	wanted := make(map[string]bool)
	for _, v := range r.URL.Query()["status"] {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" {
				wanted[tok] = true
			}
		}
	}
	return wanted
}

func sortedRows(m map[string]map[string]any, keep func(map[string]any) bool) []map[string]any {
	out := make([]map[string]any, 0, len(m))
	for _, rec := range m {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimLeft(fmt.Sprint(out[i]["id"]), "oi-"))
		b, _ := strconv.Atoi(strings.TrimLeft(fmt.Sprint(out[j]["id"]), "oi-"))
		return a < b
	})
	return out
}

// writePage serves one page. headers sets X-Page/X-Total-Pages, meta puts a
// pagination object in the body, none leaves the client to infer the end.
func writePage(w http.ResponseWriter, r *http.Request, style, key string, rows []map[string]any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	total := (len(rows) + perPage - 1) / perPage
	start := min((page-1)*perPage, len(rows))
	end := min(start+perPage, len(rows))
	chunk := rows[start:end]

	switch style {
	case "headers":
		w.Header().Set("X-Page", strconv.Itoa(page))
		w.Header().Set("X-Per-Page", strconv.Itoa(perPage))
		w.Header().Set("X-Total-Pages", strconv.Itoa(total))
		writeJSON(w, chunk)
	case "meta":
		writeJSON(w, map[string]any{
			key:    chunk,
			"meta": map[string]any{"current_page": page, "total_pages": total, "per_page": perPage},
		})
	default:
		writeJSON(w, map[string]any{key: chunk})
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
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
