package repo

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestDiscoverIsMemoized(t *testing.T) {
	client, log := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/order-requests" {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"order_requests": []map[string]any{{"id": "o-1", "status": "ORDERED"}},
		})
	}, nil)

	ctx := context.Background()
	binding, probe, attempts, ok := client.discover(ctx, ResourceOrders, "", 2)
	if !ok {
		t.Fatalf("expected discovery to succeed, attempts=%+v", attempts)
	}
	if binding.Path != "/api/v2/order-requests" || !binding.UsesLabIDParam {
		t.Fatalf("unexpected binding: %+v", binding)
	}
	if probe == nil || len(probe.items) != 1 {
		t.Fatalf("expected probe page to be returned, got %+v", probe)
	}
	first := log.count(nil)
	if first != 2 {
		t.Fatalf("expected 404 then success, got %d requests", first)
	}

	again, probe, attempts, ok := client.discover(ctx, ResourceOrders, "", 2)
	if !ok || again != binding {
		t.Fatalf("expected memoized binding, got %+v", again)
	}
	if probe != nil || len(attempts) != 0 {
		t.Fatalf("memoized discovery should not probe")
	}
	if log.count(nil) != first {
		t.Fatalf("second discovery issued requests: %d", log.count(nil)-first)
	}

	client.ResetDiscovery()
	if _, ok := client.Binding(ResourceOrders, ""); ok {
		t.Fatalf("reset should forget bindings")
	}
}

func TestDiscoverDoesNotBlockOtherKinds(t *testing.T) {
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/order-requests":
			select {
			case arrived <- struct{}{}:
			default:
			}
			select {
			case <-release:
			case <-time.After(5 * time.Second):
			}
			writeJSON(t, w, http.StatusOK, []map[string]any{{"id": "o-1"}})
		case "/inventory-items":
			writeJSON(t, w, http.StatusOK, []map[string]any{{"id": "i-1"}})
		default:
			http.NotFound(w, r)
		}
	}, nil)

	ctx := context.Background()
	done := make(chan bool, 1)
	go func() {
		_, _, _, ok := client.discover(ctx, ResourceOrders, "", 2)
		done <- ok
	}()
	defer func() {
		close(release)
		if ok := <-done; !ok {
			t.Errorf("orders discovery failed")
		}
	}()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("orders discovery never reached the server")
	}

	result := make(chan EndpointBinding, 1)
	go func() {
		b, _, _, _ := client.discover(ctx, ResourceInventory, "", 2)
		result <- b
	}()
	select {
	case b := <-result:
		if b.Path != "/inventory-items" {
			t.Fatalf("unexpected inventory binding: %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("inventory discovery waited on orders discovery")
	}
}

func TestDiscoverFallsBackToBearer(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": "i-1"}})
	}, nil)

	binding, _, attempts, ok := client.discover(context.Background(), ResourceInventory, "", 5)
	if !ok {
		t.Fatalf("expected discovery to succeed")
	}
	if binding.AuthMode != authBearer || binding.Path != "/inventory-items" {
		t.Fatalf("unexpected binding: %+v", binding)
	}
	if len(attempts) != 2 || attempts[0].AuthMode != authAccessToken || attempts[0].HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
}

func TestDiscoverSkipsLabScopedPathsWithoutLab(t *testing.T) {
	for _, cand := range candidateEndpoints(ResourceInventory, "") {
		if cand.labScoped {
			t.Fatalf("lab-scoped candidate without lab: %s", cand.path)
		}
	}
	scoped := candidateEndpoints(ResourceInventory, "lab 7")
	if len(scoped) != 6 || scoped[2].path != "/labs/lab%207/inventory-items" {
		t.Fatalf("unexpected scoped candidates: %+v", scoped)
	}
}

func TestDiscoverReportsNotFound(t *testing.T) {
	client, log := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"No such operation"}`))
	}, nil)

	_, report := client.FetchOrders(context.Background(), []string{"ORDERED"}, "", FetchOptions{})
	if report.Reason != "endpoint_not_found" {
		t.Fatalf("expected endpoint_not_found, got %q", report.Reason)
	}
	if len(report.Attempts) != log.count(nil) || len(report.Attempts) != 3 {
		t.Fatalf("expected one attempt per unscoped path, got %d attempts / %d requests", len(report.Attempts), log.count(nil))
	}
}

func TestDiscoverRecordsTransportErrors(t *testing.T) {
	calls := 0
	httpClient := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	client := NewProcurementClient(testServiceConfig("https://api.example.test"), httpClient, nil, nil)

	_, _, attempts, ok := client.discover(context.Background(), ResourceOrders, "", 10)
	if ok {
		t.Fatalf("expected discovery to fail")
	}
	if calls != 3 || len(attempts) != 3 {
		t.Fatalf("expected one attempt per path, got %d calls / %d attempts", calls, len(attempts))
	}
	for _, a := range attempts {
		if a.Error == "" || a.HTTPStatus != 0 {
			t.Fatalf("expected transport error in attempt, got %+v", a)
		}
	}
}
