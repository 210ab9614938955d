package repo

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/benchwork/procurement-bridge/internal/models"
)

// ResourceKind names a remote collection.
type ResourceKind string

const (
	ResourceOrders    ResourceKind = "orders"
	ResourceInventory ResourceKind = "inventory"
)

// EndpointBinding is the collection path and auth scheme that returned data
// for a resource kind.
type EndpointBinding struct {
	Kind           ResourceKind `json:"kind"`
	Path           string       `json:"path"`
	UsesLabIDParam bool         `json:"uses_lab_id_param"`
	AuthMode       string       `json:"auth_mode"`
}

type endpointCandidate struct {
	path      string
	labScoped bool
}

// candidate collection paths per kind, in priority order. {lab} marks the
// lab-scoped variants, which only apply when a lab id is known.
var collectionPaths = map[ResourceKind][]string{
	ResourceOrders: {
		"/order-requests",
		"/api/v2/order-requests",
		"/labs/{lab}/order-requests",
		"/order_requests",
	},
	ResourceInventory: {
		"/inventory-items",
		"/api/v2/inventory-items",
		"/labs/{lab}/inventory-items",
		"/api/v2/labs/{lab}/inventory-items",
		"/inventory_items",
		"/labs/{lab}/inventory_items",
	},
}

var listPaths = map[ResourceKind][]string{
	ResourceOrders:    orderListPaths,
	ResourceInventory: inventoryListPaths,
}

func candidateEndpoints(kind ResourceKind, lab string) []endpointCandidate {
	var out []endpointCandidate
	for _, p := range collectionPaths[kind] {
		scoped := strings.Contains(p, "{lab}")
		if scoped {
			if lab == "" {
				continue
			}
			p = strings.ReplaceAll(p, "{lab}", url.PathEscape(lab))
		}
		out = append(out, endpointCandidate{path: p, labScoped: scoped})
	}
	return out
}

// pageResult is one successfully parsed collection page.
type pageResult struct {
	items  []models.Record
	meta   models.PageMetadata
	status int
	mode   string
}

// discover resolves the binding for kind and lab. On the call that actually
// probes, the winning probe page is returned so the caller can reuse it as
// page 1. Later calls return the memoized binding without any request.
func (c *ProcurementClient) discover(ctx context.Context, kind ResourceKind, lab string, perPage int) (EndpointBinding, *pageResult, []models.FetchAttempt, bool) {
	key := string(kind) + "|" + lab

	kl := c.keyLock(key)
	kl.Lock()
	defer kl.Unlock()

	c.discoveryMu.Lock()
	b, ok := c.bindings[key]
	c.discoveryMu.Unlock()
	if ok {
		return b, nil, nil, true
	}

	var attempts []models.FetchAttempt
	for _, cand := range candidateEndpoints(kind, lab) {
		q := pageQuery(1, perPage)
		if !cand.labScoped && lab != "" {
			q.Set("lab_id", lab)
		}
	modes:
		for _, mode := range c.authModes() {
			resp, attempt := c.do(ctx, call{method: http.MethodGet, path: cand.path, query: q, mode: mode, page: 1})
			attempts = append(attempts, attempt)
			switch {
			case resp == nil:
				break modes
			case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
				continue
			case resp.status == http.StatusNotFound, bytes.Contains(bytes.ToLower(resp.body), []byte("no such operation")), !resp.ok():
				break modes
			}
			items, ok := extractList(resp.body, listPaths[kind])
			if !ok {
				break
			}
			binding := EndpointBinding{Kind: kind, Path: cand.path, UsesLabIDParam: !cand.labScoped, AuthMode: mode}
			c.discoveryMu.Lock()
			c.bindings[key] = binding
			c.discoveryMu.Unlock()
			c.logger.Info("endpoint discovered",
				slog.String("kind", string(kind)),
				slog.String("path", cand.path),
				slog.String("auth_mode", mode),
				slog.Int("probes", len(attempts)),
			)
			probe := &pageResult{
				items:  items,
				meta:   parsePageMetadata(1, resp.header, resp.body, len(items)),
				status: resp.status,
				mode:   mode,
			}
			return binding, probe, attempts, true
		}
	}

	c.logger.Warn("no endpoint variant returned data", slog.String("kind", string(kind)), slog.Int("probes", len(attempts)))
	return EndpointBinding{}, nil, attempts, false
}

// keyLock serializes discovery per kind and lab so concurrent callers probe
// once, while other keys proceed.
func (c *ProcurementClient) keyLock(key string) *sync.Mutex {
	c.discoveryMu.Lock()
	defer c.discoveryMu.Unlock()
	l, ok := c.discoveryLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.discoveryLocks[key] = l
	}
	return l
}

// Binding returns the memoized binding for kind and lab, if any.
func (c *ProcurementClient) Binding(kind ResourceKind, lab string) (EndpointBinding, bool) {
	c.discoveryMu.Lock()
	defer c.discoveryMu.Unlock()
	b, ok := c.bindings[string(kind)+"|"+c.labOrDefault(lab)]
	return b, ok
}

// ResetDiscovery forgets every endpoint binding and the filter strategy.
func (c *ProcurementClient) ResetDiscovery() {
	c.discoveryMu.Lock()
	c.bindings = make(map[string]EndpointBinding)
	c.discoveryMu.Unlock()

	c.strategyMu.Lock()
	c.strategyChecked = false
	c.strategy = nil
	c.strategyMu.Unlock()
}

// fetchPage fetches one page of a bound collection, trying modes in order
// on 401/403. It returns nil when no mode produced a parseable page.
func (c *ProcurementClient) fetchPage(ctx context.Context, b EndpointBinding, lab string, page, perPage int, extra url.Values, modes []string) (*pageResult, []models.FetchAttempt) {
	q := pageQuery(page, perPage)
	if b.UsesLabIDParam && lab != "" {
		q.Set("lab_id", lab)
	}
	for k, vs := range extra {
		q[k] = append([]string(nil), vs...)
	}

	var attempts []models.FetchAttempt
	for _, mode := range modes {
		resp, attempt := c.do(ctx, call{method: http.MethodGet, path: b.Path, query: q, mode: mode, page: page})
		attempts = append(attempts, attempt)
		if resp == nil {
			return nil, attempts
		}
		if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
			continue
		}
		if !resp.ok() {
			return nil, attempts
		}
		items, ok := extractList(resp.body, listPaths[b.Kind])
		if !ok {
			return nil, attempts
		}
		return &pageResult{
			items:  items,
			meta:   parsePageMetadata(page, resp.header, resp.body, len(items)),
			status: resp.status,
			mode:   mode,
		}, attempts
	}
	return nil, attempts
}

func pageQuery(page, perPage int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("limit", strconv.Itoa(perPage))
	}
	return q
}
