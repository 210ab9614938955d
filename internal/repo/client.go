package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benchwork/procurement-bridge/internal/cache"
	"github.com/benchwork/procurement-bridge/internal/config"
	"github.com/benchwork/procurement-bridge/internal/metrics"
	"github.com/benchwork/procurement-bridge/internal/models"
	"github.com/benchwork/procurement-bridge/internal/utils"
)

const (
	authBearer      = "bearer"
	authAccessToken = "access-token"

	contentTypeJSON    = "application/json"
	contentTypeJSONAPI = "application/vnd.api+json"

	defaultBaseURL = "https://api.quartzy.com"
	defaultAppURL  = "https://app.quartzy.com"

	snippetLimit = 240
	maxBodyBytes = 16 << 20
)

// ProcurementClient talks to the remote procurement REST service. It
// discovers which endpoint, auth and filter variants a tenant accepts and
// remembers them for its lifetime.
type ProcurementClient struct {
	cfg        config.ServiceConfig
	baseURL    string
	appURL     string
	httpClient *http.Client
	cache      *cache.Layer
	logger     *slog.Logger

	discoveryMu    sync.Mutex
	bindings       map[string]EndpointBinding
	discoveryLocks map[string]*sync.Mutex

	strategyMu      sync.Mutex
	strategyChecked bool
	strategy        *FilterStrategy
}

// NewProcurementClient constructs a client for cfg. A nil httpClient gets a
// plain client with a 30s timeout; a nil layer disables caching.
func NewProcurementClient(cfg config.ServiceConfig, httpClient *http.Client, layer *cache.Layer, logger *slog.Logger) *ProcurementClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if layer == nil {
		layer = cache.NewLayer(nil, 0, nil, nil, logger)
	}
	base := config.NormalizeBaseURL(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return &ProcurementClient{
		cfg:        cfg,
		baseURL:    base,
		appURL:     strings.TrimRight(firstNonEmpty(cfg.AppURL, defaultAppURL), "/"),
		httpClient: httpClient,
		cache:      layer,
		logger:     utils.Component(logger, "procurement-client"),
		bindings:   make(map[string]EndpointBinding),

		discoveryLocks: make(map[string]*sync.Mutex),
	}
}

// Enabled reports whether the client is switched on and has a token.
func (c *ProcurementClient) Enabled() bool {
	return c != nil && c.cfg.Enabled && strings.TrimSpace(c.cfg.Token) != ""
}

// Config returns the service configuration the client was built with.
func (c *ProcurementClient) Config() config.ServiceConfig {
	return c.cfg
}

// ClearCaches drops cached collections. Discovered endpoint bindings and the
// filter strategy are kept.
func (c *ProcurementClient) ClearCaches(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// authModes lists the header schemes to try, in order.
func (c *ProcurementClient) authModes() []string {
	switch strings.ToLower(strings.TrimSpace(c.cfg.AuthMode)) {
	case authBearer:
		return []string{authBearer}
	case authAccessToken:
		return []string{authAccessToken}
	}
	if c.cfg.AuthFallback {
		return []string{authAccessToken, authBearer}
	}
	return []string{authAccessToken}
}

// modesStartingWith puts preferred first and keeps the remaining modes.
func (c *ProcurementClient) modesStartingWith(preferred string) []string {
	modes := c.authModes()
	if preferred == "" {
		return modes
	}
	out := []string{preferred}
	for _, m := range modes {
		if m != preferred {
			out = append(out, m)
		}
	}
	return out
}

// writeMode picks the auth scheme for mutating calls: whatever discovery
// settled on, else the configured primary.
func (c *ProcurementClient) writeMode() string {
	c.discoveryMu.Lock()
	defer c.discoveryMu.Unlock()
	for _, kind := range []ResourceKind{ResourceInventory, ResourceOrders} {
		for _, b := range c.bindings {
			if b.Kind == kind && b.AuthMode != "" {
				return b.AuthMode
			}
		}
	}
	return c.authModes()[0]
}

func (c *ProcurementClient) applyAuth(req *http.Request, mode string) {
	req.Header.Set("Accept", contentTypeJSON)
	token := strings.TrimSpace(c.cfg.Token)
	if token == "" {
		return
	}
	if mode == authBearer {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	req.Header.Set("Access-Token", token)
}

func (c *ProcurementClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *ProcurementClient) labOrDefault(lab string) string {
	return strings.TrimSpace(firstNonEmpty(lab, c.cfg.LabID))
}

// call describes one HTTP exchange with the remote service.
type call struct {
	method      string
	path        string
	query       url.Values
	body        any
	contentType string
	mode        string
	page        int
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r != nil && r.status >= 200 && r.status < 300
}

// do performs in and returns the response (nil on transport failure) plus a
// diagnostic attempt. It never returns an error.
func (c *ProcurementClient) do(ctx context.Context, in call) (*response, models.FetchAttempt) {
	target := c.resolvePath(in.path)
	if len(in.query) > 0 {
		target += "?" + in.query.Encode()
	}
	attempt := models.FetchAttempt{
		URL:         target,
		Method:      in.method,
		AuthMode:    in.mode,
		Page:        in.page,
		ContentType: in.contentType,
	}

	var reader io.Reader
	if in.body != nil {
		payload, err := json.Marshal(in.body)
		if err != nil {
			attempt.Error = fmt.Sprintf("marshal body: %v", err)
			return nil, attempt
		}
		reader = bytes.NewReader(payload)
		attempt.BodyShape = bodyShape(in.body)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, target, reader)
	if err != nil {
		attempt.Error = err.Error()
		return nil, attempt
	}
	c.applyAuth(req, in.mode)
	if in.body != nil {
		contentType := firstNonEmpty(in.contentType, contentTypeJSON)
		req.Header.Set("Content-Type", contentType)
		if contentType == contentTypeJSONAPI {
			req.Header.Set("Accept", contentTypeJSONAPI)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	attempt.Latency = time.Since(start)
	if err != nil {
		metrics.ObserveRemoteRequest(in.method, 0, attempt.Latency)
		attempt.Error = err.Error()
		c.logger.Debug("remote call failed", slog.String("method", in.method), slog.String("url", target), slog.Any("error", err))
		return nil, attempt
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.ObserveRemoteRequest(in.method, resp.StatusCode, attempt.Latency)
	attempt.HTTPStatus = resp.StatusCode
	if err != nil {
		attempt.Error = fmt.Sprintf("read body: %v", err)
		return nil, attempt
	}
	out := &response{status: resp.StatusCode, header: resp.Header, body: body}
	if !out.ok() {
		attempt.Snippet = snippet(body, snippetLimit)
	}
	return out, attempt
}

func bodyShape(body any) []string {
	m, ok := body.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func snippet(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
