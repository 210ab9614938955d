package automation

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
	"strings"
	"time"

	"github.com/benchwork/procurement-bridge/internal/utils"
)

// RemoteHandler hands jobs to an external UI-automation service and polls
// it until the job finishes.
//
//	POST {endpoint}/jobs        {"kind": ..., "payload": {...}} -> {"id": ...}
//	GET  {endpoint}/jobs/{id}   -> {"status", "log", "result", "error"}
type RemoteHandler struct {
	endpoint     string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRemoteHandler targets endpoint. A nil client gets a 30s timeout.
func NewRemoteHandler(endpoint string, httpClient *http.Client, pollInterval time.Duration, logger *slog.Logger) *RemoteHandler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &RemoteHandler{
		endpoint:     strings.TrimRight(endpoint, "/"),
		httpClient:   httpClient,
		pollInterval: pollInterval,
		logger:       utils.Component(logger, "automation-remote"),
	}
}

type remoteLogEntry struct {
	Msg  string         `json:"msg"`
	Meta map[string]any `json:"meta"`
}

type remoteJob struct {
	ID     string           `json:"id"`
	Status Status           `json:"status"`
	Log    []remoteLogEntry `json:"log"`
	Result any              `json:"result"`
	Error  string           `json:"error"`
}

// Run submits job and blocks until the remote reports a terminal status or
// ctx ends.
func (h *RemoteHandler) Run(ctx context.Context, job Job, logf LogFunc) (any, error) {
	if h.endpoint == "" {
		return nil, utils.NewAppError("automation.Run", "automation endpoint not configured", nil)
	}

	var submitted remoteJob
	if err := h.doJSON(ctx, http.MethodPost, h.resolvePath("/jobs"), job, &submitted); err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	if submitted.ID == "" {
		return nil, utils.NewAppError("automation.Run", "remote returned no job id", nil)
	}
	logf("remote_submitted", map[string]any{"remote_id": submitted.ID})

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	seen := 0
	last := submitted.Status
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var state remoteJob
		if err := h.doJSON(ctx, http.MethodGet, h.resolvePath("/jobs/"+url.PathEscape(submitted.ID)), nil, &state); err != nil {
			h.logger.Debug("poll failed", slog.String("remote_id", submitted.ID), slog.Any("error", err))
			continue
		}
		for ; seen < len(state.Log); seen++ {
			entry := state.Log[seen]
			logf(entry.Msg, entry.Meta)
		}
		if state.Status != last {
			last = state.Status
			logf("remote_status", map[string]any{"status": string(state.Status)})
		}
		switch state.Status {
		case StatusDone:
			return state.Result, nil
		case StatusError:
			return state.Result, fmt.Errorf("remote job failed: %s", firstNonEmpty(state.Error, "unknown error"))
		}
	}
}

func (h *RemoteHandler) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return h.endpoint + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (h *RemoteHandler) doJSON(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("automation service returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
