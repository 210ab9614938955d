package repo

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/benchwork/procurement-bridge/internal/metrics"
	"github.com/benchwork/procurement-bridge/internal/models"
)

// WriteCandidate is one (path, method, body shape) variant of a write.
type WriteCandidate struct {
	Path        string
	Method      string
	ContentType string
	Body        models.Record
	Shape       string
}

func (w WriteCandidate) key() string {
	body, _ := json.Marshal(w.Body)
	return w.Method + " " + w.Path + " " + w.ContentType + " " + string(body)
}

// group identifies the candidates a 404 rules out.
func (w WriteCandidate) group() string {
	return w.Path + "|" + firstNonEmpty(w.ContentType, contentTypeJSON)
}

// execute tries candidates in order, one at a time, and stops at the first
// 2xx. A 404 skips the rest of that path's candidates for the same content
// type. Every attempt is recorded. The returned bytes are the winning
// response body.
func (c *ProcurementClient) execute(ctx context.Context, op string, candidates []WriteCandidate) (models.WriteReport, []byte) {
	report := models.WriteReport{Reason: models.ReasonNoVariantSucceeded}
	mode := c.writeMode()
	dead := make(map[string]bool)

	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		if dead[cand.group()] {
			continue
		}
		resp, attempt := c.do(ctx, call{
			method:      cand.Method,
			path:        cand.Path,
			body:        cand.Body,
			contentType: cand.ContentType,
			mode:        mode,
		})
		attempt.Variant = cand.Shape
		report.Attempts = append(report.Attempts, attempt)
		metrics.ObserveWriteAttempt(op, resp.ok())

		if resp.ok() {
			report.Success = true
			report.Reason = ""
			report.HTTPStatus = resp.status
			report.Method = cand.Method
			report.Path = cand.Path
			report.Request = cand.Body
			report.Response = decodeResponse(resp.body)
			c.logger.Info("write succeeded",
				slog.String("operation", op),
				slog.String("method", cand.Method),
				slog.String("path", cand.Path),
				slog.String("variant", cand.Shape),
				slog.Int("attempts", len(report.Attempts)),
			)
			return report, resp.body
		}
		if resp != nil {
			report.HTTPStatus = resp.status
			if resp.status == http.StatusNotFound {
				dead[cand.group()] = true
			}
		}
	}

	c.logger.Info("write variants exhausted", slog.String("operation", op), slog.Int("attempts", len(report.Attempts)))
	return report, nil
}

// runStages executes candidate stages in order until one succeeds, merging
// attempt logs. Each stage is built lazily so later stages can depend on
// reads made after earlier ones fail.
func (c *ProcurementClient) runStages(ctx context.Context, op string, stages ...func() []WriteCandidate) (models.WriteReport, []byte) {
	var attempts []models.FetchAttempt
	last := models.WriteReport{Reason: models.ReasonNoVariantSucceeded}
	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}
		candidates := stage()
		if len(candidates) == 0 {
			continue
		}
		report, body := c.execute(ctx, op, candidates)
		attempts = append(attempts, report.Attempts...)
		report.Attempts = attempts
		if report.Success {
			return report, body
		}
		last = report
	}
	last.Attempts = attempts
	last.Success = false
	last.Reason = models.ReasonNoVariantSucceeded
	return last, nil
}

func decodeResponse(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return map[string]any{"text": snippet(body, 400)}
	}
	return out
}

func dedupeCandidates(in []WriteCandidate) []WriteCandidate {
	seen := make(map[string]bool, len(in))
	out := make([]WriteCandidate, 0, len(in))
	for _, cand := range in {
		k := cand.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, cand)
	}
	return out
}

// cloneRecord copies the top level of r.
func cloneRecord(r models.Record) models.Record {
	out := make(models.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
