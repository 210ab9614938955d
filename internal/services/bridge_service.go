package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/benchwork/procurement-bridge/internal/automation"
	"github.com/benchwork/procurement-bridge/internal/config"
	"github.com/benchwork/procurement-bridge/internal/matching"
	"github.com/benchwork/procurement-bridge/internal/metrics"
	"github.com/benchwork/procurement-bridge/internal/models"
	"github.com/benchwork/procurement-bridge/internal/repo"
	"github.com/benchwork/procurement-bridge/internal/utils"
)

// ReceivedStatus is written onto an order once it is fully received.
const ReceivedStatus = "RECEIVED"

// Gateway is the subset of the procurement client the workflows depend on.
type Gateway interface {
	Enabled() bool
	Config() config.ServiceConfig
	FetchOrders(ctx context.Context, statuses []string, lab string, opts repo.FetchOptions) ([]models.OrderRequest, models.FetchReport)
	GetOrder(ctx context.Context, orderID string) (*models.OrderRequest, models.FetchReport)
	UpdateOrderStatus(ctx context.Context, orderID, status string) models.WriteReport
	UpdateOrderNotes(ctx context.Context, orderID, notes string) models.WriteReport
	FetchInventory(ctx context.Context, lab string, opts repo.FetchOptions) ([]models.InventoryItem, models.FetchReport)
	CollectLocations(ctx context.Context, lab string, opts repo.FetchOptions) (models.LocationSummary, models.FetchReport)
	UpdateInventoryQuantity(ctx context.Context, in models.QuantityUpdate) models.WriteReport
	CreateInventoryItem(ctx context.Context, in models.NewInventoryItem) models.WriteReport
	UpdateItemLocation(ctx context.Context, itemID, location, subLocation string) models.WriteReport
	ItemLink(itemID string) string
	PrefillLink(name, vendor, catalogNumber, location string) string
	ClearCaches(ctx context.Context) error
}

// BridgeService composes the procurement client, the matching engine and the
// automation runner into the receive and upsert workflows.
type BridgeService struct {
	logger    *slog.Logger
	gateway   Gateway
	engine    *matching.Engine
	runner    automation.Runner
	latencies *utils.LatencyTracker
	ready     atomic.Bool
}

// NewBridgeService constructs the workflow facade. runner may be nil, in which
// case failed writes are reported without a hand-off.
func NewBridgeService(logger *slog.Logger, gateway Gateway, engine *matching.Engine, runner automation.Runner) *BridgeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BridgeService{
		logger:    logger,
		gateway:   gateway,
		engine:    engine,
		runner:    runner,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// FetchOrders lists order requests filtered by status tokens.
func (s *BridgeService) FetchOrders(ctx context.Context, statuses []string, lab string, opts repo.FetchOptions) ([]models.OrderRequest, models.FetchReport) {
	start := time.Now()
	orders, report := s.gateway.FetchOrders(ctx, statuses, lab, opts)
	s.observe("fetch_orders", start, report.Reason == "")
	return orders, report
}

// FindCandidates ranks the lab's inventory against q.
func (s *BridgeService) FindCandidates(ctx context.Context, q models.MatchQuery, limit int) ([]models.MatchCandidate, models.FetchReport) {
	start := time.Now()
	items, report := s.gateway.FetchInventory(ctx, q.LabID, repo.FetchOptions{})
	candidates := s.engine.FindCandidates(q, items, limit)
	s.observe("find_candidates", start, report.Reason == "")
	return candidates, report
}

// FindBest returns the top-ranked inventory candidate for q.
func (s *BridgeService) FindBest(ctx context.Context, q models.MatchQuery) (models.MatchCandidate, bool, models.FetchReport) {
	start := time.Now()
	items, report := s.gateway.FetchInventory(ctx, q.LabID, repo.FetchOptions{})
	best, ok := s.engine.FindBest(q, items)
	s.observe("find_best", start, report.Reason == "")
	return best, ok, report
}

// Locations summarises storage locations seen in the lab's inventory.
func (s *BridgeService) Locations(ctx context.Context, lab string, refresh bool) (models.LocationSummary, models.FetchReport) {
	start := time.Now()
	summary, report := s.gateway.CollectLocations(ctx, lab, repo.FetchOptions{Refresh: refresh})
	s.observe("locations", start, report.Reason == "")
	return summary, report
}

// UpdateQuantity writes an item quantity and hands the change off to UI
// automation when every API variant failed.
func (s *BridgeService) UpdateQuantity(ctx context.Context, in models.QuantityUpdate) models.QuantityResult {
	start := time.Now()
	report := s.gateway.UpdateInventoryQuantity(ctx, in)
	result := models.QuantityResult{Report: report}
	if !report.Success && report.Reason == models.ReasonNoVariantSucceeded {
		result.Handoff = s.handOffQuantity(ctx, in.ItemID, report, in.Quantity)
	}
	s.observe("update_quantity", start, report.Success)
	return result
}

// ReceiveOrder adds the received quantity to the strictly matching inventory
// item and marks the order received. Nothing is written when the inventory
// cannot be read or no item matches; the caller gets the order URL instead.
// A partial receipt leaves the status alone and adjusts the order instead,
// when partial handling is enabled.
func (s *BridgeService) ReceiveOrder(ctx context.Context, in models.ReceiveRequest) models.ReceiveResult {
	start := time.Now()
	result := models.ReceiveResult{OrderID: strings.TrimSpace(in.OrderID)}
	if result.OrderID == "" {
		result.Reason = models.ReasonMissingOrderID
		s.observe("receive_order", start, false)
		return result
	}

	order, report := s.gateway.GetOrder(ctx, result.OrderID)
	if order == nil {
		result.Reason = firstNonEmpty(report.Reason, models.ReasonOrderNotFound)
		s.observe("receive_order", start, false)
		return result
	}
	result.OrderURL = order.AppURL
	result.Received = order.QuantityExpected
	if in.ReceivedQuantity != nil {
		result.Received = max(0, *in.ReceivedQuantity)
	}

	lab := firstNonEmpty(in.LabID, order.LabID)
	items, inventory := s.gateway.FetchInventory(ctx, lab, repo.FetchOptions{})
	if inventory.Reason != "" {
		result.Reason = inventory.Reason
		s.finishReceive(start, result)
		return result
	}
	q := models.MatchQuery{Name: order.Name, Vendor: order.Vendor, CatalogNumber: order.CatalogNumber, LabID: lab}
	item, ok := matching.StrictMatch(q, items)
	if !ok {
		result.Reason = models.ReasonNoInventoryMatch
		s.finishReceive(start, result)
		return result
	}
	result.Item = &item
	result.ItemURL = s.gateway.ItemLink(item.ID)

	var (
		inventoryOK  bool
		inventoryWhy string
		orderOK      bool
		orderWhy     string
		handoffs     [2]*models.Handoff
	)
	var g errgroup.Group
	g.Go(func() error {
		inventoryOK, inventoryWhy, handoffs[0] = s.receiveIntoInventory(ctx, item, result.Received, &result)
		return nil
	})
	g.Go(func() error {
		orderOK, orderWhy, handoffs[1] = s.receiveOrderStatus(ctx, order, result.Received, &result)
		return nil
	})
	_ = g.Wait()

	for _, h := range handoffs {
		if h != nil {
			result.Handoffs = append(result.Handoffs, *h)
		}
	}
	result.Success = inventoryOK && orderOK
	if !inventoryOK {
		result.Reason = inventoryWhy
	} else if !orderOK {
		result.Reason = orderWhy
	}
	s.finishReceive(start, result)
	return result
}

func (s *BridgeService) finishReceive(start time.Time, result models.ReceiveResult) {
	s.logger.Info("order received",
		slog.String("order_id", result.OrderID),
		slog.Int("received_qty", result.Received),
		slog.Bool("success", result.Success),
		slog.String("reason", result.Reason),
	)
	s.observe("receive_order", start, result.Success)
}

// receiveIntoInventory adds received to the matched item. It writes only the
// quantity field of out.
func (s *BridgeService) receiveIntoInventory(ctx context.Context, item models.InventoryItem, received int, out *models.ReceiveResult) (bool, string, *models.Handoff) {
	report := s.gateway.UpdateInventoryQuantity(ctx, models.QuantityUpdate{
		ItemID:        item.ID,
		Delta:         models.IntPtr(received),
		Name:          item.Name,
		Vendor:        item.Vendor,
		CatalogNumber: item.CatalogNumber,
	})
	out.Quantity = &report
	if report.Success {
		return true, "", nil
	}
	var handoff *models.Handoff
	if report.Reason == models.ReasonNoVariantSucceeded {
		handoff = s.handOffQuantity(ctx, item.ID, report, nil)
	}
	return false, report.Reason, handoff
}

// receiveOrderStatus writes only the order fields of out.
func (s *BridgeService) receiveOrderStatus(ctx context.Context, order *models.OrderRequest, received int, out *models.ReceiveResult) (bool, string, *models.Handoff) {
	cfg := s.gateway.Config()
	if !cfg.EnablePartialStatus || order.QuantityExpected <= 0 || received >= order.QuantityExpected {
		report := s.gateway.UpdateOrderStatus(ctx, order.ID, ReceivedStatus)
		out.Status = &report
		return report.Success, report.Reason, nil
	}

	partial := &models.PartialReceipt{
		Ordered:   order.QuantityExpected,
		Received:  received,
		Remaining: max(0, order.QuantityExpected-received),
		Message:   fmt.Sprintf("Partial Reception %d/%d", received, order.QuantityExpected),
	}
	out.Partial = partial

	if cfg.PartialAdjustMode == "api" {
		notes := strings.TrimSpace(strings.TrimSpace(order.Notes) + "\n" + partial.Message)
		report := s.gateway.UpdateOrderNotes(ctx, order.ID, notes)
		out.Notes = &report
		return report.Success, report.Reason, nil
	}

	handoff := s.handOff(ctx, automation.KindAdjustOrder, map[string]any{
		"order_id":        order.ID,
		"target_quantity": partial.Remaining,
		"order_url":       order.AppURL,
	})
	if !handoff.Started {
		return false, models.ReasonPartialReceipt, handoff
	}
	return true, "", handoff
}

// UpsertInventory adds stock to a matching item, or creates the item when no
// match exists. Anything the API cannot do is handed off with a prefill link.
func (s *BridgeService) UpsertInventory(ctx context.Context, in models.UpsertRequest) models.UpsertResult {
	start := time.Now()
	result := s.upsert(ctx, in)
	s.logger.Info("inventory upsert",
		slog.String("name", in.Name),
		slog.String("action", result.Action),
		slog.Bool("success", result.Success),
		slog.String("reason", result.Reason),
	)
	s.observe("upsert_inventory", start, result.Success)
	return result
}

func (s *BridgeService) upsert(ctx context.Context, in models.UpsertRequest) models.UpsertResult {
	q := models.MatchQuery{Name: in.Name, Vendor: in.Vendor, CatalogNumber: in.CatalogNumber, LabID: in.LabID}
	if q.Empty() {
		return models.UpsertResult{Action: models.ActionSkipped, Reason: models.ReasonItemNameRequired}
	}

	items, _ := s.gateway.FetchInventory(ctx, in.LabID, repo.FetchOptions{})
	if best, ok := s.engine.FindBest(q, items); ok {
		item := best.Item
		result := models.UpsertResult{Matched: true, Item: &item, ItemURL: s.gateway.ItemLink(item.ID)}
		if in.Quantity == nil {
			result.Success = true
			result.Action = models.ActionSkipped
			result.Reason = models.ReasonNoQuantityProvided
			return result
		}
		report := s.gateway.UpdateInventoryQuantity(ctx, models.QuantityUpdate{
			ItemID:        item.ID,
			Delta:         in.Quantity,
			Name:          in.Name,
			Vendor:        in.Vendor,
			CatalogNumber: in.CatalogNumber,
		})
		result.Quantity = &report
		if report.Success {
			result.Success = true
			result.Action = models.ActionUpdated
			return result
		}
		result.Reason = report.Reason
		if report.Reason == models.ReasonNoVariantSucceeded {
			result.Handoff = s.handOffQuantity(ctx, item.ID, report, nil)
			result.Action = models.ActionHandedOff
		}
		return result
	}

	result := models.UpsertResult{PrefillURL: s.gateway.PrefillLink(in.Name, in.Vendor, in.CatalogNumber, in.Location)}
	if s.gateway.Config().AllowAPICreate {
		report := s.gateway.CreateInventoryItem(ctx, models.NewInventoryItem{
			Name:          in.Name,
			Vendor:        in.Vendor,
			CatalogNumber: in.CatalogNumber,
			Quantity:      in.Quantity,
			Location:      in.Location,
			SubLocation:   in.SubLocation,
			LabID:         in.LabID,
		})
		result.Create = &report
		if report.Success {
			result.Success = true
			result.Action = models.ActionCreated
			if report.CreatedID != "" {
				result.ItemURL = s.gateway.ItemLink(report.CreatedID)
				if in.Location != "" || in.SubLocation != "" {
					loc := s.gateway.UpdateItemLocation(ctx, report.CreatedID, in.Location, in.SubLocation)
					result.Location = &loc
				}
			}
			return result
		}
		result.PrefillURL = firstNonEmpty(report.PrefillURL, result.PrefillURL)
	}

	payload := map[string]any{
		"name":           in.Name,
		"vendor":         in.Vendor,
		"catalog_number": in.CatalogNumber,
		"location":       in.Location,
		"sub_location":   in.SubLocation,
		"prefill_url":    result.PrefillURL,
	}
	if in.Quantity != nil {
		payload["quantity"] = *in.Quantity
	}
	result.Handoff = s.handOff(ctx, automation.KindAddItem, payload)
	result.Action = models.ActionHandedOff
	result.Reason = models.ReasonNoInventoryMatch
	return result
}

// ClearCaches drops cached collections. Discovery state is kept.
func (s *BridgeService) ClearCaches(ctx context.Context) error {
	return s.gateway.ClearCaches(ctx)
}

// JobStatus reports a hand-off job.
func (s *BridgeService) JobStatus(ctx context.Context, id string) (automation.JobState, error) {
	if s.runner == nil {
		return automation.JobState{}, automation.ErrJobNotFound
	}
	return s.runner.Status(ctx, id)
}

// Warm primes endpoint discovery and the location cache. The service reports
// ready after the first successful warm-up.
func (s *BridgeService) Warm(ctx context.Context) error {
	start := time.Now()
	if !s.gateway.Enabled() {
		s.observe("warm", start, false)
		return utils.NewAppError("warm", "procurement client disabled or token missing", nil)
	}
	lab := s.gateway.Config().LabID
	_, report := s.gateway.FetchOrders(ctx, nil, lab, repo.FetchOptions{Refresh: true})
	if report.Reason != "" {
		s.observe("warm", start, false)
		return utils.NewAppError("warm", "orders fetch failed: "+report.Reason, nil)
	}
	summary, _ := s.gateway.CollectLocations(ctx, lab, repo.FetchOptions{Refresh: true})
	s.ready.Store(true)
	s.logger.Info("warm-up complete",
		slog.String("endpoint", report.Endpoint),
		slog.Int("pages", report.PagesFetched),
		slog.Int("locations", len(summary.Locations)),
	)
	s.observe("warm", start, true)
	return nil
}

// Ready reports whether a warm-up has succeeded.
func (s *BridgeService) Ready() bool {
	return s.ready.Load()
}

// LatencyP95 returns the current p95 operation latency.
func (s *BridgeService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *BridgeService) handOffQuantity(ctx context.Context, itemID string, report models.WriteReport, absolute *int) *models.Handoff {
	payload := map[string]any{
		"item_id":  itemID,
		"item_url": firstNonEmpty(report.ItemURL, s.gateway.ItemLink(itemID)),
	}
	switch {
	case report.TargetQuantity != nil:
		payload["target_quantity"] = *report.TargetQuantity
	case absolute != nil:
		payload["target_quantity"] = *absolute
	}
	return s.handOff(ctx, automation.KindUpdateQuantity, payload)
}

func (s *BridgeService) handOff(ctx context.Context, kind automation.Kind, payload map[string]any) *models.Handoff {
	handoff := &models.Handoff{Kind: string(kind)}
	if s.runner == nil {
		handoff.Error = "automation_disabled"
		return handoff
	}
	id, err := s.runner.Start(ctx, automation.Job{Kind: kind, Payload: payload})
	if err != nil {
		handoff.Error = err.Error()
		s.logger.Warn("automation hand-off failed", slog.String("kind", string(kind)), slog.Any("error", err))
		return handoff
	}
	handoff.Started = true
	handoff.JobID = id
	s.logger.Info("automation hand-off started", slog.String("kind", string(kind)), slog.String("job_id", id))
	return handoff
}

func (s *BridgeService) observe(op string, start time.Time, ok bool) {
	duration := time.Since(start)
	metrics.ObserveOperation(op, duration, ok)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("operation latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
