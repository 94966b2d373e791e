package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-commerce/kestrel/internal/analytics"
	"github.com/opensource-commerce/kestrel/internal/attribution"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/export"
	"github.com/opensource-commerce/kestrel/internal/history"
	"github.com/opensource-commerce/kestrel/internal/repository"
	"github.com/opensource-commerce/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	registry  *rules.Registry
	history   *history.Service
	validator *rules.CustomEngine
	baseCfg   domain.AttributionConfig
	dashCfg   domain.DashboardConfig
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, registry *rules.Registry, hist *history.Service, baseCfg domain.AttributionConfig, dashCfg domain.DashboardConfig, version string) *Handler {
	// The validator engine compiles candidate rules without loading them
	// into any shop's engine.
	validator, err := rules.NewCustomEngine()
	if err != nil {
		// The CEL environment is static; a failure here is a programming
		// error, not a runtime condition.
		panic(fmt.Sprintf("failed to create rule validator: %v", err))
	}

	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		registry:  registry,
		history:   hist,
		validator: validator,
		baseCfg:   baseCfg,
		dashCfg:   dashCfg,
		version:   version,
	}
}

// IngestResponse is the response for POST /orders.
type IngestResponse struct {
	OrderID    string             `json:"orderId"`
	Channel    domain.Channel     `json:"channel"`
	Confidence domain.Confidence  `json:"confidence"`
	Narrative  string             `json:"narrative"`
	Signals    []string           `json:"signals,omitempty"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// IngestOrder handles POST /orders: classify, persist, publish.
func (h *Handler) IngestOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	shopID := GetShopID(ctx)
	traceID := GetTraceID(ctx)

	var order domain.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if order.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "order id is required",
		})
		return
	}
	if order.Currency == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "currency is required",
		})
		return
	}
	if order.TotalPrice < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "totalPrice must not be negative",
		})
		return
	}

	order.ShopID = shopID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.IngestedAt = time.Now().UTC()

	att, err := h.classify(r, shopID, attribution.Input{
		Referrer:       order.ReferringSite,
		LandingPage:    order.LandingSite,
		UTMSource:      order.UTMSource,
		UTMMedium:      order.UTMMedium,
		Tags:           order.Tags,
		NoteAttributes: order.NoteAttributes,
	})
	if err != nil {
		slog.Error("classification failed", "order_id", order.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "classification failed",
		})
		return
	}

	order.Channel = att.Channel
	order.DetectionNote = att.Narrative
	order.Signals = att.Signals

	if h.repo != nil {
		if err := h.repo.SaveOrder(ctx, shopID, &order); err != nil {
			slog.Error("failed to save order", "order_id", order.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save order",
			})
			return
		}
	}

	// A reclassified first order can flip the customer's acquisition
	// channel, so the memoized answer must go.
	if h.history != nil && order.CustomerID != "" {
		h.history.Invalidate(ctx, shopID, []string{order.CustomerID})
	}

	if h.bus != nil {
		payload, _ := json.Marshal(&order)
		if err := h.bus.Publish(ctx, shopID, domain.TopicOrderClassified, payload); err != nil {
			slog.Error("failed to publish classified order", "order_id", order.ID, "error", err)
		}
	}

	resp := IngestResponse{
		OrderID:    order.ID,
		Channel:    att.Channel,
		Confidence: att.Confidence,
		Narrative:  att.Narrative,
		Signals:    att.Signals,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// ClassifyRequest is the request body for POST /classify.
type ClassifyRequest struct {
	Referrer       string                 `json:"referrer,omitempty"`
	LandingPage    string                 `json:"landingPage,omitempty"`
	UTMSource      string                 `json:"utmSource,omitempty"`
	UTMMedium      string                 `json:"utmMedium,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	NoteAttributes []domain.NoteAttribute `json:"noteAttributes,omitempty"`
}

// Classify handles POST /classify: a dry run over raw signals without
// persisting anything.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	shopID := GetShopID(r.Context())

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	att, err := h.classify(r, shopID, attribution.Input{
		Referrer:       req.Referrer,
		LandingPage:    req.LandingPage,
		UTMSource:      req.UTMSource,
		UTMMedium:      req.UTMMedium,
		Tags:           req.Tags,
		NoteAttributes: req.NoteAttributes,
	})
	if err != nil {
		slog.Error("classification failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "classification failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, att)
}

// classify runs the detection chain with the shop's merchant rules
// layered over the built-in tables. The lang query parameter overrides
// the configured narrative language per request.
func (h *Handler) classify(r *http.Request, shopID string, in attribution.Input) (domain.Attribution, error) {
	ctx := r.Context()
	cfg := h.baseCfg

	if lang := r.URL.Query().Get("lang"); lang != "" {
		cfg.Language = lang
	}

	if h.repo != nil {
		domainRules, err := h.repo.ListDomainRules(ctx, shopID)
		if err != nil {
			return domain.Attribution{}, err
		}
		utmRules, err := h.repo.ListUTMRules(ctx, shopID)
		if err != nil {
			return domain.Attribution{}, err
		}
		cfg = cfg.WithMerchantRules(domainRules, utmRules)
	}

	eng := attribution.NewEngine()
	if h.registry != nil {
		custom, err := h.registry.ForShop(ctx, shopID)
		if err != nil {
			return domain.Attribution{}, err
		}
		eng.SetCustomMatcher(custom)
	}

	return eng.Classify(in, cfg), nil
}

// GetOrder retrieves a classified order by ID.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)
	orderID := chi.URLParam(r, "id")

	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "order id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	order, err := h.repo.GetOrder(ctx, shopID, orderID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get order", "id", orderID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "order not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, status, err := h.buildDashboard(r)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ExportDashboard handles GET /dashboard/export/{table}, streaming one
// dashboard table as CSV.
func (h *Handler) ExportDashboard(w http.ResponseWriter, r *http.Request) {
	table, err := export.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	d, status, err := h.buildDashboard(r)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	lang := h.lang(r)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="kestrel-%s-%s.csv"`, table, d.Range.Label))
	w.WriteHeader(http.StatusOK)

	if err := export.Write(w, d, table, lang); err != nil {
		slog.Error("csv export failed", "table", table, "error", err)
	}
}

func (h *Handler) lang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	return h.dashCfg.Language
}

// buildDashboard resolves query parameters, consults the cache and runs
// the aggregation over the shop's orders.
func (h *Handler) buildDashboard(r *http.Request) (*domain.Dashboard, int, error) {
	ctx := r.Context()
	shopID := GetShopID(ctx)
	q := r.URL.Query()

	if h.repo == nil {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("repository not available")
	}

	tzName := q.Get("tz")
	if tzName == "" {
		tzName = h.dashCfg.Timezone
	}
	loc := time.UTC
	if tzName != "" {
		var err error
		loc, err = time.LoadLocation(tzName)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("unknown timezone %q", tzName)
		}
	}

	rng, err := parseRange(q.Get("range"), q.Get("start"), q.Get("end"), loc)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	metric := domain.ParseMetric(q.Get("metric"))
	lang := h.lang(r)

	cacheKey := fmt.Sprintf("%d:%d:%s:%s:%s:%s",
		rng.Start.Unix(), rng.End.Unix(), metric, loc.String(), lang, h.dashCfg.PrimaryCurrency)
	if h.cache != nil {
		if cached, err := h.cache.GetDashboard(ctx, shopID, cacheKey); err == nil && cached != nil {
			return cached, http.StatusOK, nil
		}
	}

	orders, clamped, err := h.repo.ListOrdersByRange(ctx, shopID, rng.Start, rng.End, h.dashCfg.MaxOrdersPerQuery)
	if err != nil {
		slog.Error("failed to list orders", "shop_id", shopID, "error", err)
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to load orders")
	}

	// Cross-window acquisition lookup is best effort; the aggregation
	// falls back to in-window inference for customers it cannot resolve.
	var acquired map[string]bool
	if h.history != nil {
		ids := customerIDs(orders)
		if len(ids) > 0 {
			acquired, err = h.history.AcquiredViaAI(ctx, shopID, ids)
			if err != nil {
				slog.Warn("acquisition history lookup failed", "shop_id", shopID, "error", err)
				acquired = nil
			}
		}
	}

	d := analytics.BuildDashboard(orders, domain.AggregateQuery{
		Range:           rng,
		Metric:          metric,
		Timezone:        loc,
		PrimaryCurrency: h.dashCfg.PrimaryCurrency,
		Language:        lang,
		AcquiredViaAI:   acquired,
		Clamped:         clamped,
	})

	if h.cache != nil {
		ttl := time.Duration(h.dashCfg.CacheTTL) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		if err := h.cache.SetDashboard(ctx, shopID, cacheKey, d, ttl); err != nil {
			slog.Warn("failed to cache dashboard", "shop_id", shopID, "error", err)
		}
	}

	return d, http.StatusOK, nil
}

func customerIDs(orders []*domain.Order) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, o := range orders {
		if o.CustomerID == "" || seen[o.CustomerID] {
			continue
		}
		seen[o.CustomerID] = true
		ids = append(ids, o.CustomerID)
	}
	return ids
}

// parseRange resolves the range selector. Custom ranges take explicit
// bounds as RFC 3339 timestamps or plain dates in the query timezone.
func parseRange(kind, start, end string, loc *time.Location) (domain.DateRange, error) {
	if kind == string(domain.RangeCustom) || (kind == "" && start != "" && end != "") {
		startTime, err := parseRangeBound(start, loc)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("invalid start: %v", err)
		}
		endTime, err := parseRangeBound(end, loc)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("invalid end: %v", err)
		}
		return domain.NewCustomRange(startTime, endTime)
	}

	preset := domain.RangeKind(kind)
	switch preset {
	case domain.Range7d, domain.Range30d, domain.Range90d:
	case "":
		preset = domain.Range30d
	default:
		return domain.DateRange{}, fmt.Errorf("unknown range %q", kind)
	}
	return domain.NewPresetRange(preset, time.Now(), loc), nil
}

func parseRangeBound(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing bound")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListDomainRules returns the shop's merchant domain rules. The built-in
// tables are not included; they are implicit and cannot be removed.
func (h *Handler) ListDomainRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	domainRules, err := h.repo.ListDomainRules(ctx, shopID)
	if err != nil {
		slog.Error("failed to list domain rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list domain rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": domainRules,
		"count": len(domainRules),
	})
}

// DomainRuleRequest is the request body for creating a domain rule.
type DomainRuleRequest struct {
	Domain  string `json:"domain"`
	Channel string `json:"channel"`
}

// CreateDomainRule maps a referrer domain to a channel for this shop.
func (h *Handler) CreateDomainRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	var req DomainRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Domain == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "domain is required",
		})
		return
	}
	channel := domain.ParseChannel(req.Channel)
	if channel == domain.ChannelNone {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown channel: " + req.Channel,
		})
		return
	}

	rule := &domain.DomainRule{
		Domain:  req.Domain,
		Channel: channel,
		Source:  domain.RuleSourceCustom,
	}
	if err := h.repo.SaveDomainRule(ctx, shopID, rule); err != nil {
		slog.Error("failed to save domain rule", "domain", req.Domain, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save domain rule",
		})
		return
	}

	h.announceRuleChange(r, shopID)

	slog.Info("domain rule created", "shop_id", shopID, "domain", rule.Domain, "channel", rule.Channel)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteDomainRule removes a merchant domain rule.
func (h *Handler) DeleteDomainRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)
	ruleDomain := chi.URLParam(r, "domain")

	if err := h.repo.DeleteDomainRule(ctx, shopID, ruleDomain); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "domain rule not found",
		})
		return
	}

	h.announceRuleChange(r, shopID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "domain rule deleted",
	})
}

// ListUTMRules returns the shop's merchant utm_source rules.
func (h *Handler) ListUTMRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	utmRules, err := h.repo.ListUTMRules(ctx, shopID)
	if err != nil {
		slog.Error("failed to list utm rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list utm rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": utmRules,
		"count": len(utmRules),
	})
}

// UTMRuleRequest is the request body for creating a utm_source rule.
type UTMRuleRequest struct {
	Value   string `json:"value"`
	Channel string `json:"channel"`
}

// CreateUTMRule maps an exact utm_source value to a channel.
func (h *Handler) CreateUTMRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	var req UTMRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Value == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "value is required",
		})
		return
	}
	channel := domain.ParseChannel(req.Channel)
	if channel == domain.ChannelNone {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown channel: " + req.Channel,
		})
		return
	}

	rule := &domain.UTMRule{
		Value:   req.Value,
		Channel: channel,
		Source:  domain.RuleSourceCustom,
	}
	if err := h.repo.SaveUTMRule(ctx, shopID, rule); err != nil {
		slog.Error("failed to save utm rule", "value", req.Value, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save utm rule",
		})
		return
	}

	h.announceRuleChange(r, shopID)

	slog.Info("utm rule created", "shop_id", shopID, "value", rule.Value, "channel", rule.Channel)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteUTMRule removes a merchant utm_source rule.
func (h *Handler) DeleteUTMRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)
	value := chi.URLParam(r, "value")

	if err := h.repo.DeleteUTMRule(ctx, shopID, value); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "utm rule not found",
		})
		return
	}

	h.announceRuleChange(r, shopID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "utm rule deleted",
	})
}

// ListCustomRules returns the shop's enabled CEL rules.
func (h *Handler) ListCustomRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	customRules, err := h.repo.ListCustomRules(ctx, shopID)
	if err != nil {
		slog.Error("failed to list custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list custom rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": customRules,
		"count": len(customRules),
	})
}

// GetCustomRule retrieves a CEL rule by ID.
func (h *Handler) GetCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetCustomRule(ctx, shopID, ruleID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CustomRuleRequest is the request body for creating a CEL rule.
type CustomRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Channel     string `json:"channel"`
	Enabled     bool   `json:"enabled"`
}

// CreateCustomRule validates, persists and activates a merchant CEL rule.
func (h *Handler) CreateCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	var req CustomRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	channel := domain.ParseChannel(req.Channel)
	if channel == domain.ChannelNone {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown channel: " + req.Channel,
		})
		return
	}

	rule := &domain.CustomRule{
		ID:          req.ID,
		ShopID:      shopID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Channel:     channel,
		Enabled:     req.Enabled,
	}

	if err := h.validator.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveCustomRule(ctx, shopID, rule); err != nil {
		slog.Error("failed to save custom rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	h.registry.Invalidate(shopID)
	h.announceRuleChange(r, shopID)

	slog.Info("custom rule created", "shop_id", shopID, "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteCustomRule disables a merchant CEL rule.
func (h *Handler) DeleteCustomRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteCustomRule(ctx, shopID, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	h.registry.Invalidate(shopID)
	h.announceRuleChange(r, shopID)

	slog.Info("custom rule deleted", "shop_id", shopID, "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// ReloadRules drops the shop's compiled engine so the next classification
// recompiles from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopID := GetShopID(ctx)

	h.registry.Invalidate(shopID)
	h.announceRuleChange(r, shopID)

	eng, err := h.registry.ForShop(ctx, shopID)
	if err != nil {
		slog.Error("failed to reload rules", "shop_id", shopID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules",
		})
		return
	}

	slog.Info("rules reloaded", "shop_id", shopID, "count", eng.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   eng.RulesCount(),
	})
}

// announceRuleChange notifies interested consumers (async workers on
// other processes) that the shop's rule tables changed.
func (h *Handler) announceRuleChange(r *http.Request, shopID string) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"changedAt": time.Now().UTC().Format(time.RFC3339),
		"requestId": uuid.New().String(),
	})
	if err := h.bus.Publish(r.Context(), shopID, domain.TopicRulesUpdated, payload); err != nil {
		slog.Error("failed to publish rule change", "shop_id", shopID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
