// Package api exposes a desk over HTTP for the presentation layer: read-only
// projections of prices, curves, option chains, trades and risk, plus the
// trader commands that are the only way to change desk state.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/energydesk/market-engine/internal/alerts"
	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/engine"
	"github.com/energydesk/market-engine/internal/limits"
	"github.com/energydesk/market-engine/internal/market"
	"github.com/energydesk/market-engine/internal/model"
	"github.com/energydesk/market-engine/internal/options"
	"github.com/energydesk/market-engine/internal/orders"
)

// Service serves one desk.
type Service struct {
	desk *engine.Desk
	ws   http.HandlerFunc
}

// NewService creates the HTTP service. ws may be nil when WebSocket
// streaming is not needed.
func NewService(desk *engine.Desk, ws http.HandlerFunc) *Service {
	return &Service{desk: desk, ws: ws}
}

// Mount registers every route on r, typically under /api/v1.
func (s *Service) Mount(r chi.Router) {
	r.Get("/instruments", s.ListInstruments)
	r.Get("/quotes", s.ListQuotes)
	r.Get("/instruments/{hub}/history", s.GetHistory)
	r.Get("/instruments/{hub}/curve", s.GetCurve)
	r.Get("/instruments/{hub}/chain", s.GetChain)

	r.Get("/orders", s.ListOrders)
	r.Post("/orders", s.SubmitOrder)
	r.Delete("/orders/{orderID}", s.CancelOrder)

	r.Get("/trades", s.ListTrades)
	r.Get("/trades/{tradeID}", s.GetTrade)
	r.Post("/trades/{tradeID}/close", s.CloseTrade)
	r.Patch("/trades/{tradeID}/protection", s.UpdateProtection)
	r.Delete("/trades/{tradeID}", s.DeleteTrade)

	r.Get("/positions", s.GetPositions)
	r.Get("/risk", s.GetRisk)
	r.Get("/risk/stress", s.GetStress)
	r.Get("/risk/equity", s.GetEquityCurve)
	r.Get("/margin", s.GetMargin)

	r.Get("/alerts", s.ListAlerts)
	r.Post("/alerts", s.CreateAlert)
	r.Patch("/alerts/{alertID}", s.UpdateAlert)
	r.Delete("/alerts/{alertID}", s.DeleteAlert)

	r.Get("/settings", s.GetSettings)
	r.Put("/settings", s.UpdateSettings)

	r.Post("/tick", s.Tick)
	r.Post("/reset", s.Reset)

	if s.ws != nil {
		r.Get("/ws", s.ws)
	}
}

// --- Request types ---

// ProtectionRequest replaces a trade's stop-loss and target. A null field
// clears that level.
type ProtectionRequest struct {
	StopLoss *float64 `json:"stop_loss"`
	Target   *float64 `json:"target_exit"`
}

// AlertRequest is the JSON body for POST /alerts.
type AlertRequest struct {
	Kind  model.AlertKind `json:"kind"`
	Hub   string          `json:"hub"`
	Value float64         `json:"value"`
}

// AlertPatch is the JSON body for PATCH /alerts/{alertID}.
type AlertPatch struct {
	Enabled *bool `json:"enabled"`
}

// SettingsRequest is the JSON body for PUT /settings.
type SettingsRequest struct {
	StartingBalance decimal.Decimal `json:"starting_balance"`
}

// InstrumentView is an instrument with the types tradable on it.
type InstrumentView struct {
	catalog.Instrument
	Types []catalog.InstrumentType `json:"types"`
}

// --- Market data ---

// ListInstruments handles GET /instruments, optionally ?sector=gas.
func (s *Service) ListInstruments(w http.ResponseWriter, r *http.Request) {
	insts := s.desk.Catalog().Instruments()
	if sec := r.URL.Query().Get("sector"); sec != "" {
		parsed, err := catalog.ParseSector(sec)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		insts = s.desk.Catalog().BySector(parsed)
	}
	out := make([]InstrumentView, 0, len(insts))
	for _, inst := range insts {
		out = append(out, InstrumentView{Instrument: inst, Types: catalog.TypesFor(inst.Sector)})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListQuotes handles GET /quotes.
func (s *Service) ListQuotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Quotes())
}

// GetHistory handles GET /instruments/{hub}/history.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.desk.History(hubParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hub": hubParam(r), "prices": hist})
}

// GetCurve handles GET /instruments/{hub}/curve.
func (s *Service) GetCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := s.desk.Curve(hubParam(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hub": hubParam(r), "curve": curve})
}

// GetChain handles GET /instruments/{hub}/chain?expiry=0&strikes=11.
func (s *Service) GetChain(w http.ResponseWriter, r *http.Request) {
	expiry, err := intQuery(r, "expiry", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	strikes, err := intQuery(r, "strikes", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	chain, err := s.desk.Chain(hubParam(r), expiry, strikes)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// --- Orders and trades ---

// ListOrders handles GET /orders.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Pending())
}

// SubmitOrder handles POST /orders. MARKET orders answer 201 with the
// trade; resting orders answer 202 with the pending order.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.desk.Submit(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusAccepted
	if res.Trade != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// CancelOrder handles DELETE /orders/{orderID}.
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.desk.Cancel(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListTrades handles GET /trades, optionally ?status=OPEN.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.desk.Trades()
	if st := r.URL.Query().Get("status"); st != "" {
		filtered := make([]model.Trade, 0, len(trades))
		for _, t := range trades {
			if string(t.Status) == st {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetTrade handles GET /trades/{tradeID}.
func (s *Service) GetTrade(w http.ResponseWriter, r *http.Request) {
	t, err := s.desk.Trade(chi.URLParam(r, "tradeID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CloseTrade handles POST /trades/{tradeID}/close.
func (s *Service) CloseTrade(w http.ResponseWriter, r *http.Request) {
	t, err := s.desk.CloseTrade(r.Context(), chi.URLParam(r, "tradeID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateProtection handles PATCH /trades/{tradeID}/protection.
func (s *Service) UpdateProtection(w http.ResponseWriter, r *http.Request) {
	var req ProtectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	t, err := s.desk.UpdateProtection(r.Context(), chi.URLParam(r, "tradeID"), req.StopLoss, req.Target)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTrade handles DELETE /trades/{tradeID}.
func (s *Service) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	if err := s.desk.DeleteTrade(r.Context(), chi.URLParam(r, "tradeID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Risk ---

// GetPositions handles GET /positions.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Positions())
}

// GetRisk handles GET /risk.
func (s *Service) GetRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Risk())
}

// GetStress handles GET /risk/stress.
func (s *Service) GetStress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Stress())
}

// GetEquityCurve handles GET /risk/equity.
func (s *Service) GetEquityCurve(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.EquityCurve())
}

// GetMargin handles GET /margin?type=PHYS_FIXED&volume=10000.
func (s *Service) GetMargin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ, err := catalog.ParseInstrumentType(q.Get("type"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	vol, err := decimal.NewFromString(q.Get("volume"))
	if err != nil || vol.IsNegative() {
		writeError(w, "volume must be a non-negative number", http.StatusBadRequest)
		return
	}
	m, err := s.desk.Margin(typ, vol)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- Alerts and settings ---

// ListAlerts handles GET /alerts.
func (s *Service) ListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Alerts())
}

// CreateAlert handles POST /alerts.
func (s *Service) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	a, err := s.desk.AddAlert(r.Context(), req.Kind, req.Hub, req.Value)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAlert handles PATCH /alerts/{alertID}.
func (s *Service) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	var req AlertPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, "body must set enabled", http.StatusBadRequest)
		return
	}
	a, err := s.desk.SetAlertEnabled(r.Context(), chi.URLParam(r, "alertID"), *req.Enabled)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAlert handles DELETE /alerts/{alertID}.
func (s *Service) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.desk.RemoveAlert(r.Context(), chi.URLParam(r, "alertID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /settings.
func (s *Service) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Settings())
}

// UpdateSettings handles PUT /settings.
func (s *Service) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	st, err := s.desk.SetStartingBalance(r.Context(), req.StartingBalance)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Simulation control ---

// Tick handles POST /tick: one extra step outside the timer.
func (s *Service) Tick(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.desk.Tick(r.Context()))
}

// Reset handles POST /reset.
func (s *Service) Reset(w http.ResponseWriter, r *http.Request) {
	if err := s.desk.Reset(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func hubParam(r *http.Request) string {
	raw := chi.URLParam(r, "hub")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrValidation),
		errors.Is(err, catalog.ErrInvalidTypeCode),
		errors.Is(err, catalog.ErrUnsupportedType),
		errors.Is(err, catalog.ErrTypeNotInSector),
		errors.Is(err, alerts.ErrInvalidAlert),
		errors.Is(err, engine.ErrInvalidSettings),
		errors.Is(err, options.ErrInvalidExpiry),
		errors.Is(err, options.ErrInvalidStrikes):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrTradeNotFound),
		errors.Is(err, alerts.ErrAlertNotFound),
		errors.Is(err, market.ErrUnknownInstrument),
		errors.Is(err, catalog.ErrUnknownInstrument):
		return http.StatusNotFound
	case errors.Is(err, model.ErrTradeClosed),
		errors.Is(err, orders.ErrDeleteWindowElapsed):
		return http.StatusConflict
	case errors.Is(err, limits.ErrPerInstrumentLimitExceeded),
		errors.Is(err, limits.ErrSectorLimitExceeded),
		errors.Is(err, options.ErrInvalidForward):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrMarketDataMissing),
		errors.Is(err, market.ErrNoMarketData):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
