// Package handler contains the HTTP handlers of the VTU engine API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shabalink/vtu-engine/internal/ledger"
	"github.com/shabalink/vtu-engine/internal/middleware"
	"github.com/shabalink/vtu-engine/internal/model"
	"github.com/shabalink/vtu-engine/internal/pricing"
	"github.com/shabalink/vtu-engine/internal/provider"
	"github.com/shabalink/vtu-engine/internal/service"
)

// Service is the orchestrator contract used by the HTTP handlers.
type Service interface {
	Purchase(ctx context.Context, userID int64, req service.PurchaseRequest) (*service.PurchaseResult, error)
	VerifyCustomer(ctx context.Context, req service.VerifyRequest) (*provider.CustomerIdentity, error)
	ListPlans(ctx context.Context, svc model.ServiceType, scopeID string, tier model.Tier) ([]model.PricedPlan, error)
	UpgradeTier(ctx context.Context, userID int64, target model.Tier, pin string) (*service.PurchaseResult, error)
	Account(ctx context.Context, userID int64) (*model.Account, error)
	Transactions(ctx context.Context, userID int64) ([]model.Transaction, error)
}

// Handler implements the HTTP API of the VTU engine.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler set.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps orchestrator errors onto the API status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, service.ErrInvalidPin):
		writeError(w, http.StatusForbidden, "Invalid PIN")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, service.ErrPriceMismatch),
		errors.Is(err, service.ErrInvalidPlan),
		errors.Is(err, service.ErrUnpricedPlan),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidTier),
		errors.Is(err, service.ErrSameTier),
		errors.Is(err, pricing.ErrInvalidServiceType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrRejected), errors.Is(err, provider.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type purchaseResponse struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Reference  string  `json:"reference"`
	NewBalance float64 `json:"new_balance"`
}

func (h *Handler) writePurchaseResult(w http.ResponseWriter, result *service.PurchaseResult) {
	writeJSON(w, http.StatusOK, purchaseResponse{
		Success:    true,
		Message:    result.Message,
		Reference:  result.Reference,
		NewBalance: model.KoboToNaira(result.NewBalance),
	})
}

type airtimeRequest struct {
	NetworkID      string  `json:"network_id"`
	Phone          string  `json:"phone"`
	Amount         float64 `json:"amount"`
	PIN            string  `json:"pin"`
	ExpectedAmount float64 `json:"expected_amount"`
}

// BuyAirtime delivers airtime at face value, charged from the wallet.
func (h *Handler) BuyAirtime(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req airtimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Purchase(r.Context(), userID, service.PurchaseRequest{
		Service:      model.ServiceAirtime,
		NetworkID:    req.NetworkID,
		Phone:        req.Phone,
		AmountKobo:   model.NairaToKobo(req.Amount),
		PIN:          req.PIN,
		ExpectedKobo: model.NairaToKobo(req.ExpectedAmount),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writePurchaseResult(w, result)
}

type dataRequest struct {
	NetworkID      string  `json:"network_id"`
	PlanID         string  `json:"plan_id"`
	Phone          string  `json:"phone"`
	PIN            string  `json:"pin"`
	ExpectedAmount float64 `json:"expected_amount"`
	CostOverride   float64 `json:"cost_override"`
}

// BuyData purchases a data plan, resolving the cost from a fresh catalog fetch.
func (h *Handler) BuyData(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req dataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Purchase(r.Context(), userID, service.PurchaseRequest{
		Service:          model.ServiceData,
		NetworkID:        req.NetworkID,
		PlanID:           req.PlanID,
		Phone:            req.Phone,
		PIN:              req.PIN,
		ExpectedKobo:     model.NairaToKobo(req.ExpectedAmount),
		CostOverrideKobo: model.NairaToKobo(req.CostOverride),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writePurchaseResult(w, result)
}

type cableRequest struct {
	Action         string  `json:"action"`
	CableID        string  `json:"cable_id"`
	PlanID         string  `json:"plan_id"`
	Smartcard      string  `json:"smartcard"`
	Phone          string  `json:"phone"`
	PIN            string  `json:"pin"`
	ExpectedAmount float64 `json:"expected_amount"`
	CostOverride   float64 `json:"cost_override"`
}

// Cable handles the verify and purchase actions for cable subscriptions.
func (h *Handler) Cable(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req cableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Action {
	case "verify":
		identity, err := h.service.VerifyCustomer(r.Context(), service.VerifyRequest{
			Service:   model.ServiceCable,
			ScopeID:   req.CableID,
			Smartcard: req.Smartcard,
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": identity})
	case "purchase":
		result, err := h.service.Purchase(r.Context(), userID, service.PurchaseRequest{
			Service:          model.ServiceCable,
			NetworkID:        req.CableID,
			PlanID:           req.PlanID,
			Smartcard:        req.Smartcard,
			Phone:            req.Phone,
			PIN:              req.PIN,
			ExpectedKobo:     model.NairaToKobo(req.ExpectedAmount),
			CostOverrideKobo: model.NairaToKobo(req.CostOverride),
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writePurchaseResult(w, result)
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
	}
}

type electricityRequest struct {
	Action         string  `json:"action"`
	DiscoID        string  `json:"disco_id"`
	MeterNumber    string  `json:"meter_number"`
	MeterType      string  `json:"meter_type"`
	Amount         float64 `json:"amount"`
	Phone          string  `json:"phone"`
	PIN            string  `json:"pin"`
	ExpectedAmount float64 `json:"expected_amount"`
}

// Electricity handles the verify and purchase actions for electricity tokens.
func (h *Handler) Electricity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req electricityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Action {
	case "verify":
		identity, err := h.service.VerifyCustomer(r.Context(), service.VerifyRequest{
			Service:     model.ServiceElectricity,
			ScopeID:     req.DiscoID,
			MeterNumber: req.MeterNumber,
			MeterType:   req.MeterType,
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": identity})
	case "purchase":
		result, err := h.service.Purchase(r.Context(), userID, service.PurchaseRequest{
			Service:      model.ServiceElectricity,
			NetworkID:    req.DiscoID,
			MeterNumber:  req.MeterNumber,
			MeterType:    req.MeterType,
			Phone:        req.Phone,
			AmountKobo:   model.NairaToKobo(req.Amount),
			PIN:          req.PIN,
			ExpectedKobo: model.NairaToKobo(req.ExpectedAmount),
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writePurchaseResult(w, result)
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
	}
}

type verifyRequest struct {
	Type        string `json:"type"`
	CableID     string `json:"cable_id"`
	DiscoID     string `json:"disco_id"`
	Smartcard   string `json:"smartcard"`
	MeterNumber string `json:"meter_number"`
	MeterType   string `json:"meter_type"`
}

// Verify looks up the customer behind a smartcard or meter number.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	scope := req.CableID
	if scope == "" {
		scope = req.DiscoID
	}

	identity, err := h.service.VerifyCustomer(r.Context(), service.VerifyRequest{
		Service:     model.ServiceType(req.Type),
		ScopeID:     scope,
		Smartcard:   req.Smartcard,
		MeterNumber: req.MeterNumber,
		MeterType:   req.MeterType,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": identity})
}

type planResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	NetworkID      string   `json:"network_id,omitempty"`
	Amount         float64  `json:"amount"`
	OriginalAmount *float64 `json:"original_amount,omitempty"`
	Priced         bool     `json:"priced"`
	TierApplied    string   `json:"tier_applied"`
}

// ListPlans returns the priced catalog for a service type. Anonymous callers
// get base-tier prices; authenticated callers get their own tier.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	svc := model.ServiceType(r.URL.Query().Get("type"))
	switch svc {
	case model.ServiceData, model.ServiceCable, model.ServiceElectricity:
	default:
		writeError(w, http.StatusBadRequest, "Invalid service type")
		return
	}

	tier := model.TierBase
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		if account, err := h.service.Account(r.Context(), userID); err == nil {
			tier = account.Tier
		}
	}

	plans, err := h.service.ListPlans(r.Context(), svc, r.URL.Query().Get("network_id"), tier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		item := planResponse{
			ID:          p.ID,
			Name:        p.Name,
			NetworkID:   p.NetworkID,
			Priced:      p.Priced,
			TierApplied: string(p.AppliedTier),
		}
		if p.Priced {
			item.Amount = model.KoboToNaira(p.SellingPrice)
			cost := model.KoboToNaira(p.CostPrice)
			item.OriginalAmount = &cost
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": resp})
}

type upgradeRequest struct {
	TargetTier string `json:"target_tier"`
	PIN        string `json:"pin"`
}

// Upgrade debits the upgrade fee and flips the membership tier.
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.UpgradeTier(r.Context(), userID, model.Tier(req.TargetTier), req.PIN)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     result.Message,
		"tier":        req.TargetTier,
		"new_balance": model.KoboToNaira(result.NewBalance),
	})
}

// GetBalance returns the wallet balance and tier of the current user.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	account, err := h.service.Account(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance": model.KoboToNaira(account.Balance),
		"tier":    string(account.Tier),
	})
}

type transactionResponse struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Reference   string  `json:"reference"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

// GetTransactions returns the transaction history of the current user.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	transactions, err := h.service.Transactions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, txn := range transactions {
		resp = append(resp, transactionResponse{
			Type:        txn.Type,
			Amount:      model.KoboToNaira(txn.Amount),
			Reference:   txn.Reference,
			Status:      string(txn.Status),
			Description: txn.Description,
			CreatedAt:   txn.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
