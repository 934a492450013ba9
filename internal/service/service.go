// Package service implements the wallet-debited purchase flow of the VTU engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shabalink/vtu-engine/internal/model"
	"github.com/shabalink/vtu-engine/internal/pricing"
	"github.com/shabalink/vtu-engine/internal/provider"
	"github.com/shabalink/vtu-engine/internal/validation"
)

// ErrInvalidPin is returned when the transaction PIN does not match.
var (
	ErrInvalidPin = errors.New("invalid pin")
	// ErrInvalidPlan is returned when the requested plan id is not in the catalog.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrUnpricedPlan is returned for a catalog entry with no usable cost price
	// and no explicit cost override.
	ErrUnpricedPlan = errors.New("plan has no price")
	// ErrPriceMismatch is returned when the client's quoted price deviates from
	// the freshly computed selling price by more than the tolerance.
	ErrPriceMismatch = errors.New("price mismatch")
	// ErrInvalidRequest is returned for requests missing required purchase fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSameTier is returned when upgrading to the tier the account already has.
	ErrSameTier = errors.New("already on this tier")
	// ErrInvalidTier is returned for an unknown or non-purchasable target tier.
	ErrInvalidTier = errors.New("invalid tier selection")
	// ErrRefundFailed means funds were debited, fulfillment failed and the
	// compensating credit also failed. Needs manual reconciliation.
	ErrRefundFailed = errors.New("refund failed")
)

// priceToleranceKobo is how far a client-quoted price may drift from the
// freshly computed one before the purchase is rejected. Guards against stale
// client-cached prices after a catalog change.
const priceToleranceKobo = 200

// Upgrade fees in kobo, debited from the wallet when switching tiers.
const (
	feeReseller = 2500_00
	feePartner  = 10000_00
)

// Ledger is the wallet storage contract used by the orchestrator.
type Ledger interface {
	Close() error
	GetAccount(ctx context.Context, userID int64) (*model.Account, error)
	TryDebit(ctx context.Context, userID, amount int64) (int64, error)
	Credit(ctx context.Context, userID, amount int64) (int64, error)
	SetTier(ctx context.Context, userID int64, tier model.Tier) error
	AppendTransaction(ctx context.Context, txn *model.Transaction) error
	TransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
}

// Gateway is the slice of the provider client the orchestrator calls directly.
type Gateway interface {
	Verify(ctx context.Context, svc model.ServiceType, params provider.VerifyParams) (*provider.CustomerIdentity, error)
	Purchase(ctx context.Context, svc model.ServiceType, params provider.PurchaseParams) (*provider.Receipt, error)
}

// Catalog resolves provider plans with tier pricing applied.
type Catalog interface {
	ListPricedPlans(ctx context.Context, svc model.ServiceType, scopeID string, tier model.Tier) ([]model.PricedPlan, error)
	FindPlan(ctx context.Context, svc model.ServiceType, scopeID, planID string) (*model.ServicePlan, error)
}

// Service drives the verify -> price -> debit -> fulfill -> log/compensate
// protocol for every purchasable service type.
type Service struct {
	ledger  Ledger
	gateway Gateway
	catalog Catalog
	logger  *zap.Logger
}

// NewService wires the orchestrator with its collaborators.
func NewService(ledger Ledger, gateway Gateway, catalog Catalog, logger *zap.Logger) *Service {
	return &Service{
		ledger:  ledger,
		gateway: gateway,
		catalog: catalog,
		logger:  logger,
	}
}

// Close releases the orchestrator's resources.
func (s *Service) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// PurchaseRequest carries one purchase across all service types. Monetary
// fields are kobo; zero means absent for the optional ones.
type PurchaseRequest struct {
	Service          model.ServiceType
	NetworkID        string
	PlanID           string
	Phone            string
	Smartcard        string
	MeterNumber      string
	MeterType        string
	AmountKobo       int64
	PIN              string
	ExpectedKobo     int64
	CostOverrideKobo int64
}

// PurchaseResult is returned to the caller after a completed purchase.
type PurchaseResult struct {
	Reference   string
	Message     string
	NewBalance  int64
	Pricing     model.PricingResult
	ProviderRef string
}

// serviceDescriptor parameterizes the shared purchase state machine per
// service type: how to validate input, resolve the true cost and describe the
// transaction.
type serviceDescriptor struct {
	refPrefix   string
	validate    func(req *PurchaseRequest) error
	resolveCost func(ctx context.Context, s *Service, req *PurchaseRequest) (int64, error)
	describe    func(req *PurchaseRequest) string
}

var descriptors = map[model.ServiceType]serviceDescriptor{
	model.ServiceAirtime: {
		refPrefix: "AIR",
		validate: func(req *PurchaseRequest) error {
			if req.NetworkID == "" || req.AmountKobo <= 0 || !validation.IsValidPhone(req.Phone) {
				return fmt.Errorf("%w: network, amount and a valid phone are required", ErrInvalidRequest)
			}
			return nil
		},
		resolveCost: func(ctx context.Context, s *Service, req *PurchaseRequest) (int64, error) {
			return req.AmountKobo, nil
		},
		describe: func(req *PurchaseRequest) string {
			return fmt.Sprintf("Airtime: %s %.2f to %s", req.NetworkID, model.KoboToNaira(req.AmountKobo), req.Phone)
		},
	},
	model.ServiceData: {
		refPrefix: "DATA",
		validate: func(req *PurchaseRequest) error {
			if req.PlanID == "" || !validation.IsValidPhone(req.Phone) {
				return fmt.Errorf("%w: plan and a valid phone are required", ErrInvalidRequest)
			}
			return nil
		},
		resolveCost: resolvePlanCost,
		describe: func(req *PurchaseRequest) string {
			return fmt.Sprintf("Data: %s plan %s to %s", req.NetworkID, req.PlanID, req.Phone)
		},
	},
	model.ServiceCable: {
		refPrefix: "CABLE",
		validate: func(req *PurchaseRequest) error {
			if req.PlanID == "" || !validation.IsValidSmartcard(req.Smartcard) {
				return fmt.Errorf("%w: plan and a valid smartcard are required", ErrInvalidRequest)
			}
			return nil
		},
		resolveCost: resolvePlanCost,
		describe: func(req *PurchaseRequest) string {
			return fmt.Sprintf("Cable: %s plan %s for %s", req.NetworkID, req.PlanID, req.Smartcard)
		},
	},
	model.ServiceElectricity: {
		refPrefix: "ELEC",
		validate: func(req *PurchaseRequest) error {
			if req.NetworkID == "" || req.AmountKobo <= 0 || !validation.IsValidMeterNumber(req.MeterNumber) {
				return fmt.Errorf("%w: disco, amount and a valid meter number are required", ErrInvalidRequest)
			}
			return nil
		},
		resolveCost: func(ctx context.Context, s *Service, req *PurchaseRequest) (int64, error) {
			return req.AmountKobo, nil
		},
		describe: func(req *PurchaseRequest) string {
			return fmt.Sprintf("Electricity: %s %s", req.NetworkID, req.MeterNumber)
		},
	},
}

// resolvePlanCost looks the plan up in a fresh catalog fetch so the purchase
// is always priced from the provider's current cost, never a client quote.
func resolvePlanCost(ctx context.Context, s *Service, req *PurchaseRequest) (int64, error) {
	plan, err := s.catalog.FindPlan(ctx, req.Service, req.NetworkID, req.PlanID)
	if err != nil {
		return 0, err
	}
	if plan == nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPlan, req.PlanID)
	}
	if !plan.Priced {
		if req.CostOverrideKobo > 0 {
			return req.CostOverrideKobo, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnpricedPlan, req.PlanID)
	}
	return plan.CostPrice, nil
}

// Purchase runs the full purchase protocol: validate, price, debit, fulfill,
// and either log success or compensate with a credit-back. Any failure before
// the debit has zero side effects.
func (s *Service) Purchase(ctx context.Context, userID int64, req PurchaseRequest) (*PurchaseResult, error) {
	desc, ok := descriptors[req.Service]
	if !ok {
		return nil, pricing.ErrInvalidServiceType
	}
	if err := desc.validate(&req); err != nil {
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPIN(account.PINHash, req.PIN); err != nil {
		return nil, err
	}

	cost, err := desc.resolveCost(ctx, s, &req)
	if err != nil {
		return nil, err
	}

	result, err := pricing.Price(cost, req.Service, account.Tier)
	if err != nil {
		return nil, err
	}

	if req.ExpectedKobo > 0 {
		if diff := req.ExpectedKobo - result.SellingPrice; diff > priceToleranceKobo || diff < -priceToleranceKobo {
			return nil, fmt.Errorf("%w: expected %.2f, current price is %.2f",
				ErrPriceMismatch, model.KoboToNaira(req.ExpectedKobo), model.KoboToNaira(result.SellingPrice))
		}
	}

	newBalance, err := s.ledger.TryDebit(ctx, userID, result.SellingPrice)
	if err != nil {
		return nil, err
	}

	reference := newReference(desc.refPrefix, userID)

	receipt, err := s.gateway.Purchase(ctx, req.Service, provider.PurchaseParams{
		ScopeID:     req.NetworkID,
		PlanID:      req.PlanID,
		Phone:       req.Phone,
		Smartcard:   req.Smartcard,
		MeterNumber: req.MeterNumber,
		MeterType:   req.MeterType,
		AmountKobo:  amountForProvider(req.Service, &req),
		Reference:   reference,
	})
	if err != nil {
		return nil, s.compensate(ctx, userID, reference, string(req.Service), desc.describe(&req), result, err)
	}

	providerRef := "N/A"
	if receipt != nil && receipt.Reference != "" {
		providerRef = receipt.Reference
	}

	txn := &model.Transaction{
		UserID:      userID,
		Type:        string(req.Service),
		Amount:      result.SellingPrice,
		Reference:   reference,
		Status:      model.StatusSuccess,
		Description: desc.describe(&req),
		Metadata: map[string]any{
			"provider_ref": providerRef,
			"plan_id":      req.PlanID,
			"cost_price":   model.KoboToNaira(result.CostPrice),
			"profit":       model.KoboToNaira(result.Profit),
		},
	}
	if err := s.ledger.AppendTransaction(ctx, txn); err != nil {
		s.logger.Error("append success transaction",
			zap.Error(err), zap.String("reference", reference), zap.Int64("userID", userID))
	}

	return &PurchaseResult{
		Reference:   reference,
		Message:     fmt.Sprintf("%s purchase successful", req.Service),
		NewBalance:  newBalance,
		Pricing:     result,
		ProviderRef: providerRef,
	}, nil
}

// compensate credits the debited amount back after a failed fulfillment and
// records the attempt. The credit is retried a bounded number of times; if it
// still fails the condition is logged distinctly for manual reconciliation.
func (s *Service) compensate(ctx context.Context, userID int64, reference, txnType, description string, result model.PricingResult, cause error) error {
	// The fulfillment may have failed because the request context was
	// canceled, e.g. the client hung up. The refund and its record must
	// still land, so they run detached from the request lifetime.
	ctx = context.WithoutCancel(ctx)

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))
	creditErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.ledger.Credit(ctx, userID, result.SellingPrice)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	if creditErr != nil {
		s.logger.Error("compensating credit failed, funds debited without fulfillment",
			zap.Error(creditErr),
			zap.NamedError("cause", cause),
			zap.String("reference", reference),
			zap.Int64("userID", userID),
			zap.Int64("amount", result.SellingPrice))
		s.appendAttemptRecord(ctx, userID, reference, txnType, description, result, model.StatusFailed, map[string]any{
			"refund_error": creditErr.Error(),
			"cause":        cause.Error(),
		})
		return fmt.Errorf("%w: %v", ErrRefundFailed, cause)
	}

	s.appendAttemptRecord(ctx, userID, reference, txnType, description, result, model.StatusRefunded, map[string]any{
		"cause": cause.Error(),
	})
	return cause
}

func (s *Service) appendAttemptRecord(ctx context.Context, userID int64, reference, txnType, description string, result model.PricingResult, status model.TransactionStatus, metadata map[string]any) {
	metadata["cost_price"] = model.KoboToNaira(result.CostPrice)
	metadata["profit"] = model.KoboToNaira(result.Profit)
	txn := &model.Transaction{
		UserID:      userID,
		Type:        txnType,
		Amount:      result.SellingPrice,
		Reference:   reference,
		Status:      status,
		Description: description,
		Metadata:    metadata,
	}
	if err := s.ledger.AppendTransaction(ctx, txn); err != nil {
		s.logger.Error("append attempt transaction",
			zap.Error(err), zap.String("reference", reference), zap.Int64("userID", userID))
	}
}

// amountForProvider is what the provider must deliver: the face value for
// airtime, the bill amount for electricity, nothing for plan-based services.
func amountForProvider(svc model.ServiceType, req *PurchaseRequest) int64 {
	switch svc {
	case model.ServiceAirtime, model.ServiceElectricity:
		return req.AmountKobo
	default:
		return 0
	}
}

// VerifyRequest identifies a customer for a pre-purchase lookup.
type VerifyRequest struct {
	Service     model.ServiceType
	ScopeID     string
	Smartcard   string
	MeterNumber string
	MeterType   string
}

// VerifyCustomer short-circuits the purchase state machine: it returns the
// provider's customer lookup without touching the ledger or checking a PIN.
func (s *Service) VerifyCustomer(ctx context.Context, req VerifyRequest) (*provider.CustomerIdentity, error) {
	switch req.Service {
	case model.ServiceCable:
		if !validation.IsValidSmartcard(req.Smartcard) {
			return nil, fmt.Errorf("%w: a valid smartcard is required", ErrInvalidRequest)
		}
	case model.ServiceElectricity:
		if !validation.IsValidMeterNumber(req.MeterNumber) {
			return nil, fmt.Errorf("%w: a valid meter number is required", ErrInvalidRequest)
		}
	default:
		return nil, pricing.ErrInvalidServiceType
	}

	return s.gateway.Verify(ctx, req.Service, provider.VerifyParams{
		ScopeID:     req.ScopeID,
		Smartcard:   req.Smartcard,
		MeterNumber: req.MeterNumber,
		MeterType:   req.MeterType,
	})
}

// ListPlans returns the priced catalog for a browsable service type.
func (s *Service) ListPlans(ctx context.Context, svc model.ServiceType, scopeID string, tier model.Tier) ([]model.PricedPlan, error) {
	switch svc {
	case model.ServiceData, model.ServiceCable, model.ServiceElectricity:
	default:
		return nil, pricing.ErrInvalidServiceType
	}
	return s.catalog.ListPricedPlans(ctx, svc, scopeID, tier)
}

// UpgradeTier runs the same debit-then-fulfill machine with the tier flip as
// the fulfillment step. The upgrade fee is fixed per target tier.
func (s *Service) UpgradeTier(ctx context.Context, userID int64, target model.Tier, pin string) (*PurchaseResult, error) {
	var fee int64
	switch target {
	case model.TierReseller:
		fee = feeReseller
	case model.TierPartner:
		fee = feePartner
	default:
		return nil, ErrInvalidTier
	}

	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPIN(account.PINHash, pin); err != nil {
		return nil, err
	}
	if account.Tier == target {
		return nil, ErrSameTier
	}

	newBalance, err := s.ledger.TryDebit(ctx, userID, fee)
	if err != nil {
		return nil, err
	}

	reference := newReference("UPG", userID)
	result := model.PricingResult{CostPrice: fee, SellingPrice: fee, AppliedTier: account.Tier}
	description := fmt.Sprintf("Upgrade to %s tier", target)

	if err := s.ledger.SetTier(ctx, userID, target); err != nil {
		return nil, s.compensate(ctx, userID, reference, "upgrade", description, result, err)
	}

	txn := &model.Transaction{
		UserID:      userID,
		Type:        "upgrade",
		Amount:      fee,
		Reference:   reference,
		Status:      model.StatusSuccess,
		Description: description,
		Metadata: map[string]any{
			"from_tier": string(account.Tier),
			"to_tier":   string(target),
		},
	}
	if err := s.ledger.AppendTransaction(ctx, txn); err != nil {
		s.logger.Error("append upgrade transaction",
			zap.Error(err), zap.String("reference", reference), zap.Int64("userID", userID))
	}

	return &PurchaseResult{
		Reference:  reference,
		Message:    fmt.Sprintf("successfully upgraded to %s", target),
		NewBalance: newBalance,
	}, nil
}

// Account returns the wallet state for dashboard reads.
func (s *Service) Account(ctx context.Context, userID int64) (*model.Account, error) {
	return s.ledger.GetAccount(ctx, userID)
}

// Transactions returns the user's transaction history.
func (s *Service) Transactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.ledger.TransactionsByUser(ctx, userID)
}

// checkPIN compares the transaction PIN against the stored bcrypt hash.
// Accounts without a PIN set cannot transact.
func checkPIN(hash []byte, pin string) error {
	if len(hash) == 0 || pin == "" {
		return ErrInvalidPin
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(pin)); err != nil {
		return ErrInvalidPin
	}
	return nil
}

// newReference builds a transaction reference unique enough for this system's
// volume: prefix, millisecond timestamp and a short user-id fragment.
func newReference(prefix string, userID int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, time.Now().UnixMilli(), userID%10000)
}
