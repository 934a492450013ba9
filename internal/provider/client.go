// Package provider contains the HTTP client for the external fulfillment provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/shabalink/vtu-engine/internal/model"
)

var (
	// ErrUnavailable means the provider could not be reached or answered with
	// something we cannot interpret: transport error, timeout, malformed body
	// or an unexplained non-2xx status.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrRejected means the provider returned a well-formed error response,
	// e.g. an invalid meter number. Matched by RejectedError via errors.Is.
	ErrRejected = errors.New("provider rejected request")
)

// RejectedError carries the provider's own rejection message.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request: %s", e.Message)
}

// Is makes errors.Is(err, ErrRejected) match.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// RawPlan is one catalog entry exactly as the provider returned it. Field
// names are not schema-stable across services; normalization is the catalog
// resolver's job.
type RawPlan map[string]any

// VerifyParams identifies the customer to look up before a purchase.
type VerifyParams struct {
	ScopeID     string `json:"scope_id,omitempty"`
	Smartcard   string `json:"smartcard,omitempty"`
	MeterNumber string `json:"meter_number,omitempty"`
	MeterType   string `json:"meter_type,omitempty"`
}

// CustomerIdentity is the provider's answer to a verify lookup.
type CustomerIdentity struct {
	Name    string         `json:"name"`
	Address string         `json:"address,omitempty"`
	Raw     map[string]any `json:"-"`
}

// PurchaseParams carries everything the provider needs to fulfill one purchase.
// AmountKobo is the face value or bill amount; it is sent to the provider in
// naira.
type PurchaseParams struct {
	ScopeID     string
	PlanID      string
	Phone       string
	Smartcard   string
	MeterNumber string
	MeterType   string
	AmountKobo  int64
	Reference   string
}

// Receipt is the provider's acknowledgment of a fulfilled purchase.
type Receipt struct {
	Reference string
	Raw       map[string]any
}

// Client talks to the fulfillment provider's HTTP API. Catalog and verify
// lookups go through a retrying client because they are idempotent reads;
// Purchase uses a plain client and is never retried, since a repeated call can
// deliver twice. Whether and when to reattempt a failed fulfillment is the
// orchestrator's decision, never the transport's.
type Client struct {
	baseURL  string
	apiKey   string
	lookup   *retryablehttp.Client
	purchase *http.Client
}

// NewClient creates a provider client for the given base URL and API key.
// timeout bounds every single call, including purchase.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	lookup := retryablehttp.NewClient()
	lookup.RetryMax = 2
	lookup.Logger = nil
	lookup.HTTPClient.Timeout = timeout

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		lookup:  lookup,
		purchase: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiEnvelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Reference string          `json:"reference"`
}

// FetchCatalog returns the raw plan list for a service. scopeID narrows the
// request on the provider side when given (e.g. a network id for data plans);
// providers that ignore the parameter are filtered locally by the resolver.
func (c *Client) FetchCatalog(ctx context.Context, svc model.ServiceType, scopeID string) ([]RawPlan, error) {
	url := fmt.Sprintf("%s/api/v1/services/%s", c.baseURL, svc)
	if scopeID != "" {
		url += "?network=" + scopeID
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.lookup.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	env, err := readEnvelope(resp)
	if err != nil {
		return nil, err
	}

	var plans []RawPlan
	if err := json.Unmarshal(env.Data, &plans); err != nil {
		return nil, fmt.Errorf("%w: decode plans: %v", ErrUnavailable, err)
	}
	return plans, nil
}

// Verify looks up the customer behind a smartcard or meter number.
func (c *Client) Verify(ctx context.Context, svc model.ServiceType, params VerifyParams) (*CustomerIdentity, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal verify params: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/verify/%s", c.baseURL, svc)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.lookup.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	env, err := readEnvelope(resp)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode customer: %v", ErrUnavailable, err)
	}

	identity := &CustomerIdentity{Raw: raw}
	if name, ok := raw["name"].(string); ok {
		identity.Name = name
	} else if name, ok := raw["customer_name"].(string); ok {
		identity.Name = name
	}
	if addr, ok := raw["address"].(string); ok {
		identity.Address = addr
	}
	return identity, nil
}

// Purchase executes one fulfillment. It must be called at most once per
// reference: a success response means real-world money moved on the provider
// side, and the call is not idempotent.
func (c *Client) Purchase(ctx context.Context, svc model.ServiceType, params PurchaseParams) (*Receipt, error) {
	payload := map[string]any{
		"ref": params.Reference,
	}
	if params.ScopeID != "" {
		payload["network"] = params.ScopeID
	}
	if params.PlanID != "" {
		payload["plan"] = params.PlanID
	}
	if params.Phone != "" {
		payload["mobile_number"] = params.Phone
	}
	if params.Smartcard != "" {
		payload["smartcard"] = params.Smartcard
	}
	if params.MeterNumber != "" {
		payload["meter_number"] = params.MeterNumber
	}
	if params.MeterType != "" {
		payload["meter_type"] = params.MeterType
	}
	if params.AmountKobo != 0 {
		payload["amount"] = model.KoboToNaira(params.AmountKobo)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal purchase params: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/purchase/%s", c.baseURL, svc)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.purchase.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	env, err := readEnvelope(resp)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{Reference: env.Reference}
	if len(env.Data) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(env.Data, &raw); err == nil {
			receipt.Raw = raw
			if receipt.Reference == "" {
				if ref, ok := raw["reference"].(string); ok {
					receipt.Reference = ref
				}
			}
		}
	}
	return receipt, nil
}

// readEnvelope decodes the common response envelope and classifies failures.
// A 4xx with a parseable message is a rejection; everything else unexpected is
// an availability problem.
func readEnvelope(resp *http.Response) (*apiEnvelope, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var env apiEnvelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if decodeErr == nil && msg != "" && resp.StatusCode < 500 {
			return nil, &RejectedError{Message: msg}
		}
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, decodeErr)
	}

	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" {
			msg = "request failed"
		}
		return nil, &RejectedError{Message: msg}
	}

	return &env, nil
}
