package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tipkoro/internal/types"
)

const rupantorAPIBase = "https://payment.rupantorpay.com/api"

// GatewayWebhookPath is where the gateway posts callbacks, relative to the
// public API URL.
const GatewayWebhookPath = "/v1/webhooks/gateway"

// RupantorClientConfig holds the configuration for creating a RupantorClient.
type RupantorClientConfig struct {
	APIKey     types.SecretString
	ClientHost string
	BaseURL    string // defaults to rupantorAPIBase
	// APIExternalURL is used to build the webhook_url sent with each checkout.
	APIExternalURL string
	Logger         *slog.Logger
}

// RupantorClient implements PaymentGateway against the RupantorPay REST API.
type RupantorClient struct {
	base       *BaseClient
	apiKey     types.SecretString
	clientHost string
	baseURL    string
	webhookURL string
	logger     *slog.Logger
}

// NewRupantorClient creates a RupantorClient. The httpClient timeout bounds
// each attempt.
func NewRupantorClient(httpClient *http.Client, cfg RupantorClientConfig) *RupantorClient {
	base := NewBaseClient(httpClient, "rupantorpay", DefaultRetryPolicy(), "TipKoro/1.0")
	return NewRupantorClientWithBase(base, cfg)
}

// NewRupantorClientWithBase creates a RupantorClient with a pre-configured BaseClient.
func NewRupantorClientWithBase(base *BaseClient, cfg RupantorClientConfig) *RupantorClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = rupantorAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RupantorClient{
		base:       base,
		apiKey:     cfg.APIKey,
		clientHost: cfg.ClientHost,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		webhookURL: strings.TrimSuffix(cfg.APIExternalURL, "/") + GatewayWebhookPath,
		logger:     logger,
	}
}

type checkoutMeta struct {
	SignupType  string `json:"signup_type"`
	Plan        string `json:"plan,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

type checkoutPayload struct {
	FullName   string       `json:"fullname"`
	Email      string       `json:"email"`
	Amount     float64      `json:"amount"`
	SuccessURL string       `json:"success_url"`
	CancelURL  string       `json:"cancel_url"`
	WebhookURL string       `json:"webhook_url"`
	MetaData   checkoutMeta `json:"meta_data"`
}

type checkoutResponse struct {
	Status     any    `json:"status"`
	PaymentURL string `json:"payment_url"`
	Message    string `json:"message"`
}

type verifyResponse struct {
	Status        any             `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Amount        any             `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Email         string          `json:"email"`
	Currency      string          `json:"currency"`
	MetaData      json.RawMessage `json:"meta_data"`
	Message       string          `json:"message"`
}

func (c *RupantorClient) configured() bool {
	return c.apiKey.IsSet() && c.clientHost != ""
}

func errGatewayNotConfigured() *types.AppError {
	return types.NewAppError(types.ErrCodeInternalGatewayNotConfigured, "Payment gateway not configured", nil)
}

// CreateCheckout creates a hosted checkout and returns its payment URL.
func (c *RupantorClient) CreateCheckout(ctx context.Context, in CheckoutRequest) (*CheckoutSession, error) {
	if !c.configured() {
		c.logger.ErrorContext(ctx, "payment gateway credentials missing")
		return nil, errGatewayNotConfigured()
	}
	if in.PayerName == "" || in.PayerEmail == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "Name and email are required", nil)
	}
	if in.Amount <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount, "Amount must be positive", nil)
	}

	payload := checkoutPayload{
		FullName:   in.PayerName,
		Email:      in.PayerEmail,
		Amount:     in.Amount,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		WebhookURL: c.webhookURL,
		MetaData: checkoutMeta{
			SignupType:  in.Purpose,
			ReferenceID: in.ReferenceID,
		},
	}
	if in.Purpose == PurposeCreatorPromo {
		payload.MetaData.Plan = "month_1"
	}

	resp, err := c.post(ctx, "/payment/checkout", payload)
	if err != nil {
		return nil, c.wrapError("CreateCheckout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, c.handleErrorResponse(ctx, resp, "CreateCheckout")
	}

	var out checkoutResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway, "failed to decode gateway checkout response", err)
	}
	if !isSuccessFlag(out.Status) || out.PaymentURL == "" {
		msg := out.Message
		if msg == "" {
			msg = "Failed to create payment link"
		}
		c.logger.WarnContext(ctx, "gateway rejected checkout",
			"status_code", resp.StatusCode,
			"message", out.Message,
			"reference_id", in.ReferenceID,
		)
		return nil, types.NewAppError(types.ErrCodeValidationGatewayRejected, msg, nil)
	}

	c.logger.InfoContext(ctx, "gateway checkout created",
		"purpose", in.Purpose,
		"amount", in.Amount,
		"reference_id", in.ReferenceID,
	)
	return &CheckoutSession{PaymentURL: out.PaymentURL}, nil
}

// VerifyTransaction asks the gateway for the authoritative state of a
// transaction. Ambiguous outcomes (transport failures, 5xx, unreadable
// bodies, credential rejections) return Status pending with an error.
func (c *RupantorClient) VerifyTransaction(ctx context.Context, transactionID string, expect VerificationExpectation) (types.VerificationResult, error) {
	result := types.VerificationResult{Status: types.PaymentPending, TransactionID: transactionID}
	if !c.configured() {
		c.logger.ErrorContext(ctx, "payment gateway credentials missing")
		return result, errGatewayNotConfigured()
	}
	if transactionID == "" {
		return result, types.NewAppError(types.ErrCodeValidationMissingField, "transaction_id is required", nil)
	}

	resp, err := c.post(ctx, "/payment/verify-payment", map[string]string{"transaction_id": transactionID})
	if err != nil {
		return result, c.wrapError("VerifyTransaction", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return result, c.handleErrorResponse(ctx, resp, "VerifyTransaction")
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return result, types.NewAppError(types.ErrCodeUpstreamGateway, "failed to decode gateway verification response", err)
	}

	result.Status = NormalizeStatus(out.Status)
	result.PaymentMethod = out.PaymentMethod
	if result.PaymentMethod == "" {
		result.PaymentMethod = expect.PaymentMethod
	}
	result.Email = out.Email
	result.Currency = out.Currency
	if result.Currency == "" {
		result.Currency = types.DefaultCurrency
	}
	meta := parseMeta(out.MetaData)
	result.ReferenceID = meta.ReferenceID
	result.Purpose = meta.SignupType
	if amount, ok := parseAmount(out.Amount); ok {
		result.Amount = amount
	} else {
		result.Amount = expect.Amount
	}

	if result.Status == types.PaymentCompleted && expect.Amount > 0 && result.Amount < expect.Amount {
		c.logger.WarnContext(ctx, "gateway amount below expected amount",
			"transaction_id", transactionID,
			"amount", result.Amount,
			"expected", expect.Amount,
		)
		result.Status = types.PaymentFailed
	}
	result.Verified = result.Status == types.PaymentCompleted

	c.logger.InfoContext(ctx, "gateway verification",
		"transaction_id", transactionID,
		"status", result.Status,
		"method", result.PaymentMethod,
		"amount", result.Amount,
	)
	return result, nil
}

func (c *RupantorClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize gateway request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey.Unmask())
	req.Header.Set("X-CLIENT", c.clientHost)
	return c.base.Do(req)
}

func (c *RupantorClient) handleErrorResponse(ctx context.Context, resp *http.Response, operation string) *types.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.logger.ErrorContext(ctx, "gateway rejected credentials",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", string(body),
	)
	return types.NewAppError(
		types.ErrCodeUpstreamGateway,
		fmt.Sprintf("payment gateway refused %s (%d)", operation, resp.StatusCode),
		fmt.Errorf("rupantorpay %s returned %d: %s", operation, resp.StatusCode, body),
	)
}

func (c *RupantorClient) wrapError(operation string, err error) error {
	return types.NewAppError(types.ErrCodeUpstreamGateway, fmt.Sprintf("payment gateway %s failed", operation), err)
}

// NormalizeStatus maps every gateway status representation onto
// PaymentStatus: true, 1 and "COMPLETED" are completed; false, 0 and the
// known failure words are failed; anything else is pending.
func NormalizeStatus(raw any) types.PaymentStatus {
	switch v := raw.(type) {
	case bool:
		if v {
			return types.PaymentCompleted
		}
		return types.PaymentFailed
	case float64:
		return normalizeNumber(v)
	case int:
		return normalizeNumber(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return normalizeNumber(f)
		}
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "COMPLETED":
			return types.PaymentCompleted
		case "FAILED", "ERROR", "CANCELLED", "CANCELED", "DECLINED":
			return types.PaymentFailed
		}
	}
	return types.PaymentPending
}

func normalizeNumber(f float64) types.PaymentStatus {
	switch f {
	case 1:
		return types.PaymentCompleted
	case 0:
		return types.PaymentFailed
	}
	return types.PaymentPending
}

func isSuccessFlag(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case string:
		return strings.EqualFold(v, "success") || v == "1" || strings.EqualFold(v, "true")
	}
	return false
}

// parseAmount accepts the gateway's string or numeric amounts.
func parseAmount(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// parseMeta reads the checkout meta_data echoed by verification. The
// gateway returns it either as an object or as a JSON-encoded string.
func parseMeta(raw json.RawMessage) checkoutMeta {
	var meta checkoutMeta
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err == nil {
		return meta
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		_ = json.Unmarshal([]byte(encoded), &meta)
	}
	return meta
}

var _ PaymentGateway = (*RupantorClient)(nil)
