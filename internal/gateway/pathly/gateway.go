// Package pathly implements the Pathly charge API adapter. Charges are
// routed through stored customer and payment-method records, so a purchase
// with a fresh card first creates both before posting the charge. Payment
// calls carry a short-lived bearer token obtained via a JWT login and
// cached in a process-wide token store.
//
// Pathly has no authorize/capture split and no verification endpoint;
// those operations are unsupported, and void is a refund of amount zero.
package pathly

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	ierr "github.com/paybridge/paybridge/internal/errors"
	"github.com/paybridge/paybridge/internal/gateway"
	"github.com/paybridge/paybridge/internal/gateway/token"
	"github.com/paybridge/paybridge/internal/httpclient"
	"github.com/paybridge/paybridge/internal/logger"
	"github.com/paybridge/paybridge/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	testURL = "https://sandbox-api.pathly.io"
	liveURL = "https://api.pathly.io"

	successURL = "https://example.com/success"
	failURL    = "https://example.com/failure"
)

// Config carries the Pathly credentials and deployment mode.
type Config struct {
	SecretKey  string
	MerchantID string
	Mode       types.RunMode
}

// Gateway is the Pathly adapter.
type Gateway struct {
	cfg    Config
	client httpclient.Client
	logger *logger.Logger
	tokens *token.Store
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTokenStore replaces the shared process-wide token store. Tests use
// this to isolate cached state.
func WithTokenStore(s *token.Store) Option {
	return func(g *Gateway) { g.tokens = s }
}

// New validates the credentials and returns a Pathly adapter.
func New(cfg Config, client httpclient.Client, log *logger.Logger, opts ...Option) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, ierr.NewError("missing pathly secret key").
			WithHint("Configure the secret_key credential").
			Mark(ierr.ErrConfiguration)
	}
	if cfg.MerchantID == "" {
		return nil, ierr.NewError("missing pathly merchant id").
			WithHint("Configure the merchant_id credential").
			Mark(ierr.ErrConfiguration)
	}
	if client == nil {
		client = httpclient.NewDefaultClient()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	g := &Gateway{cfg: cfg, client: client, logger: log, tokens: sharedTokens}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Purchase posts a charge. When the card carries a CVV the customer and
// card records are created first; generated IDs are propagated into the
// charge so the three calls always agree.
func (g *Gateway) Purchase(ctx context.Context, amount int64, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	opts = opts.Clone()
	if opts.CustomerID == "" {
		opts.CustomerID = uuid.NewString()
	}
	if opts.PaymentMethodID == "" {
		opts.PaymentMethodID = uuid.NewString()
	}

	if card != nil && card.CVV != "" {
		if result, err := g.CreateCustomer(ctx, card, opts); err != nil {
			return nil, err
		} else if !result.Success {
			return result, nil
		}
		if result, err := g.CreateCard(ctx, card, opts); err != nil {
			return nil, err
		} else if !result.Success {
			return result, nil
		}
	}

	body := map[string]interface{}{
		"customer_id":       opts.CustomerID,
		"payment_method_id": opts.PaymentMethodID,
		"amount": map[string]interface{}{
			"value":    amount,
			"currency": lo.Ternary(opts.Currency != "", opts.Currency, "USD"),
		},
		"success_url": successURL,
		"fail_url":    failURL,
	}
	setIfPresent(body, "id", opts.IdempotencyID)
	if details := addressDetails(card, opts); details != nil {
		body["shipping_details"] = details
	}
	if opts.CV2 != "" || opts.DynamicDescriptor != "" {
		cardFields := map[string]interface{}{}
		setIfPresent(cardFields, "cv2", opts.CV2)
		setIfPresent(cardFields, "dynamic_descriptor", opts.DynamicDescriptor)
		body["card"] = cardFields
	}

	return g.commit(ctx, g.baseURL()+"/charges", body)
}

func (g *Gateway) Authorize(ctx context.Context, amount int64, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	return nil, unsupported("authorize")
}

func (g *Gateway) Capture(ctx context.Context, amount int64, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	return nil, unsupported("capture")
}

// Refund posts a refund against a prior charge. The authorization of the
// original call doubles as the idempotency key.
func (g *Gateway) Refund(ctx context.Context, amount int64, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	opts = opts.Clone()
	if opts.ChargeID == "" {
		return nil, ierr.NewError("missing charge id").
			WithHint("Refund requires the charge_id option").
			Mark(ierr.ErrValidation)
	}
	if opts.Reason == "" {
		return nil, ierr.NewError("missing refund reason").
			WithHint("Refund requires a reason option").
			Mark(ierr.ErrValidation)
	}
	if authorization == "" {
		return nil, ierr.NewError("missing authorization").
			WithHint("Refund requires the authorization from a prior call").
			Mark(ierr.ErrValidation)
	}

	body := map[string]interface{}{
		"charge_id":       opts.ChargeID,
		"reason":          gateway.Truncate(opts.Reason, 100),
		"idempotency_key": authorization,
	}
	setIfPresent(body, "id", opts.IdempotencyID)

	return g.commit(ctx, g.baseURL()+"/refunds", body)
}

// Void is a refund of amount zero.
func (g *Gateway) Void(ctx context.Context, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	return g.Refund(ctx, 0, authorization, opts)
}

func (g *Gateway) Verify(ctx context.Context, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	return nil, unsupported("verify")
}

// CreateCustomer registers a customer record. The customer id is taken
// from the options or generated by the caller.
func (g *Gateway) CreateCustomer(ctx context.Context, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	body := map[string]interface{}{
		"id": opts.CustomerID,
	}
	if card != nil {
		setIfPresent(body, "first_name", card.FirstName)
		setIfPresent(body, "last_name", card.LastName)
	}

	return g.commit(ctx, g.baseURL()+"/customers", body)
}

// CreateCard stores a card under an existing customer record.
func (g *Gateway) CreateCard(ctx context.Context, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	if opts.CustomerID == "" {
		return nil, ierr.NewError("missing customer id").
			WithHint("CreateCard requires the customer_id option").
			Mark(ierr.ErrValidation)
	}

	body := map[string]interface{}{
		"customer_id": opts.CustomerID,
		"id":          lo.Ternary(opts.PaymentMethodID != "", opts.PaymentMethodID, uuid.NewString()),
		"number":      card.Number,
		"exp_month":   fmt.Sprintf("%02d", card.Month),
		"exp_year":    fmt.Sprintf("%d", card.Year),
		"cvv":         card.CVV,
	}
	if details := addressDetails(card, opts); details != nil {
		body["billing_details"] = details
	}

	return g.commit(ctx, g.baseURL()+"/payment-methods/cards", body)
}

// addressDetails builds the billing/shipping details block, or nil when
// no address is available.
func addressDetails(card *gateway.Card, opts *gateway.Options) map[string]interface{} {
	address := opts.BillingAddress
	if address == nil {
		return nil
	}

	fields := map[string]interface{}{}
	setIfPresent(fields, "line1", address.Address1)
	setIfPresent(fields, "line2", address.Address2)
	setIfPresent(fields, "city", address.City)
	setIfPresent(fields, "state", address.State)
	setIfPresent(fields, "country", address.Country)
	setIfPresent(fields, "zip", address.Zip)
	if len(fields) == 0 {
		return nil
	}

	details := map[string]interface{}{"address": fields}
	if card != nil {
		details["name"] = card.Name(60)
	}
	setIfPresent(details, "email", opts.Email)
	setIfPresent(details, "phone_number", opts.PhoneNumber)
	return details
}

type apiResponse struct {
	Code      int                `json:"code"`
	Message   string             `json:"message"`
	ErrorCode string             `json:"error_code"`
	Data      stdjson.RawMessage `json:"data"`
}

func (r *apiResponse) dataMap() map[string]interface{} {
	if len(r.Data) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(r.Data, &m); err != nil {
		return nil
	}
	return m
}

func (g *Gateway) commit(ctx context.Context, url string, body map[string]interface{}) (*gateway.Result, error) {
	bearer, err := g.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: "POST",
		URL:    url,
		Headers: map[string]string{
			"Accept":          "application/json",
			"Accept-Language": "en",
			"Authorization":   "Bearer " + bearer.Value,
		},
		Body: payload,
	})
	if err != nil {
		// Pathly reports request problems through 4xx bodies; those are
		// ordinary declines, not transport failures, and always produce
		// a Result.
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return g.resultFromErrorBody(httpErr), nil
		}
		return nil, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Pathly returned a malformed response").
			Mark(ierr.ErrHTTPClient)
	}

	success := parsed.Code == 200 || parsed.Code == 202
	data := parsed.dataMap()
	result := &gateway.Result{
		Success:       success,
		Message:       parsed.Message,
		Raw:           resp.Body,
		Authorization: stringField(data, "id"),
		ErrorCode:     gateway.ErrorCode(parsed.ErrorCode),
		TestMode:      !g.cfg.Mode.IsLive(),
	}
	if parsed.Code == 202 {
		result.RedirectRequired = true
		result.RedirectURL = stringField(data, "acs_url")
	}
	return result, nil
}

func (g *Gateway) resultFromErrorBody(httpErr *httpclient.Error) *gateway.Result {
	var parsed apiResponse
	if err := json.Unmarshal(httpErr.Response, &parsed); err != nil {
		g.logger.Warnw("pathly error response was not json",
			"status_code", httpErr.StatusCode)
		return &gateway.Result{
			Success:  false,
			Message:  fmt.Sprintf("http status %d", httpErr.StatusCode),
			Raw:      httpErr.Response,
			TestMode: !g.cfg.Mode.IsLive(),
		}
	}

	return &gateway.Result{
		Success:   false,
		Message:   errorMessageFrom(&parsed),
		Raw:       httpErr.Response,
		ErrorCode: gateway.ErrorCode(parsed.ErrorCode),
		TestMode:  !g.cfg.Mode.IsLive(),
	}
}

// errorMessageFrom flattens the per-field validation map Pathly returns
// on rejected requests, falling back to the top-level message.
func errorMessageFrom(resp *apiResponse) string {
	data := resp.dataMap()
	if len(data) == 0 {
		return resp.Message
	}

	keys := lo.Keys(data)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", key, data[key]))
	}
	return strings.Join(parts, ", ")
}

func stringField(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func setIfPresent(body map[string]interface{}, key, value string) {
	if value != "" {
		body[key] = value
	}
}

func unsupported(op string) error {
	return ierr.NewError("unsupported pathly operation").
		WithHintf("Pathly does not implement %s", op).
		Mark(ierr.ErrUnsupportedOperation)
}

func (g *Gateway) baseURL() string {
	return lo.Ternary(g.cfg.Mode.IsLive(), liveURL, testURL)
}
