// Package worldnetv2 implements the WorldNet merchant API v2 adapter.
// Payment calls carry a short-lived bearer token obtained through a
// separate login request and cached in a process-wide token store, along
// with the terminal identifier returned by the same login.
package worldnetv2

import (
	"context"
	"net"
	"regexp"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/paybridge/paybridge/internal/errors"
	"github.com/paybridge/paybridge/internal/gateway"
	"github.com/paybridge/paybridge/internal/gateway/token"
	"github.com/paybridge/paybridge/internal/httpclient"
	"github.com/paybridge/paybridge/internal/logger"
	"github.com/paybridge/paybridge/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	testURL = "https://testpayments.worldnettps.com/merchant/api/v1"
	liveURL = "https://payments.worldnettps.com/merchant/api/v1"

	verificationAmountInCents = 100
)

type action string

const (
	actionAuthorize action = "authorize"
	actionCapture   action = "capture"
	actionPurchase  action = "purchase"
	actionRefund    action = "refund"
	actionVoid      action = "void"
)

// standardErrorCodes maps WorldNet result codes into the shared decline
// taxonomy. E (error), P (pending) and C (cancelled) have no reasonable
// mapping and stay empty.
var standardErrorCodes = map[string]gateway.ErrorCode{
	"D": gateway.ErrorCodeCardDeclined,
	"R": gateway.ErrorCodeCallIssuer,
}

var (
	version2Pattern = regexp.MustCompile(`^2\..+`)
	version1Pattern = regexp.MustCompile(`^1\..+`)
)

// Config carries the WorldNet credential and deployment mode.
type Config struct {
	MerchantAPIKey string
	Mode           types.RunMode
}

// Gateway is the WorldNetV2 adapter.
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

// New validates the credential and returns a WorldNetV2 adapter.
func New(cfg Config, client httpclient.Client, log *logger.Logger, opts ...Option) (*Gateway, error) {
	if cfg.MerchantAPIKey == "" {
		return nil, ierr.NewError("missing worldnet merchant api key").
			WithHint("Configure the merchant_api_key credential").
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

func (g *Gateway) Purchase(ctx context.Context, amount int64, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	opts = opts.Clone()
	if opts.OrderID == "" {
		return nil, ierr.NewError("missing order id").
			WithHint("Purchase requires an order_id option").
			Mark(ierr.ErrValidation)
	}

	body := map[string]interface{}{}
	addInvoice(body, amount, opts)
	addPayment(body, card)
	if err := add3DS(body, opts); err != nil {
		return nil, err
	}
	addAddress(body, opts)
	addCustomerData(body, opts)

	return g.commit(ctx, actionPurchase, "POST", g.baseURL()+"/transaction/payments", body)
}

func (g *Gateway) Authorize(ctx context.Context, amount int64, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	opts = opts.Clone()

	body := map[string]interface{}{}
	addInvoice(body, amount, opts)
	addPayment(body, card)
	addAddress(body, opts)
	addCustomerData(body, opts)

	return g.commit(ctx, actionAuthorize, "POST", g.baseURL()+"/transaction/payments", body)
}

func (g *Gateway) Capture(ctx context.Context, amount int64, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	url, err := g.referenceURL(authorization, "/capture")
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"captureAmount": majorUnits(amount)}
	return g.commit(ctx, actionCapture, "PATCH", url, body)
}

func (g *Gateway) Refund(ctx context.Context, amount int64, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	url, err := g.referenceURL(authorization, "/refunds")
	if err != nil {
		return nil, err
	}
	reason := opts.Clone().Reason
	if reason == "" {
		reason = "Refund " + authorization
	}
	body := map[string]interface{}{
		"refundAmount": majorUnits(amount),
		"refundReason": gateway.Truncate(reason, 100),
	}
	return g.commit(ctx, actionRefund, "POST", url, body)
}

func (g *Gateway) Void(ctx context.Context, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	url, err := g.referenceURL(authorization, "/reverse")
	if err != nil {
		return nil, err
	}
	return g.commit(ctx, actionVoid, "PATCH", url, map[string]interface{}{})
}

// Verify has no dedicated endpoint: it authorizes a token amount and then
// voids the authorization. The authorize outcome is what the caller sees;
// the void outcome is discarded unless it fails outright.
func (g *Gateway) Verify(ctx context.Context, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	result, err := g.Authorize(ctx, verificationAmountInCents, card, opts)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, nil
	}
	if _, err := g.Void(ctx, result.Authorization, opts); err != nil {
		return nil, err
	}
	return result, nil
}

func addCustomerData(body map[string]interface{}, opts *gateway.Options) {
	if opts.Email != "" {
		nestedBlock(body, "customer")["email"] = opts.Email
	}
	if opts.IP != "" {
		if ip := net.ParseIP(opts.IP); ip != nil {
			field := lo.Ternary(ip.To4() != nil, "ipv4", "ipv6")
			nestedBlock(body, "ipAddress")[field] = opts.IP
		}
	}
}

func addAddress(body map[string]interface{}, opts *gateway.Options) {
	address := opts.BillingAddress
	if address == nil {
		return
	}

	fields := map[string]interface{}{}
	setIfPresent(fields, "line1", address.Address1)
	setIfPresent(fields, "line2", address.Address2)
	setIfPresent(fields, "city", address.City)
	setIfPresent(fields, "state", address.State)
	setIfPresent(fields, "country", address.Country)
	setIfPresent(fields, "postalCode", address.Zip)

	if len(fields) > 0 {
		nestedBlock(body, "customer")["billingAddress"] = fields
	}
}

func addInvoice(body map[string]interface{}, amount int64, opts *gateway.Options) {
	order := nestedBlock(body, "order")
	order["orderId"] = opts.OrderID
	order["currency"] = lo.Ternary(opts.Currency != "", opts.Currency, "USD")
	order["totalAmount"] = majorUnits(amount)
	if opts.Description != "" {
		order["description"] = gateway.Truncate(opts.Description, 1024)
	}
}

func addPayment(body map[string]interface{}, card *gateway.Card) {
	account := nestedBlock(body, "customerAccount")
	account["payloadType"] = "KEYED"
	account["cardholderName"] = card.Name(60)

	details := nestedBlock(account, "cardDetails")
	details["cardNumber"] = card.Number
	details["expiryDate"] = card.ExpDate("")
	if card.CVV != "" {
		details["cvv"] = card.CVV
	}
}

func add3DS(body map[string]interface{}, opts *gateway.Options) error {
	tds := opts.ThreeDSecure
	if tds == nil {
		return nil
	}
	if tds.ECI == "" {
		return ierr.NewError("missing 3ds eci").
			WithHint("three_d_secure requires an eci value").
			Mark(ierr.ErrValidation)
	}

	block := nestedBlock(body, "threeDSecure")
	block["serviceProvider"] = "THIRD_PARTY"
	block["eci"] = tds.ECI
	if tds.XID != "" {
		block["xid"] = gateway.Truncate(tds.XID, 50)
	}
	if tds.CAVV != "" {
		block["cavv"] = gateway.Truncate(tds.CAVV, 50)
	}
	if tds.DSTransactionID != "" {
		block["dsTransactionId"] = gateway.Truncate(tds.DSTransactionID, 36)
	}
	if tds.Version != "" {
		version, err := protocolVersionFor(tds.Version)
		if err != nil {
			return err
		}
		block["protocolVersion"] = version
	}
	return nil
}

func protocolVersionFor(version string) (string, error) {
	switch {
	case version2Pattern.MatchString(version):
		return "VERSION_2", nil
	case version1Pattern.MatchString(version):
		return "VERSION_1", nil
	default:
		return "", ierr.NewError("invalid 3ds protocol version").
			WithHintf("Unrecognized 3-D-Secure version %q", version).
			Mark(ierr.ErrValidation)
	}
}

// majorUnits converts an amount in minor units to the major-unit string
// WorldNet expects, e.g. 100 -> "1.00".
func majorUnits(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

func nestedBlock(body map[string]interface{}, key string) map[string]interface{} {
	if existing, ok := body[key].(map[string]interface{}); ok {
		return existing
	}
	block := map[string]interface{}{}
	body[key] = block
	return block
}

func setIfPresent(body map[string]interface{}, key, value string) {
	if value != "" {
		body[key] = value
	}
}

type paymentResponse struct {
	UniqueReference string `json:"uniqueReference"`
	SecurityCheck   struct {
		CVVResult string `json:"cvvResult"`
		AVSResult string `json:"avsResult"`
	} `json:"securityCheck"`
	TransactionResult struct {
		Status        string `json:"status"`
		ResultCode    string `json:"resultCode"`
		ResultMessage string `json:"resultMessage"`
	} `json:"transactionResult"`
}

func (g *Gateway) commit(ctx context.Context, act action, httpMethod, url string, body map[string]interface{}) (*gateway.Result, error) {
	bearer, err := g.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	switch act {
	case actionAuthorize:
		body["channel"] = "WEB"
		body["terminal"] = bearer.Terminal
		body["autoCapture"] = false
	case actionPurchase:
		body["channel"] = "WEB"
		body["terminal"] = bearer.Terminal
		body["autoCapture"] = true
		body["processAsSale"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: httpMethod,
		URL:    url,
		Headers: map[string]string{
			"Accept":          "application/json",
			"Accept-Language": "en",
			"Authorization":   "Bearer " + bearer.Value,
		},
		Body: payload,
	})
	if err != nil {
		return nil, err
	}

	var parsed paymentResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("WorldNet returned a malformed response").
			Mark(ierr.ErrHTTPClient)
	}

	success := parsed.TransactionResult.ResultCode == "A"
	result := &gateway.Result{
		Success:       success,
		Message:       parsed.TransactionResult.Status,
		Raw:           resp.Body,
		Authorization: parsed.UniqueReference,
		AVSResult:     parsed.SecurityCheck.AVSResult,
		CVVResult:     parsed.SecurityCheck.CVVResult,
		TestMode:      !g.cfg.Mode.IsLive(),
	}
	if !success {
		result.ErrorCode = standardErrorCodes[parsed.TransactionResult.ResultCode]
		g.logger.Infow("worldnet declined transaction",
			"result_code", parsed.TransactionResult.ResultCode,
			"status", parsed.TransactionResult.Status)
	}
	return result, nil
}

func (g *Gateway) referenceURL(authorization, suffix string) (string, error) {
	if authorization == "" {
		return "", ierr.NewError("missing unique reference").
			WithHint("This operation requires the authorization from a prior call").
			Mark(ierr.ErrValidation)
	}
	return g.baseURL() + "/transaction/payments/" + authorization + suffix, nil
}

func (g *Gateway) baseURL() string {
	return lo.Ternary(g.cfg.Mode.IsLive(), liveURL, testURL)
}
