// Package fluidpay implements the Fluidpay card-payment adapter. Every
// operation is a single POST carrying the integrator's api key verbatim in
// the Authorization header; no token login step is involved.
package fluidpay

import (
	"context"
	"regexp"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	ierr "github.com/paybridge/paybridge/internal/errors"
	"github.com/paybridge/paybridge/internal/gateway"
	"github.com/paybridge/paybridge/internal/httpclient"
	"github.com/paybridge/paybridge/internal/logger"
	"github.com/paybridge/paybridge/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	testURL = "https://sandbox.fluidpay.com/api"
	liveURL = "https://app.fluidpay.com/api"

	// Verify is a real transaction of type "verification" for this amount.
	verificationAmountInCents = 100
)

type action string

const (
	actionAuthorize action = "authorize"
	actionCapture   action = "capture"
	actionPurchase  action = "purchase"
	actionRefund    action = "refund"
	actionVerify    action = "verify"
	actionVoid      action = "void"
)

// standardErrorCodes maps Fluidpay response codes into the shared decline
// taxonomy. Any other code in the 200-399 range is a generic decline.
var standardErrorCodes = map[int]gateway.ErrorCode{
	223: gateway.ErrorCodeExpiredCard,
	225: gateway.ErrorCodeInvalidCVC,
	240: gateway.ErrorCodeCallIssuer,
	250: gateway.ErrorCodePickupCard,
	251: gateway.ErrorCodePickupCard,
	252: gateway.ErrorCodePickupCard,
	253: gateway.ErrorCodePickupCard,
	400: gateway.ErrorCodeProcessingError,
	410: gateway.ErrorCodeConfigError,
}

var (
	version2Pattern = regexp.MustCompile(`^2\..+`)
	version1Pattern = regexp.MustCompile(`^1\..+`)
)

// Config carries the Fluidpay credential and deployment mode.
type Config struct {
	APIKey string
	Mode   types.RunMode
}

// Gateway is the Fluidpay adapter.
type Gateway struct {
	cfg    Config
	client httpclient.Client
	logger *logger.Logger
}

// New validates the credential and returns a Fluidpay adapter.
func New(cfg Config, client httpclient.Client, log *logger.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, ierr.NewError("missing fluidpay api key").
			WithHint("Configure the api_key credential").
			Mark(ierr.ErrConfiguration)
	}
	if client == nil {
		client = httpclient.NewDefaultClient()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Gateway{cfg: cfg, client: client, logger: log}, nil
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
	addPayment(body, card, opts)
	if err := add3DS(body, opts); err != nil {
		return nil, err
	}
	addAddress(body, card, opts)
	addCustomerData(body, opts)

	return g.commit(ctx, actionPurchase, body, "")
}

func (g *Gateway) Authorize(ctx context.Context, amount int64, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	opts = opts.Clone()

	body := map[string]interface{}{}
	addInvoice(body, amount, opts)
	addPayment(body, card, opts)
	addAddress(body, card, opts)
	addCustomerData(body, opts)

	return g.commit(ctx, actionAuthorize, body, "")
}

func (g *Gateway) Capture(ctx context.Context, amount int64, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	body := map[string]interface{}{"amount": amount}
	return g.commit(ctx, actionCapture, body, authorization)
}

func (g *Gateway) Refund(ctx context.Context, amount int64, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	body := map[string]interface{}{"amount": amount}
	return g.commit(ctx, actionRefund, body, authorization)
}

func (g *Gateway) Void(ctx context.Context, authorization string, opts *gateway.Options) (*gateway.Result, error) {
	return g.commit(ctx, actionVoid, map[string]interface{}{}, authorization)
}

func (g *Gateway) Verify(ctx context.Context, card *gateway.Card, opts *gateway.Options) (*gateway.Result, error) {
	opts = opts.Clone()

	body := map[string]interface{}{}
	addInvoice(body, verificationAmountInCents, opts)
	addPayment(body, card, opts)
	addAddress(body, card, opts)
	addCustomerData(body, opts)

	return g.commit(ctx, actionVerify, body, "")
}

func addCustomerData(body map[string]interface{}, opts *gateway.Options) {
	if opts.Email != "" {
		body["email_address"] = opts.Email
		billingAddress(body)["email"] = opts.Email
	}
	if opts.IP != "" {
		body["ip_address"] = opts.IP
	}
}

func addAddress(body map[string]interface{}, card *gateway.Card, opts *gateway.Options) {
	address := opts.BillingAddress
	if address == nil {
		return
	}

	fields := billingAddress(body)
	if card.FirstName != "" {
		fields["first_name"] = gateway.Truncate(card.FirstName, 50)
	}
	if card.LastName != "" {
		fields["last_name"] = gateway.Truncate(card.LastName, 50)
	}
	setIfPresent(fields, "address_line_1", address.Address1)
	setIfPresent(fields, "address_line_2", address.Address2)
	setIfPresent(fields, "city", address.City)
	setIfPresent(fields, "state", address.State)
	setIfPresent(fields, "country", address.Country)
	setIfPresent(fields, "postal_code", address.Zip)
}

func addInvoice(body map[string]interface{}, amount int64, opts *gateway.Options) {
	body["order_id"] = opts.OrderID
	body["currency"] = lo.Ternary(opts.Currency != "", opts.Currency, "USD")
	body["amount"] = amount
	if opts.Description != "" {
		body["description"] = gateway.Truncate(opts.Description, 1024)
	}
	setIfPresent(body, "billing_method", opts.BillingMethod)
	if len(opts.Descriptor) > 0 {
		body["descriptor"] = opts.Descriptor
	}
}

func addPayment(body map[string]interface{}, card *gateway.Card, opts *gateway.Options) {
	cardFields := cardBlock(body)
	cardFields["entry_type"] = "keyed"
	cardFields["number"] = card.Number
	cardFields["expiration_date"] = card.ExpDate("/")
	if card.CVV != "" {
		cardFields["cvv"] = card.CVV
	}

	// CIT/MIT
	setIfPresent(body, "card_on_file_indicator", opts.CardOnFileIndicator)
	setIfPresent(body, "initiated_by", opts.InitiatedBy)
	setIfPresent(body, "initial_transaction_id", opts.InitialTransactionID)
	setIfPresent(body, "stored_credential_indicator", opts.StoredCredentialIndicator)
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

	auth := map[string]interface{}{"eci": tds.ECI}
	setIfPresent(auth, "xid", tds.XID)
	setIfPresent(auth, "cavv", tds.CAVV)
	setIfPresent(auth, "ds_transaction_id", tds.DSTransactionID)
	setIfPresent(auth, "acs_transaction_id", tds.ACSTransactionID)
	if tds.Version != "" {
		version, err := protocolVersionFor(tds.Version)
		if err != nil {
			return err
		}
		auth["version"] = version
	}

	cardBlock(body)["cardholder_authentication"] = auth
	return nil
}

func protocolVersionFor(version string) (string, error) {
	switch {
	case version2Pattern.MatchString(version):
		return "2", nil
	case version1Pattern.MatchString(version):
		return "1", nil
	default:
		return "", ierr.NewError("invalid 3ds protocol version").
			WithHintf("Unrecognized 3-D-Secure version %q", version).
			Mark(ierr.ErrValidation)
	}
}

func billingAddress(body map[string]interface{}) map[string]interface{} {
	return nestedBlock(body, "billing_address")
}

func cardBlock(body map[string]interface{}) map[string]interface{} {
	return nestedBlock(nestedBlock(body, "payment_method"), "card")
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

type transactionResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Data   struct {
		ID           string `json:"id"`
		Type         string `json:"type"`
		Response     string `json:"response"`
		ResponseCode int    `json:"response_code"`
		ResponseBody struct {
			Card struct {
				AVSResponseCode string `json:"avs_response_code"`
				CVVResponseCode string `json:"cvv_response_code"`
			} `json:"card"`
		} `json:"response_body"`
	} `json:"data"`
}

func (g *Gateway) commit(ctx context.Context, act action, body map[string]interface{}, transactionID string) (*gateway.Result, error) {
	url, err := g.urlFor(act, transactionID)
	if err != nil {
		return nil, err
	}

	switch act {
	case actionAuthorize:
		body["type"] = "authorize"
	case actionPurchase:
		body["type"] = "sale"
	case actionVerify:
		body["type"] = "verification"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: "POST",
		URL:    url,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": g.cfg.APIKey,
		},
		Body: payload,
	})
	if err != nil {
		return nil, err
	}

	var parsed transactionResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Fluidpay returned a malformed response").
			Mark(ierr.ErrHTTPClient)
	}

	success := successFrom(act, &parsed)
	result := &gateway.Result{
		Success:       success,
		Message:       messageFrom(act, &parsed),
		Raw:           resp.Body,
		Authorization: parsed.Data.ID,
		AVSResult:     parsed.Data.ResponseBody.Card.AVSResponseCode,
		CVVResult:     parsed.Data.ResponseBody.Card.CVVResponseCode,
		TestMode:      !g.cfg.Mode.IsLive(),
	}
	if !success {
		result.ErrorCode = errorCodeFrom(&parsed)
		g.logger.Infow("fluidpay declined transaction",
			"response_code", parsed.Data.ResponseCode,
			"error_code", result.ErrorCode)
	}
	return result, nil
}

func successFrom(act action, resp *transactionResponse) bool {
	if act == actionVoid {
		return resp.Status == "success" && resp.Data.Type == "void"
	}
	return resp.Data.ResponseCode == 100
}

func messageFrom(act action, resp *transactionResponse) string {
	if act == actionVoid {
		return resp.Data.Type
	}
	return resp.Data.Response
}

func errorCodeFrom(resp *transactionResponse) gateway.ErrorCode {
	code := resp.Data.ResponseCode
	if code == 0 {
		return ""
	}
	if standard, ok := standardErrorCodes[code]; ok {
		return standard
	}
	if code >= 200 && code < 400 {
		return gateway.ErrorCodeCardDeclined
	}
	return ""
}

func (g *Gateway) urlFor(act action, transactionID string) (string, error) {
	base := lo.Ternary(g.cfg.Mode.IsLive(), liveURL, testURL)

	switch act {
	case actionAuthorize, actionPurchase, actionVerify:
		return base + "/transaction", nil
	case actionCapture, actionRefund, actionVoid:
		if transactionID == "" {
			return "", ierr.NewError("missing transaction id").
				WithHint("This operation requires the authorization from a prior call").
				Mark(ierr.ErrValidation)
		}
		return base + "/transaction/" + transactionID + "/" + string(act), nil
	default:
		return "", ierr.NewError("unsupported fluidpay action").
			WithHintf("No URL mapping for action %q", act).
			Mark(ierr.ErrUnsupportedOperation)
	}
}
