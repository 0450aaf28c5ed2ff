package worldnetv2

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	ierr "github.com/paybridge/paybridge/internal/errors"
	"github.com/paybridge/paybridge/internal/gateway"
	"github.com/paybridge/paybridge/internal/gateway/token"
	"github.com/paybridge/paybridge/internal/logger"
	"github.com/paybridge/paybridge/internal/testutil"
)

const (
	authenticateResponseBody = `{
		"token": "eyJhbGciOiJIUzUxMiJ9.tok",
		"allowedTerminals": ["5304001"],
		"expiresIn": 1
	}`

	noTerminalResponseBody = `{
		"token": "eyJhbGciOiJIUzUxMiJ9.tok",
		"allowedTerminals": [],
		"expiresIn": 1
	}`

	approvedPaymentResponse = `{
		"uniqueReference": "I3ILXYOMWA",
		"terminal": "5304001",
		"order": {"orderId": "order-1", "currency": "USD", "totalAmount": 1.00},
		"securityCheck": {"cvvResult": "M", "avsResult": "Y"},
		"transactionResult": {
			"type": "SALE",
			"status": "COMPLETE",
			"resultCode": "A",
			"resultMessage": "OK2115"
		}
	}`

	declinedPaymentResponse = `{
		"uniqueReference": "GVDXBWW08I",
		"securityCheck": {"cvvResult": "N", "avsResult": "N"},
		"transactionResult": {
			"type": "SALE",
			"status": "DECLINED",
			"resultCode": "D",
			"resultMessage": "DECLINED"
		}
	}`

	reversedPaymentResponse = `{
		"uniqueReference": "I3ILXYOMWA",
		"transactionResult": {
			"type": "SALE",
			"status": "REVERSED",
			"resultCode": "A",
			"resultMessage": "REVERSAL"
		}
	}`
)

type GatewayTestSuite struct {
	suite.Suite
	ctx    context.Context
	mock   *testutil.MockHTTPClient
	tokens *token.Store
	gw     *Gateway
	card   *gateway.Card
	opts   *gateway.Options
}

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mock = testutil.NewMockHTTPClient()
	s.tokens = token.NewStore(nil)

	gw, err := New(Config{MerchantAPIKey: "bWVyY2hhbnQ="}, s.mock, logger.NewNopLogger(), WithTokenStore(s.tokens))
	s.Require().NoError(err)
	s.gw = gw

	s.card = &gateway.Card{
		Number:    "4111111111111111",
		Month:     9,
		Year:      2024,
		FirstName: "Longbob",
		LastName:  "Longsen",
		CVV:       "123",
	}
	s.opts = &gateway.Options{OrderID: "order-1"}
}

func (s *GatewayTestSuite) registerLogin() {
	s.mock.RegisterJSONResponse("/account/authenticate", authenticateResponseBody)
}

func (s *GatewayTestSuite) lastRequestBody() map[string]interface{} {
	requests := s.mock.Requests()
	s.Require().NotEmpty(requests)
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(requests[len(requests)-1].Body, &body))
	return body
}

func (s *GatewayTestSuite) TestNewRequiresMerchantAPIKey() {
	_, err := New(Config{}, s.mock, nil)
	s.Error(err)
	s.True(ierr.IsConfiguration(err))
}

func (s *GatewayTestSuite) TestSuccessfulPurchase() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	result, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("COMPLETE", result.Message)
	s.Equal("I3ILXYOMWA", result.Authorization)
	s.Equal("Y", result.AVSResult)
	s.Equal("M", result.CVVResult)
	s.True(result.TestMode)

	requests := s.mock.Requests()
	s.Require().Len(requests, 2)

	login := requests[0]
	s.Equal("GET", login.Method)
	s.Equal("https://testpayments.worldnettps.com/merchant/api/v1/account/authenticate", login.URL)
	s.Equal("Basic bWVyY2hhbnQ=", login.Headers["Authorization"])

	payment := requests[1]
	s.Equal("POST", payment.Method)
	s.Equal("https://testpayments.worldnettps.com/merchant/api/v1/transaction/payments", payment.URL)
	s.Equal("Bearer eyJhbGciOiJIUzUxMiJ9.tok", payment.Headers["Authorization"])

	body := s.lastRequestBody()
	s.Equal("WEB", body["channel"])
	s.Equal("5304001", body["terminal"])
	s.Equal(true, body["autoCapture"])
	s.Equal(true, body["processAsSale"])

	order := body["order"].(map[string]interface{})
	s.Equal("order-1", order["orderId"])
	s.Equal("1.00", order["totalAmount"])
	s.Equal("USD", order["currency"])

	account := body["customerAccount"].(map[string]interface{})
	s.Equal("KEYED", account["payloadType"])
	s.Equal("Longbob Longsen", account["cardholderName"])
	details := account["cardDetails"].(map[string]interface{})
	s.Equal("4111111111111111", details["cardNumber"])
	s.Equal("0924", details["expiryDate"])
	s.Equal("123", details["cvv"])
}

func (s *GatewayTestSuite) TestDeclinedPurchase() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", declinedPaymentResponse)

	result, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal("DECLINED", result.Message)
	s.Equal(gateway.ErrorCodeCardDeclined, result.ErrorCode)
}

func (s *GatewayTestSuite) TestPurchaseRequiresOrderID() {
	_, err := s.gw.Purchase(s.ctx, 100, s.card, &gateway.Options{})
	s.Error(err)
	s.True(ierr.IsValidation(err))
	s.Empty(s.mock.Requests())
}

func (s *GatewayTestSuite) TestTokenCachedAcrossCalls() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	_, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)
	_, err = s.gw.Purchase(s.ctx, 200, s.card, s.opts)
	s.Require().NoError(err)

	s.Equal(1, s.mock.CallCount("/account/authenticate"))
	s.Equal(2, s.mock.CallCount("/transaction/payments"))
}

func (s *GatewayTestSuite) TestTokenExpiryIsDeclaredInHours() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	before := time.Now()
	_, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)

	cached, ok := s.tokens.Get("bWVyY2hhbnQ=")
	s.Require().True(ok)
	s.Equal("5304001", cached.Terminal)
	// expiresIn of 1 means one hour, not one second.
	s.True(cached.ExpiresAt.After(before.Add(59 * time.Minute)))
	s.True(cached.ExpiresAt.Before(before.Add(61 * time.Minute)))
}

func (s *GatewayTestSuite) TestMissingTerminalIsNotCached() {
	s.mock.RegisterJSONResponse("/account/authenticate", noTerminalResponseBody)

	_, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Error(err)
	s.True(ierr.IsTerminalMissing(err))

	_, ok := s.tokens.Get("bWVyY2hhbnQ=")
	s.False(ok)

	// Once the account gains a terminal, the next call logs in again.
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)
	result, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(2, s.mock.CallCount("/account/authenticate"))
}

func (s *GatewayTestSuite) TestAuthorize() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	result, err := s.gw.Authorize(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)
	s.True(result.Success)

	body := s.lastRequestBody()
	s.Equal(false, body["autoCapture"])
	s.NotContains(body, "processAsSale")
}

func (s *GatewayTestSuite) TestCapture() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments/I3ILXYOMWA/capture", approvedPaymentResponse)

	result, err := s.gw.Capture(s.ctx, 150, "I3ILXYOMWA", nil)
	s.Require().NoError(err)
	s.True(result.Success)

	req := s.mock.Requests()[1]
	s.Equal("PATCH", req.Method)
	s.Equal("https://testpayments.worldnettps.com/merchant/api/v1/transaction/payments/I3ILXYOMWA/capture", req.URL)
	s.Equal("1.50", s.lastRequestBody()["captureAmount"])
}

func (s *GatewayTestSuite) TestRefundDefaultsReason() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments/I3ILXYOMWA/refunds", approvedPaymentResponse)

	result, err := s.gw.Refund(s.ctx, 100, "I3ILXYOMWA", nil)
	s.Require().NoError(err)
	s.True(result.Success)

	req := s.mock.Requests()[1]
	s.Equal("POST", req.Method)

	body := s.lastRequestBody()
	s.Equal("1.00", body["refundAmount"])
	s.Equal("Refund I3ILXYOMWA", body["refundReason"])
}

func (s *GatewayTestSuite) TestRefundTruncatesReason() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments/I3ILXYOMWA/refunds", approvedPaymentResponse)

	long := ""
	for i := 0; i < 30; i++ {
		long += "defective "
	}
	_, err := s.gw.Refund(s.ctx, 100, "I3ILXYOMWA", &gateway.Options{Reason: long})
	s.Require().NoError(err)

	reason := s.lastRequestBody()["refundReason"].(string)
	s.Len(reason, 100)
}

func (s *GatewayTestSuite) TestVoid() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments/I3ILXYOMWA/reverse", reversedPaymentResponse)

	result, err := s.gw.Void(s.ctx, "I3ILXYOMWA", nil)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("REVERSED", result.Message)

	req := s.mock.Requests()[1]
	s.Equal("PATCH", req.Method)
}

func (s *GatewayTestSuite) TestVoidRequiresAuthorization() {
	_, err := s.gw.Void(s.ctx, "", nil)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *GatewayTestSuite) TestVerify() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)
	s.mock.RegisterJSONResponse("/transaction/payments/I3ILXYOMWA/reverse", reversedPaymentResponse)

	result, err := s.gw.Verify(s.ctx, s.card, s.opts)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("I3ILXYOMWA", result.Authorization)

	// The caller sees the authorize outcome, not the reversal.
	s.Equal("COMPLETE", result.Message)
	s.Equal(1, s.mock.CallCount("/reverse"))

	auth := s.mock.Requests()[1]
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(auth.Body, &body))
	s.Equal(false, body["autoCapture"])
	s.Equal("1.00", body["order"].(map[string]interface{})["totalAmount"])
}

func (s *GatewayTestSuite) TestVerifyDeclinedSkipsVoid() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", declinedPaymentResponse)

	result, err := s.gw.Verify(s.ctx, s.card, s.opts)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(0, s.mock.CallCount("/reverse"))
}

func (s *GatewayTestSuite) TestAuthorizeCaptureRefundVoidChain() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	auth, err := s.gw.Authorize(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)
	s.Require().True(auth.Success)

	ref := auth.Authorization
	s.mock.RegisterJSONResponse("/transaction/payments/"+ref+"/capture", approvedPaymentResponse)
	s.mock.RegisterJSONResponse("/transaction/payments/"+ref+"/refunds", approvedPaymentResponse)
	s.mock.RegisterJSONResponse("/transaction/payments/"+ref+"/reverse", reversedPaymentResponse)

	capture, err := s.gw.Capture(s.ctx, 100, ref, nil)
	s.Require().NoError(err)
	s.True(capture.Success)

	refund, err := s.gw.Refund(s.ctx, 100, ref, nil)
	s.Require().NoError(err)
	s.True(refund.Success)

	void, err := s.gw.Void(s.ctx, ref, nil)
	s.Require().NoError(err)
	s.True(void.Success)

	// A single login serves the whole chain.
	s.Equal(1, s.mock.CallCount("/account/authenticate"))
}

func (s *GatewayTestSuite) TestPurchaseSendsThreeDSecure() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	s.opts.ThreeDSecure = &gateway.ThreeDSecure{
		ECI:             "05",
		XID:             "97267598-FAE6-48F2-8083-C23433990FBC",
		CAVV:            "jJ81HADVRtXfCBATEp01CJUAAAA",
		DSTransactionID: "97267598-FAE6-48F2-8083-C23433990FBC",
		Version:         "2.2.0",
	}
	_, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)

	block := s.lastRequestBody()["threeDSecure"].(map[string]interface{})
	s.Equal("THIRD_PARTY", block["serviceProvider"])
	s.Equal("05", block["eci"])
	s.Equal("VERSION_2", block["protocolVersion"])
	s.Equal("97267598-FAE6-48F2-8083-C23433990FBC", block["dsTransactionId"])
}

func (s *GatewayTestSuite) TestPurchaseSendsCustomerAndAddress() {
	s.registerLogin()
	s.mock.RegisterJSONResponse("/transaction/payments", approvedPaymentResponse)

	s.opts.Email = "joe@example.com"
	s.opts.IP = "127.0.0.1"
	s.opts.BillingAddress = &gateway.Address{
		Address1: "456 My Street",
		City:     "Ottawa",
		State:    "ON",
		Country:  "CA",
		Zip:      "K1C2N6",
	}
	_, err := s.gw.Purchase(s.ctx, 100, s.card, s.opts)
	s.Require().NoError(err)

	body := s.lastRequestBody()
	customer := body["customer"].(map[string]interface{})
	s.Equal("joe@example.com", customer["email"])

	billing := customer["billingAddress"].(map[string]interface{})
	s.Equal("456 My Street", billing["line1"])
	s.Equal("K1C2N6", billing["postalCode"])

	ip := body["ipAddress"].(map[string]interface{})
	s.Equal("127.0.0.1", ip["ipv4"])
}
