package gateway

import "encoding/json"

// ErrorCode is the shared decline taxonomy. Adapters map their processor's
// numeric or letter codes into these buckets; codes with no reasonable
// mapping stay empty.
type ErrorCode string

const (
	ErrorCodeCardDeclined    ErrorCode = "card_declined"
	ErrorCodeExpiredCard     ErrorCode = "expired_card"
	ErrorCodeInvalidCVC      ErrorCode = "invalid_cvc"
	ErrorCodeCallIssuer      ErrorCode = "call_issuer"
	ErrorCodePickupCard      ErrorCode = "pickup_card"
	ErrorCodeProcessingError ErrorCode = "processing_error"
	ErrorCodeConfigError     ErrorCode = "config_error"
)

// Result is the uniform outcome of a payment operation. A gateway-level
// decline is reported here with Success=false; it is not an error.
type Result struct {
	Success bool
	Message string
	// Raw is the unparsed gateway response body.
	Raw json.RawMessage
	// Authorization is the gateway reference used for later capture,
	// refund and void calls.
	Authorization string
	AVSResult     string
	CVVResult     string
	ErrorCode     ErrorCode
	TestMode      bool

	// Redirect fields are set when the gateway answers with a 3-D-Secure
	// challenge instead of a final outcome (Pathly 202 responses).
	RedirectRequired bool
	RedirectURL      string
}
