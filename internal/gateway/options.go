package gateway

// Options is the free-form options structure accepted by every operation.
// Adapters read the fields they understand and ignore the rest.
type Options struct {
	OrderID     string
	Currency    string
	Description string
	Email       string
	IP          string

	BillingAddress *Address
	ThreeDSecure   *ThreeDSecure

	// Stored-credential / CIT-MIT indicators (Fluidpay).
	// CardOnFileIndicator: "C" general, "R" recurring, "I" installment.
	// InitiatedBy: "customer" or "merchant".
	// StoredCredentialIndicator: "stored" or "used".
	CardOnFileIndicator       string
	InitiatedBy               string
	InitialTransactionID      string
	StoredCredentialIndicator string

	// Soft-descriptor fields (Fluidpay).
	BillingMethod string
	Descriptor    map[string]string

	// Pathly charge routing. IDs are generated when absent.
	CustomerID        string
	PaymentMethodID   string
	ChargeID          string
	Reason            string
	CV2               string
	DynamicDescriptor string
	PhoneNumber       string
	IdempotencyID     string
}

// Clone returns a shallow copy so adapters can fill in generated values
// without mutating the caller's struct.
func (o *Options) Clone() *Options {
	if o == nil {
		return &Options{}
	}
	clone := *o
	return &clone
}
