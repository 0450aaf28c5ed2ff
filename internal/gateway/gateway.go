// Package gateway defines the uniform payment-operation surface shared by
// every processor adapter. Adapters translate these calls into
// processor-specific HTTP requests and map the JSON responses back into a
// Result. A decline is a successfully completed call with Success=false,
// never a Go error; errors are reserved for configuration, authentication
// and transport failures.
package gateway

import "context"

// Gateway is the adapter-facing interface consumed by a checkout service.
// Amounts are integers in the currency's minor unit (cents for USD).
// Capture, Refund and Void take the authorization reference returned by a
// prior Purchase or Authorize call.
type Gateway interface {
	Purchase(ctx context.Context, amount int64, card *Card, opts *Options) (*Result, error)
	Authorize(ctx context.Context, amount int64, card *Card, opts *Options) (*Result, error)
	Capture(ctx context.Context, amount int64, authorization string, opts *Options) (*Result, error)
	Refund(ctx context.Context, amount int64, authorization string, opts *Options) (*Result, error)
	Void(ctx context.Context, authorization string, opts *Options) (*Result, error)
	Verify(ctx context.Context, card *Card, opts *Options) (*Result, error)
}
