package terminal

import "context"

// Provider is the outbound port to the terminal payments provider.
// Failures are returned as *ProviderError whenever the provider reported a code.
type Provider interface {
	ProcessPaymentIntent(ctx context.Context, readerID, paymentIntentID string) (*ReaderState, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	CreateConnectionToken(ctx context.Context) (string, error)
	CreatePaymentIntent(ctx context.Context, amount int64) (*PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	PresentPaymentMethod(ctx context.Context, readerID string) (*ReaderState, error)
}
