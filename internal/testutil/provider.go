// Package testutil provides test doubles shared across package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/terminal-gateway/internal/domain/terminal"
)

// FakeProvider is a scripted terminal.Provider. Process results are consumed in
// order; once exhausted the last entry repeats.
type FakeProvider struct {
	mu sync.Mutex

	ProcessResults []ProcessResult
	Intent         *terminal.PaymentIntent
	RetrieveErr    error
	Token          string
	TokenErr       error
	CreateErr      error
	CaptureErr     error
	PresentErr     error

	ProcessCalls  int
	RetrieveCalls int
	CreateCalls   int
	CaptureCalls  int
	PresentCalls  int
	TokenCalls    int

	LastAmount   int64
	LastReaderID string
	// CallContexts records the context passed to every ProcessPaymentIntent call.
	CallContexts []context.Context
	// OnProcess runs before each ProcessPaymentIntent returns.
	OnProcess func(call int)
}

type ProcessResult struct {
	Reader *terminal.ReaderState
	Err    error
}

var _ terminal.Provider = (*FakeProvider)(nil)

func Timeout() error {
	return &terminal.ProviderError{Code: terminal.CodeReaderTimeout, Message: "Reader timed out", HTTPStatus: 400}
}

func ProviderErr(code, msg string) error {
	return &terminal.ProviderError{Code: code, Message: msg, HTTPStatus: 400}
}

func Reader(id string) *terminal.ReaderState {
	return &terminal.ReaderState{
		ID:           id,
		Status:       terminal.ReaderStatusOnline,
		ActionType:   "process_payment_intent",
		ActionStatus: "in_progress",
		Raw:          []byte(`{"id":"` + id + `","object":"terminal.reader"}`),
	}
}

func (f *FakeProvider) ProcessPaymentIntent(ctx context.Context, readerID, _ string) (*terminal.ReaderState, error) {
	f.mu.Lock()
	f.ProcessCalls++
	call := f.ProcessCalls
	f.LastReaderID = readerID
	f.CallContexts = append(f.CallContexts, ctx)
	var res ProcessResult
	if n := len(f.ProcessResults); n > 0 {
		res = f.ProcessResults[min(call, n)-1]
	} else {
		res = ProcessResult{Reader: Reader(readerID)}
	}
	hook := f.OnProcess
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return res.Reader, res.Err
}

func (f *FakeProvider) RetrievePaymentIntent(_ context.Context, id string) (*terminal.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RetrieveCalls++
	if f.RetrieveErr != nil {
		return nil, f.RetrieveErr
	}
	if f.Intent != nil {
		return f.Intent, nil
	}
	return &terminal.PaymentIntent{ID: id, Status: terminal.IntentSucceeded, Amount: 1000, Currency: "usd"}, nil
}

func (f *FakeProvider) CreateConnectionToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TokenCalls++
	return f.Token, f.TokenErr
}

func (f *FakeProvider) CreatePaymentIntent(_ context.Context, amount int64) (*terminal.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	f.LastAmount = amount
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return &terminal.PaymentIntent{
		ID:            "pi_new",
		Status:        terminal.IntentRequiresPaymentMethod,
		Amount:        amount,
		Currency:      "usd",
		CaptureMethod: "automatic",
		ClientSecret:  "pi_new_secret_abc",
	}, nil
}

func (f *FakeProvider) CapturePaymentIntent(_ context.Context, id string) (*terminal.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CaptureCalls++
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	return &terminal.PaymentIntent{ID: id, Status: terminal.IntentSucceeded, Raw: []byte(`{"id":"` + id + `"}`)}, nil
}

func (f *FakeProvider) PresentPaymentMethod(_ context.Context, readerID string) (*terminal.ReaderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PresentCalls++
	f.LastReaderID = readerID
	if f.PresentErr != nil {
		return nil, f.PresentErr
	}
	r := Reader(readerID)
	r.ActionStatus = "succeeded"
	return r, nil
}
