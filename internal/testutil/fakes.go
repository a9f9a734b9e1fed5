package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codr1/courtbook/internal/notify"
	"github.com/codr1/courtbook/internal/payment"
)

// FakeGateway is an in-memory payment.Gateway.
type FakeGateway struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]payment.Intent
	refunds   []payment.RefundInput
	cancelled []string

	CreateErr  error
	GetErr     error
	RefundErrs map[string]error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		intents:    make(map[string]payment.Intent),
		RefundErrs: make(map[string]error),
	}
}

func (g *FakeGateway) CreateIntent(_ context.Context, in payment.CreateIntentInput) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return payment.Intent{}, g.CreateErr
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	intent := payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       payment.IntentRequiresPayment,
		AmountMinor:  in.AmountMinor,
		Currency:     in.Currency,
	}
	g.intents[id] = intent
	return intent, nil
}

func (g *FakeGateway) GetIntent(_ context.Context, ref string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.GetErr != nil {
		return payment.Intent{}, g.GetErr
	}
	intent, ok := g.intents[ref]
	if !ok {
		return payment.Intent{}, fmt.Errorf("no such payment intent: %s", ref)
	}
	return intent, nil
}

func (g *FakeGateway) CancelIntent(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[ref]
	if !ok {
		return fmt.Errorf("no such payment intent: %s", ref)
	}
	intent.Status = payment.IntentCanceled
	g.intents[ref] = intent
	g.cancelled = append(g.cancelled, ref)
	return nil
}

func (g *FakeGateway) Refund(_ context.Context, in payment.RefundInput) (payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.RefundErrs[in.PaymentRef]; err != nil {
		return payment.Refund{}, err
	}
	g.refunds = append(g.refunds, in)
	return payment.Refund{
		ID:          fmt.Sprintf("re_test_%d", len(g.refunds)),
		Status:      payment.RefundSucceeded,
		AmountMinor: in.AmountMinor,
	}, nil
}

// AddIntent registers an intent created outside CreateIntent, such as a
// second installment.
func (g *FakeGateway) AddIntent(intent payment.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intent.ID] = intent
}

// SetStatus simulates the customer completing (or abandoning) a payment.
func (g *FakeGateway) SetStatus(ref string, status payment.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := g.intents[ref]
	intent.ID = ref
	intent.Status = status
	g.intents[ref] = intent
}

func (g *FakeGateway) Refunds() []payment.RefundInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.RefundInput(nil), g.refunds...)
}

func (g *FakeGateway) Cancelled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelled...)
}

// RecordingNotifier captures dispatched events synchronously.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *RecordingNotifier) Dispatch(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *RecordingNotifier) Notify(ctx context.Context, evt notify.Event) error {
	r.Dispatch(ctx, evt)
	return nil
}

func (r *RecordingNotifier) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func (r *RecordingNotifier) Types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]notify.EventType, 0, len(r.events))
	for _, evt := range r.events {
		types = append(types, evt.Type)
	}
	return types
}
