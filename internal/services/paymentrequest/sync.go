// Package paymentrequest keeps the mode of payment and payment gateway of a
// Payment Request form in step with each other.
package paymentrequest

import (
	"context"
	"errors"
	"fmt"

	"kcb-payments-workbench/internal/rpc"

	"go.uber.org/zap"
)

type Backend interface {
	PaymentGatewayFromMOP(ctx context.Context, modeOfPayment, company string) (string, error)
	MOPFromPaymentGateway(ctx context.Context, gateway, company string) (string, error)
}

var _ Backend = (*rpc.Client)(nil)

var ErrUnknownEvent = errors.New("unknown payment request event")

// Form events.
const (
	EventModeOfPayment  = "mode_of_payment"
	EventPaymentGateway = "payment_gateway"
	EventRefresh        = "refresh"
)

// Form holds the Payment Request fields the sync reads and writes.
type Form struct {
	Company        string `json:"company"`
	ModeOfPayment  string `json:"mode_of_payment"`
	PaymentGateway string `json:"payment_gateway"`
}

type Syncer struct {
	backend Backend
	log     *zap.Logger
}

func NewSyncer(backend Backend, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{backend: backend, log: log}
}

// ModeOfPaymentChanged sets the gateway linked to the new mode of payment.
func (s *Syncer) ModeOfPaymentChanged(ctx context.Context, f Form) Form {
	if f.ModeOfPayment == "" || f.Company == "" {
		return f
	}
	gw, err := s.backend.PaymentGatewayFromMOP(ctx, f.ModeOfPayment, f.Company)
	if err != nil {
		s.log.Warn("payment gateway lookup failed",
			zap.String("mode_of_payment", f.ModeOfPayment),
			zap.String("company", f.Company),
			zap.Error(err),
		)
		return f
	}
	if gw != "" {
		f.PaymentGateway = gw
	}
	return f
}

// PaymentGatewayChanged sets the mode of payment linked to the new gateway.
func (s *Syncer) PaymentGatewayChanged(ctx context.Context, f Form) Form {
	if f.PaymentGateway == "" || f.Company == "" {
		return f
	}
	mop, err := s.backend.MOPFromPaymentGateway(ctx, f.PaymentGateway, f.Company)
	if err != nil {
		s.log.Warn("mode of payment lookup failed",
			zap.String("payment_gateway", f.PaymentGateway),
			zap.String("company", f.Company),
			zap.Error(err),
		)
		return f
	}
	if mop != "" {
		f.ModeOfPayment = mop
	}
	return f
}

// Refresh fills whichever of the two fields is missing.
func (s *Syncer) Refresh(ctx context.Context, f Form) Form {
	switch {
	case f.ModeOfPayment != "" && f.PaymentGateway == "":
		return s.ModeOfPaymentChanged(ctx, f)
	case f.PaymentGateway != "" && f.ModeOfPayment == "":
		return s.PaymentGatewayChanged(ctx, f)
	}
	return f
}

// Apply runs the handler for a form event. An empty event is a refresh.
func (s *Syncer) Apply(ctx context.Context, event string, f Form) (Form, error) {
	switch event {
	case EventModeOfPayment:
		return s.ModeOfPaymentChanged(ctx, f), nil
	case EventPaymentGateway:
		return s.PaymentGatewayChanged(ctx, f), nil
	case EventRefresh, "":
		return s.Refresh(ctx, f), nil
	}
	return f, fmt.Errorf("%w %q", ErrUnknownEvent, event)
}
