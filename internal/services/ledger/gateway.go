package ledger

import (
	"context"

	"kcb-payments-workbench/internal/rpc"

	"go.uber.org/zap"
)

// PaymentGatewayFromMOP resolves the gateway settling into the mode of
// payment's account for company. It falls back to the default gateway
// account when the account has no gateway of its own, and returns nil when
// nothing matches.
func (s *Service) PaymentGatewayFromMOP(ctx context.Context, args rpc.GatewayFromMOPArgs) (*string, error) {
	exists, err := s.gateways.ModeOfPaymentExists(ctx, args.ModeOfPayment)
	if err != nil || !exists {
		return nil, s.swallow("gateway lookup", err)
	}

	acc, err := s.gateways.ModeOfPaymentAccount(ctx, args.ModeOfPayment, args.Company)
	if err != nil {
		return nil, s.swallow("gateway lookup", err)
	}

	pga, err := s.gateways.GatewayAccountByPaymentAccount(ctx, acc.DefaultAccount)
	if err == nil {
		if pga.PaymentGateway == "" {
			return nil, nil
		}
		return &pga.PaymentGateway, nil
	}
	if !notFound(err) {
		return nil, s.swallow("gateway lookup", err)
	}

	def, err := s.gateways.DefaultGatewayAccount(ctx)
	if err != nil || def.PaymentGateway == "" {
		return nil, s.swallow("default gateway lookup", err)
	}
	return &def.PaymentGateway, nil
}

// MOPFromPaymentGateway resolves the mode of payment whose company account
// receives one of the gateway's payment accounts.
func (s *Service) MOPFromPaymentGateway(ctx context.Context, args rpc.MOPFromGatewayArgs) (*string, error) {
	if args.PaymentGateway == "" {
		return nil, nil
	}

	accounts, err := s.gateways.GatewayAccounts(ctx, args.PaymentGateway)
	if err != nil {
		return nil, s.swallow("mode of payment lookup", err)
	}

	for _, pga := range accounts {
		mop, err := s.gateways.ModeOfPaymentByAccount(ctx, pga.PaymentAccount, args.Company)
		if err == nil {
			return &mop.ModeOfPayment, nil
		}
		if !notFound(err) {
			return nil, s.swallow("mode of payment lookup", err)
		}
	}
	return nil, nil
}

// swallow logs lookup failures; the lookups answer "no match" instead of
// failing.
func (s *Service) swallow(what string, err error) error {
	if err != nil && !notFound(err) {
		s.log.Warn(what+" failed", zap.Error(err))
	}
	return nil
}
