// Package stkpush implements the "Retry STK Push" action of a failed KCB
// Mpesa STK Request.
package stkpush

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"

	"go.uber.org/zap"
)

// StatusFailed is the only request status that offers a retry.
const StatusFailed = "Failed"

var (
	ErrNotRetryable  = errors.New("stkpush: only failed requests can be retried")
	ErrRetryInFlight = errors.New("stkpush: a retry for this request is already in flight")
)

var (
	checkPhone = notice.Notice{Level: notice.Info, Message: "Please check your phone to complete the payment."}
	pushFailed = notice.Notice{Level: notice.Error, Message: "STK Push failed: Check error log for details."}
)

type Backend interface {
	GenerateSTKPush(ctx context.Context, args rpc.STKPushArgs) (rpc.STKPushResult, error)
	STKRequest(ctx context.Context, name string) (rpc.STKRequest, error)
}

var _ Backend = (*rpc.Client)(nil)

func CanRetry(req rpc.STKRequest) bool {
	return req.Status == StatusFailed
}

// PushArgs rebuilds the original push request with a back-reference to req.
func PushArgs(req rpc.STKRequest) rpc.STKPushArgs {
	return rpc.STKPushArgs{
		PhoneNumber:            req.PhoneNumber,
		RequestAmount:          req.Amount,
		InvoiceNumber:          fmt.Sprintf("%s-%s", req.TillNo, req.ReferenceName),
		TransactionDescription: req.TransactionDesc,
		PaymentGateway:         req.PaymentGateway,
		Settings:               req.KCBMpesaSettings,
		KCBMpesaSTKRequest:     req.Name,
	}
}

// Retrier re-sends STK pushes, at most one at a time per request.
type Retrier struct {
	backend  Backend
	notifier notice.Notifier
	log      *zap.Logger
	inflight sync.Map // request name -> struct{}
}

type Option func(*Retrier)

func WithNotifier(n notice.Notifier) Option {
	return func(r *Retrier) { r.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Retrier) { r.log = l }
}

func NewRetrier(backend Backend, opts ...Option) *Retrier {
	r := &Retrier{backend: backend, notifier: notice.Discard, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetryByName loads the request and retries it.
func (r *Retrier) RetryByName(ctx context.Context, name string) (rpc.STKPushResult, error) {
	req, err := r.backend.STKRequest(ctx, name)
	if err != nil {
		return rpc.STKPushResult{}, err
	}
	return r.Retry(ctx, req)
}

// Retry issues one push for a failed request. A second call for the same
// request while the first is in flight makes no call.
func (r *Retrier) Retry(ctx context.Context, req rpc.STKRequest) (rpc.STKPushResult, error) {
	if !CanRetry(req) {
		return rpc.STKPushResult{}, fmt.Errorf("%w: %s is %q", ErrNotRetryable, req.Name, req.Status)
	}
	if _, busy := r.inflight.LoadOrStore(req.Name, struct{}{}); busy {
		return rpc.STKPushResult{}, fmt.Errorf("%w: %s", ErrRetryInFlight, req.Name)
	}
	defer r.inflight.Delete(req.Name)

	args := PushArgs(req)
	res, err := r.backend.GenerateSTKPush(ctx, args)
	r.notifier.Notify(Outcome(res, err))
	switch {
	case err != nil:
		r.log.Error("stk push retry failed", zap.String("stk_request", req.Name), zap.Error(err))
		return res, fmt.Errorf("retrying stk push %s: %w", req.Name, err)
	case !res.Accepted():
		r.log.Error("stk push retry rejected",
			zap.String("stk_request", req.Name),
			zap.Int("status_code", res.StatusCode),
			zap.ByteString("response", res.Response),
			zap.String("error", res.Error),
		)
	default:
		r.log.Info("stk push retried",
			zap.String("stk_request", req.Name),
			zap.String("invoice_number", args.InvoiceNumber),
			zap.Int("status_code", res.StatusCode),
		)
	}
	return res, nil
}

// Outcome is the notice shown for a retry result.
func Outcome(res rpc.STKPushResult, err error) notice.Notice {
	if err == nil && res.Accepted() {
		return checkPhone
	}
	return pushFailed
}
