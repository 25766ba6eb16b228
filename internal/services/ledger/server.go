package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"kcb-payments-workbench/internal/rpc"

	"go.uber.org/zap"
)

type handler func(ctx context.Context, args json.RawMessage) (any, error)

// Server dispatches remote method calls to the Service. It implements
// rpc.Caller, so controllers can run against it in-process.
type Server struct {
	svc     *Service
	log     *zap.Logger
	methods map[string]handler
}

func NewServer(svc *Service) *Server {
	s := &Server{svc: svc, log: svc.log}
	s.methods = map[string]handler{
		rpc.MethodOutstandingInvoices:      bind(svc.OutstandingInvoices),
		rpc.MethodUnreconciledPayments:     bind(svc.UnreconciledPayments),
		rpc.MethodProcessReconciliation:    bindErr(svc.ProcessReconciliation),
		rpc.MethodSearchTransactions:       bind(svc.SearchTransactions),
		rpc.MethodProcessPayment:           bind(svc.ProcessPayment),
		rpc.MethodGatewayFromModeOfPayment: bind(svc.PaymentGatewayFromMOP),
		rpc.MethodModeOfPaymentFromGateway: bind(svc.MOPFromPaymentGateway),
		rpc.MethodGenerateSTKPush:          bind(svc.GenerateSTKPush),
		rpc.MethodGetDoc:                   bind(svc.GetDoc),
	}
	return s
}

// Service returns the backing service.
func (s *Server) Service() *Service { return s.svc }

// Methods lists the served method names.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bind[A, R any](fn func(context.Context, A) (R, error)) handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}

func bindErr[A any](fn func(context.Context, A) error) handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args A
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, fn(ctx, args)
	}
}

func decodeArgs(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalid("Invalid arguments: %v", err)
	}
	return nil
}

// Invoke runs method with JSON args and returns the JSON message. Failures
// are *rpc.RemoteError values shaped like Frappe exceptions.
func (s *Server) Invoke(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	h, ok := s.methods[method]
	if !ok {
		return nil, &rpc.RemoteError{
			Method:     method,
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("Method %s not found", method),
		}
	}

	result, err := h(ctx, args)
	if err != nil {
		return nil, s.remoteError(method, err)
	}

	msg, err := json.Marshal(result)
	if err != nil {
		return nil, s.remoteError(method, fmt.Errorf("encoding result: %w", err))
	}
	return msg, nil
}

// Call implements rpc.Caller.
func (s *Server) Call(ctx context.Context, method string, args any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding %s args: %w", method, err)
	}
	msg, err := s.Invoke(ctx, method, raw)
	if err != nil {
		return err
	}
	return rpc.DecodeMessage(msg, out)
}

func (s *Server) remoteError(method string, err error) *rpc.RemoteError {
	var ve *ValidationError
	var nf *NotFoundError
	switch {
	case errors.As(err, &ve):
		return &rpc.RemoteError{Method: method, StatusCode: http.StatusExpectationFailed, ExcType: "ValidationError", Message: ve.Message}
	case errors.As(err, &nf):
		return &rpc.RemoteError{Method: method, StatusCode: http.StatusNotFound, ExcType: rpc.ExcDoesNotExist, Message: nf.Error()}
	}
	s.log.Error("sandbox method failed", zap.String("method", method), zap.Error(err))
	return &rpc.RemoteError{Method: method, StatusCode: http.StatusInternalServerError, ExcType: "Exception", Message: err.Error()}
}

// Envelope renders a result or error the way Frappe answers /api/method.
func Envelope(msg json.RawMessage, err error) (int, rpc.Envelope) {
	if err == nil {
		return http.StatusOK, rpc.Envelope{Message: msg}
	}
	var re *rpc.RemoteError
	if !errors.As(err, &re) {
		re = &rpc.RemoteError{StatusCode: http.StatusInternalServerError, ExcType: "Exception", Message: err.Error()}
	}
	excType := re.ExcType
	if excType == "" {
		excType = "Exception"
	}
	env := rpc.NewErrorEnvelope(excType, re.Message)
	status := re.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, env
}
