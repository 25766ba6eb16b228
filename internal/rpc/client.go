package rpc

import (
	"context"
	"fmt"
)

// Client exposes the kcb_payments remote methods as typed calls.
type Client struct {
	caller Caller
}

func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) OutstandingInvoices(ctx context.Context, q OutstandingInvoiceQuery) ([]OutstandingInvoice, error) {
	var out []OutstandingInvoice
	if err := c.caller.Call(ctx, MethodOutstandingInvoices, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnreconciledPayments(ctx context.Context, q UnreconciledPaymentQuery) ([]UnreconciledPayment, error) {
	var out []UnreconciledPayment
	if err := c.caller.Call(ctx, MethodUnreconciledPayments, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ProcessReconciliation(ctx context.Context, args ReconciliationArgs) error {
	return c.caller.Call(ctx, MethodProcessReconciliation, args, nil)
}

func (c *Client) SearchTransactions(ctx context.Context, args TransactionSearchArgs) ([]PaymentTransaction, error) {
	var out []PaymentTransaction
	if err := c.caller.Call(ctx, MethodSearchTransactions, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ProcessPayment(ctx context.Context, args ProcessPaymentArgs) (ProcessPaymentResult, error) {
	var out ProcessPaymentResult
	if err := c.caller.Call(ctx, MethodProcessPayment, args, &out); err != nil {
		return ProcessPaymentResult{}, err
	}
	return out, nil
}

// PaymentGatewayFromMOP returns "" when no gateway is linked.
func (c *Client) PaymentGatewayFromMOP(ctx context.Context, modeOfPayment, company string) (string, error) {
	var out *string
	args := GatewayFromMOPArgs{ModeOfPayment: modeOfPayment, Company: company}
	if err := c.caller.Call(ctx, MethodGatewayFromModeOfPayment, args, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return *out, nil
}

// MOPFromPaymentGateway returns "" when no mode of payment is linked.
func (c *Client) MOPFromPaymentGateway(ctx context.Context, gateway, company string) (string, error) {
	var out *string
	args := MOPFromGatewayArgs{PaymentGateway: gateway, Company: company}
	if err := c.caller.Call(ctx, MethodModeOfPaymentFromGateway, args, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return *out, nil
}

func (c *Client) GenerateSTKPush(ctx context.Context, args STKPushArgs) (STKPushResult, error) {
	var out STKPushResult
	if err := c.caller.Call(ctx, MethodGenerateSTKPush, args, &out); err != nil {
		return STKPushResult{}, err
	}
	return out, nil
}

func (c *Client) SalesInvoice(ctx context.Context, name string) (SalesInvoice, error) {
	var out SalesInvoice
	if err := c.caller.Call(ctx, MethodGetDoc, GetDocArgs{Doctype: DoctypeSalesInvoice, Name: name}, &out); err != nil {
		return SalesInvoice{}, fmt.Errorf("loading sales invoice %s: %w", name, err)
	}
	return out, nil
}

func (c *Client) STKRequest(ctx context.Context, name string) (STKRequest, error) {
	var out STKRequest
	if err := c.caller.Call(ctx, MethodGetDoc, GetDocArgs{Doctype: DoctypeSTKRequest, Name: name}, &out); err != nil {
		return STKRequest{}, fmt.Errorf("loading stk request %s: %w", name, err)
	}
	return out, nil
}
