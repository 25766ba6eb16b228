package rpc

// Remote method paths exposed by the kcb_payments Frappe app.
const (
	MethodGenerateSTKPush          = "kcb_payments.kcb_payments.api.kcb_mpesa.generate_stk_push"
	MethodOutstandingInvoices      = "kcb_payments.kcb_payments.api.payment_entry.get_outstanding_invoices"
	MethodUnreconciledPayments     = "kcb_payments.kcb_payments.api.payment_entry.get_unreconciled_kcb_payments"
	MethodProcessReconciliation    = "kcb_payments.kcb_payments.api.payment_entry.process_kcb_reconciliation"
	MethodGatewayFromModeOfPayment = "kcb_payments.kcb_payments.api.payment_request.get_payment_gateway_from_mop"
	MethodModeOfPaymentFromGateway = "kcb_payments.kcb_payments.api.payment_request.get_mop_from_payment_gateway"
	MethodSearchTransactions       = "kcb_payments.kcb_payments.utils.kcb_payment_notification.fetch_kcb_payment_transactions"
	MethodProcessPayment           = "kcb_payments.kcb_payments.utils.kcb_payment_notification.process_kcb_payment"
	MethodPaymentNotification      = "kcb_payments.kcb_payments.utils.kcb_payment_notification.kcb_payment_notification"
	MethodSTKPushCallback          = "kcb_payments.kcb_payments.utils.utils.stk_push_callback"
	MethodGetDoc                   = "frappe.client.get"
)

// Doctype names used with frappe.client.get.
const (
	DoctypeSalesInvoice = "Sales Invoice"
	DoctypeSTKRequest   = "KCB Mpesa STK Request"
)
