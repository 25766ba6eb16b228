package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"kcb-payments-workbench/internal/app"
	"kcb-payments-workbench/internal/config"
	"kcb-payments-workbench/internal/models"
	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/routes"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/reconciliation"
	"kcb-payments-workbench/internal/services/transactionsearch"
	"kcb-payments-workbench/internal/testdb"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSandboxRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testdb.Open(t)
	testdb.Workbench(t, db)
	backend, err := app.NewSandbox(db, &config.Config{SiteURL: "http://workbench.test"}, zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Client:         backend.Client,
		DefaultCompany: "ACME",
		Sandbox:        backend.Sandbox,
	})
	return r, db
}

func newFakeRouter(t *testing.T, caller rpc.CallerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{Client: rpc.NewClient(caller)})
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type workbenchResponse struct {
	SessionID string               `json:"session_id"`
	State     reconciliation.State `json:"state"`
	Notices   []notice.Notice      `json:"notices"`
	Error     string               `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func rowFor[T any](rows []T, match func(T) bool) T {
	for _, r := range rows {
		if match(r) {
			return r
		}
	}
	var zero T
	return zero
}

func TestHealth(t *testing.T) {
	r, _ := newSandboxRouter(t)
	w := do(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sandbox":true}`, w.Body.String())
}

func TestWorkbench_ReconcileFlow(t *testing.T) {
	r, db := newSandboxRouter(t)

	w := do(t, r, http.MethodPost, "/api/reconciliation", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[workbenchResponse](t, w)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "ACME", created.State.Filters.Company)
	base := "/api/reconciliation/" + created.SessionID

	w = do(t, r, http.MethodPut, base+"/filters", reconciliation.Filters{Company: "ACME", Customer: "Jane"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[workbenchResponse](t, w).State.FetchVisible)

	w = do(t, r, http.MethodPost, base+"/fetch", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[workbenchResponse](t, w).State
	require.Len(t, st.Invoices, 2)
	require.Len(t, st.Payments, 3)
	assert.True(t, st.ActionVisible)

	inv := rowFor(st.Invoices, func(r reconciliation.InvoiceRow) bool { return r.Invoice == "ACC-SINV-2025-00001" })
	pay := rowFor(st.Payments, func(r reconciliation.PaymentRow) bool { return r.PaymentID == "KCB-PT-2025-00001" })
	w = do(t, r, http.MethodPut, base+"/selection", reconciliation.Selection{
		Invoices: []string{inv.RowID},
		Payments: []string{pay.RowID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, base+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[workbenchResponse](t, w)
	assert.Len(t, res.State.Invoices, 1)
	assert.Len(t, res.State.Payments, 2)
	assert.True(t, res.State.ActionVisible)
	assert.False(t, res.State.Busy)
	assert.Contains(t, res.Notices, notice.Notice{Level: notice.Success, Message: "Selected KCB entries processed successfully"})

	var invoice models.SalesInvoice
	require.NoError(t, db.First(&invoice, "name = ?", "ACC-SINV-2025-00001").Error)
	assert.True(t, invoice.OutstandingAmount.IsZero())
}

func TestWorkbench_ProcessWithoutSelection(t *testing.T) {
	r, _ := newSandboxRouter(t)
	id := decode[workbenchResponse](t, do(t, r, http.MethodPost, "/api/reconciliation", nil)).SessionID

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/reconciliation/"+id+"/fetch", nil).Code)
	w := do(t, r, http.MethodPost, "/api/reconciliation/"+id+"/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	res := decode[workbenchResponse](t, w)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "No Entries Selected", res.Notices[0].Title)
}

func TestWorkbench_FetchWithoutCompany(t *testing.T) {
	r, _ := newSandboxRouter(t)
	id := decode[workbenchResponse](t, do(t, r, http.MethodPost, "/api/reconciliation", nil)).SessionID

	do(t, r, http.MethodPut, "/api/reconciliation/"+id+"/filters", reconciliation.Filters{Customer: "Jane"})
	w := do(t, r, http.MethodPost, "/api/reconciliation/"+id+"/fetch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, notice.Warning, decode[workbenchResponse](t, w).Notices[0].Level)
}

func TestWorkbench_NoEntriesFound(t *testing.T) {
	r, _ := newSandboxRouter(t)
	id := decode[workbenchResponse](t, do(t, r, http.MethodPost, "/api/reconciliation", nil)).SessionID

	do(t, r, http.MethodPut, "/api/reconciliation/"+id+"/filters", reconciliation.Filters{Company: "ACME", Customer: "Nobody", FullName: "Nobody"})
	w := do(t, r, http.MethodPost, "/api/reconciliation/"+id+"/fetch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[workbenchResponse](t, w)
	assert.False(t, res.State.ActionVisible)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "No Entries Found", res.Notices[0].Title)
}

func TestWorkbench_UnknownRowAndSession(t *testing.T) {
	r, _ := newSandboxRouter(t)
	id := decode[workbenchResponse](t, do(t, r, http.MethodPost, "/api/reconciliation", nil)).SessionID

	w := do(t, r, http.MethodPut, "/api/reconciliation/"+id+"/selection", reconciliation.Selection{Invoices: []string{"invoices-9"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/reconciliation/missing", nil).Code)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/reconciliation/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/reconciliation/"+id, nil).Code)
}

func TestWorkbench_InvoicePicker(t *testing.T) {
	r, _ := newSandboxRouter(t)
	id := decode[workbenchResponse](t, do(t, r, http.MethodPost, "/api/reconciliation", nil)).SessionID
	do(t, r, http.MethodPut, "/api/reconciliation/"+id+"/filters", reconciliation.Filters{Company: "ACME", Customer: "Jane"})

	w := do(t, r, http.MethodGet, "/api/reconciliation/"+id+"/invoice-picker", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"filters":{"company":"ACME","customer":"Jane","docstatus":1,"outstanding_amount":[">",0]}}`, w.Body.String())
}

type searchResponse struct {
	DialogID   string                        `json:"dialog_id"`
	Candidates []transactionsearch.Candidate `json:"candidates"`
	Notices    []notice.Notice               `json:"notices"`
	Invoice    rpc.SalesInvoice              `json:"invoice"`
	Result     rpc.ProcessPaymentResult      `json:"result"`
}

func TestSearchDialog_Reconcile(t *testing.T) {
	r, _ := newSandboxRouter(t)

	w := do(t, r, http.MethodGet, "/api/invoices/ACC-SINV-2025-00002/actions", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"get_kcb_payments":true`)

	w = do(t, r, http.MethodPost, "/api/invoices/ACC-SINV-2025-00002/kcb-payments/search", transactionsearch.Criteria{CustomerName: "Jane"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	found := decode[searchResponse](t, w)
	require.NotEmpty(t, found.DialogID)
	require.Len(t, found.Candidates, 3)
	assert.Equal(t, "KCB-PT-2025-00002", found.Candidates[0].Name, "300 is closest to the 500 outstanding")

	w = do(t, r, http.MethodPost, "/api/kcb-payments/dialogs/"+found.DialogID+"/reconcile", gin.H{"payment": "KCB-PT-2025-00002"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[searchResponse](t, w)
	assert.True(t, done.Result.Success)
	assert.True(t, done.Invoice.OutstandingAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "Payment reconciled successfully.", done.Notices[0].Message)

	w = do(t, r, http.MethodPost, "/api/kcb-payments/dialogs/"+found.DialogID+"/reconcile", gin.H{"payment": "KCB-PT-2025-00002"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchDialog_Validation(t *testing.T) {
	r, _ := newSandboxRouter(t)

	w := do(t, r, http.MethodPost, "/api/invoices/ACC-SINV-2025-00002/kcb-payments/search", transactionsearch.Criteria{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation Error", decode[searchResponse](t, w).Notices[0].Title)

	w = do(t, r, http.MethodPost, "/api/invoices/ACC-SINV-2025-00002/kcb-payments/search", transactionsearch.Criteria{PhoneNumber: "254700000000"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[searchResponse](t, w)
	assert.Empty(t, res.DialogID)
	assert.Equal(t, "No Results", res.Notices[0].Title)

	w = do(t, r, http.MethodPost, "/api/invoices/ACC-SINV-2025-09999/kcb-payments/search", transactionsearch.Criteria{CustomerName: "Jane"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetrySTKPush(t *testing.T) {
	request := rpc.STKRequest{
		Name:          "KCB-STK-2025-00001",
		PhoneNumber:   "254712345678",
		Amount:        decimal.NewFromInt(500),
		TillNo:        "174379",
		ReferenceName: "ACC-SINV-2025-00002",
		Status:        "Failed",
	}
	tests := []struct {
		name    string
		status  string
		push    rpc.STKPushResult
		pushErr error
		code    int
		message string
	}{
		{"accepted", "Failed", rpc.STKPushResult{StatusCode: 201}, nil, http.StatusOK, "Please check your phone to complete the payment."},
		{"rejected", "Failed", rpc.STKPushResult{StatusCode: 500}, nil, http.StatusOK, "STK Push failed: Check error log for details."},
		{"remote error", "Failed", rpc.STKPushResult{}, &rpc.RemoteError{StatusCode: 500, ExcType: "Exception"}, http.StatusBadGateway, "STK Push failed: Check error log for details."},
		{"settings missing", "Failed", rpc.STKPushResult{}, &rpc.RemoteError{Method: rpc.MethodGenerateSTKPush, StatusCode: 404, ExcType: rpc.ExcDoesNotExist, Message: "KCB Mpesa Settings X not found"}, http.StatusBadGateway, "STK Push failed: Check error log for details."},
		{"not failed", "Completed", rpc.STKPushResult{}, nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pushed []rpc.STKPushArgs
			r := newFakeRouter(t, func(_ context.Context, method string, args any, out any) error {
				switch method {
				case rpc.MethodGetDoc:
					req := request
					req.Status = tt.status
					*(out.(*rpc.STKRequest)) = req
					return nil
				case rpc.MethodGenerateSTKPush:
					pushed = append(pushed, args.(rpc.STKPushArgs))
					*(out.(*rpc.STKPushResult)) = tt.push
					return tt.pushErr
				}
				return errors.New("unexpected method " + method)
			})

			w := do(t, r, http.MethodPost, "/api/stk-requests/KCB-STK-2025-00001/retry", nil)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.message == "" {
				assert.Empty(t, pushed)
				return
			}
			require.Len(t, pushed, 1)
			assert.Equal(t, "174379-ACC-SINV-2025-00002", pushed[0].InvoiceNumber)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestRetrySTKPush_NotFound(t *testing.T) {
	r, _ := newSandboxRouter(t)
	w := do(t, r, http.MethodPost, "/api/stk-requests/KCB-STK-2025-09999/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncPaymentRequest(t *testing.T) {
	r := newFakeRouter(t, func(_ context.Context, method string, args any, out any) error {
		gw := "KCB Mpesa"
		mop := "KCB"
		switch method {
		case rpc.MethodGatewayFromModeOfPayment:
			*(out.(**string)) = &gw
		case rpc.MethodModeOfPaymentFromGateway:
			*(out.(**string)) = &mop
		}
		return nil
	})

	w := do(t, r, http.MethodPost, "/api/payment-requests/sync", gin.H{
		"event": "mode_of_payment",
		"form":  gin.H{"company": "ACME", "mode_of_payment": "KCB"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"form":{"company":"ACME","mode_of_payment":"KCB","payment_gateway":"KCB Mpesa"}}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/payment-requests/sync", gin.H{
		"event": "refresh",
		"form":  gin.H{"company": "ACME", "payment_gateway": "KCB Mpesa"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"form":{"company":"ACME","mode_of_payment":"KCB","payment_gateway":"KCB Mpesa"}}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/payment-requests/sync", gin.H{"event": "submit"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSandboxMethod(t *testing.T) {
	r, _ := newSandboxRouter(t)

	w := do(t, r, http.MethodPost, "/api/method/"+rpc.MethodOutstandingInvoices, rpc.OutstandingInvoiceQuery{Company: "ACME"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env struct {
		Message []rpc.OutstandingInvoice `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Len(t, env.Message, 2)

	w = do(t, r, http.MethodPost, "/api/method/"+rpc.MethodProcessReconciliation, rpc.ReconciliationArgs{Company: "ACME", KCBNames: []string{"KCB-PT-2025-00001"}})
	assert.Equal(t, http.StatusExpectationFailed, w.Code)
	assert.Contains(t, w.Body.String(), `"exc_type":"ValidationError"`)

	w = do(t, r, http.MethodPost, "/api/method/kcb_payments.nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/methods", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), rpc.MethodPaymentNotification)
}

func TestSandboxMethod_HTTPCallerRoundTrip(t *testing.T) {
	r, _ := newSandboxRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	client := rpc.NewClient(rpc.NewHTTPCaller(srv.URL))
	invoices, err := client.OutstandingInvoices(context.Background(), rpc.OutstandingInvoiceQuery{Company: "ACME", Customer: "Jane"})
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	err = client.ProcessReconciliation(context.Background(), rpc.ReconciliationArgs{Company: "ACME"})
	var re *rpc.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "No invoices provided.", re.Message)

	_, err = client.SalesInvoice(context.Background(), "ACC-SINV-2025-09999")
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}

func TestSandboxPaymentNotification(t *testing.T) {
	r, db := newSandboxRouter(t)
	payload := gin.H{
		"header": gin.H{"messageID": "MSG-1", "originatorConversationID": "SJK999", "channelCode": "MPESA", "timeStamp": "20250301093000"},
		"requestPayload": gin.H{"additionalData": gin.H{"notificationData": gin.H{
			"businessKey":     "174379#ACC-SINV-2025-00002",
			"debitMSISDN":     "254712345678",
			"transactionAmt":  "450.00",
			"transactionDate": "20250301093000",
			"transactionID":   "SJK999",
			"firstName":       "Jane",
			"lastName":        "Wanjiru",
			"currency":        "KES",
		}}},
	}

	w := do(t, r, http.MethodPost, "/api/method/"+rpc.MethodPaymentNotification, payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"statusCode":"0"`)
	assert.Contains(t, w.Body.String(), "Notification received successfully")

	var stored models.PaymentTransaction
	require.NoError(t, db.First(&stored, "kcb_transaction_id = ?", "SJK999").Error)
	assert.Equal(t, models.PaymentUnreconciled, stored.Status)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(450)))

	w = do(t, r, http.MethodPost, "/api/method/"+rpc.MethodPaymentNotification, payload)
	assert.Contains(t, w.Body.String(), "Duplicate transaction - already processed")
}
