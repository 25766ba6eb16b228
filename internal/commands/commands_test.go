package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"kcb-payments-workbench/internal/app"
	"kcb-payments-workbench/internal/commands"
	"kcb-payments-workbench/internal/config"
	"kcb-payments-workbench/internal/models"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/reconciliation"
	"kcb-payments-workbench/internal/testdb"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func sandboxClient(t *testing.T) (*rpc.Client, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	testdb.Workbench(t, db)
	backend, err := app.NewSandbox(db, &config.Config{SiteURL: "http://workbench.test"}, zap.NewNop())
	require.NoError(t, err)
	return backend.Client, db
}

func runKcbctl(t *testing.T, client *rpc.Client, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewRootCommand(
		commands.WithClient(client),
		commands.WithDefaultCompany("ACME"),
	)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFetch_ListsBothTables(t *testing.T) {
	client, _ := sandboxClient(t)

	out, err := runKcbctl(t, client, "fetch", "--customer", "Jane")
	require.NoError(t, err)
	assert.Contains(t, out, "ACC-SINV-2025-00001")
	assert.Contains(t, out, "ACC-SINV-2025-00002")
	assert.Contains(t, out, "KCB-PT-2025-00003")
	assert.Contains(t, out, "1000.00")
	assert.NotContains(t, out, "No Entries Found")
}

func TestFetch_NoEntriesFound(t *testing.T) {
	client, _ := sandboxClient(t)

	out, err := runKcbctl(t, client, "fetch", "--customer", "Nobody", "--full-name", "Nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "[info] No Entries Found")
}

func TestFetch_InvalidDate(t *testing.T) {
	client, _ := sandboxClient(t)

	_, err := runKcbctl(t, client, "fetch", "--from-invoice-date", "01/02/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--from-invoice-date")
}

func TestReconcile_PostsSelection(t *testing.T) {
	client, db := sandboxClient(t)

	out, err := runKcbctl(t, client, "reconcile",
		"--customer", "Jane",
		"--invoice", "ACC-SINV-2025-00001",
		"--payment", "KCB-PT-2025-00001",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "[success] Selected KCB entries processed successfully")
	assert.NotContains(t, out, "KCB-PT-2025-00001")

	var invoice models.SalesInvoice
	require.NoError(t, db.First(&invoice, "name = ?", "ACC-SINV-2025-00001").Error)
	assert.True(t, invoice.OutstandingAmount.IsZero())
}

func TestReconcile_NothingSelected(t *testing.T) {
	client, _ := sandboxClient(t)

	out, err := runKcbctl(t, client, "reconcile", "--customer", "Jane", "--invoice", "ACC-SINV-2025-00001")
	assert.ErrorIs(t, err, reconciliation.ErrNoSelection)
	assert.Contains(t, out, "No Entries Selected")
}

func TestReconcile_UnknownDocument(t *testing.T) {
	client, _ := sandboxClient(t)

	_, err := runKcbctl(t, client, "reconcile", "--invoice", "ACC-SINV-2025-09999", "--payment", "KCB-PT-2025-00001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACC-SINV-2025-09999")
}

func TestSearch_AppliesPayment(t *testing.T) {
	client, _ := sandboxClient(t)

	out, err := runKcbctl(t, client, "search", "ACC-SINV-2025-00002",
		"--customer-name", "Jane",
		"--apply", "KCB-PT-2025-00002",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "KCB-PT-2025-00001")
	assert.Contains(t, out, "Payment reconciled successfully.")
	assert.Contains(t, out, "ACC-SINV-2025-00002 outstanding 200.00")
}

func TestSearch_RequiresCriteria(t *testing.T) {
	client, _ := sandboxClient(t)

	out, err := runKcbctl(t, client, "search", "ACC-SINV-2025-00002")
	require.Error(t, err)
	assert.Contains(t, out, "Validation Error")

	_, err = runKcbctl(t, client, "search", "ACC-SINV-2025-00002", "--amount", "lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--amount")
}

func TestSTKRetry(t *testing.T) {
	var pushed []rpc.STKPushArgs
	client := rpc.NewClient(rpc.CallerFunc(func(_ context.Context, method string, args any, out any) error {
		switch method {
		case rpc.MethodGetDoc:
			*(out.(*rpc.STKRequest)) = rpc.STKRequest{
				Name:          "KCB-STK-2025-00001",
				PhoneNumber:   "254712345678",
				Amount:        decimal.NewFromInt(500),
				TillNo:        "174379",
				ReferenceName: "ACC-SINV-2025-00002",
				Status:        "Failed",
			}
			return nil
		case rpc.MethodGenerateSTKPush:
			pushed = append(pushed, args.(rpc.STKPushArgs))
			*(out.(*rpc.STKPushResult)) = rpc.STKPushResult{StatusCode: 201}
			return nil
		}
		return errors.New("unexpected method " + method)
	}))

	out, err := runKcbctl(t, client, "stk-retry", "KCB-STK-2025-00001")
	require.NoError(t, err)
	require.Len(t, pushed, 1)
	assert.Equal(t, "174379-ACC-SINV-2025-00002", pushed[0].InvoiceNumber)
	assert.Contains(t, out, "Please check your phone to complete the payment.")
}

func TestSTKRetry_NotFailed(t *testing.T) {
	client := rpc.NewClient(rpc.CallerFunc(func(_ context.Context, method string, _ any, out any) error {
		if method != rpc.MethodGetDoc {
			return errors.New("unexpected method " + method)
		}
		*(out.(*rpc.STKRequest)) = rpc.STKRequest{Name: "KCB-STK-2025-00001", Status: "Completed"}
		return nil
	}))

	_, err := runKcbctl(t, client, "stk-retry", "KCB-STK-2025-00001")
	require.Error(t, err)
}

func TestSyncPaymentRequest(t *testing.T) {
	client := rpc.NewClient(rpc.CallerFunc(func(_ context.Context, method string, _ any, out any) error {
		gw := "KCB Mpesa"
		if method == rpc.MethodGatewayFromModeOfPayment {
			*(out.(**string)) = &gw
		}
		return nil
	}))

	out, err := runKcbctl(t, client, "sync-payment-request", "--mode-of-payment", "KCB", "--event", "mode_of_payment")
	require.NoError(t, err)
	assert.Equal(t, "mode_of_payment: KCB\npayment_gateway: KCB Mpesa\n", out)

	_, err = runKcbctl(t, client, "sync-payment-request", "--event", "submit")
	require.Error(t, err)
}

func TestRoot_ValidatesBackendConfig(t *testing.T) {
	t.Setenv("BACKEND", "frappe")
	t.Setenv("FRAPPE_URL", "")

	cmd := commands.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"fetch"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FRAPPE_URL")
}
