package stkpush

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	result rpc.STKPushResult
	err    error
	gate   chan struct{}
	loaded rpc.STKRequest
	pushes []rpc.STKPushArgs
}

func (f *fakeBackend) GenerateSTKPush(_ context.Context, args rpc.STKPushArgs) (rpc.STKPushResult, error) {
	f.mu.Lock()
	f.pushes = append(f.pushes, args)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.result, f.err
}

func (f *fakeBackend) STKRequest(_ context.Context, name string) (rpc.STKRequest, error) {
	if f.loaded.Name != name {
		return rpc.STKRequest{}, rpc.ErrNotFound
	}
	return f.loaded, nil
}

func (f *fakeBackend) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func failedRequest() rpc.STKRequest {
	return rpc.STKRequest{
		Name:             "KCB-STK-2025-00004",
		PhoneNumber:      "254712345678",
		Amount:           decimal.RequireFromString("1250.50"),
		TillNo:           "174379",
		ReferenceDoctype: "Sales Invoice",
		ReferenceName:    "ACC-SINV-2025-00007",
		TransactionDesc:  "Invoice payment",
		PaymentGateway:   "KCB Mpesa",
		KCBMpesaSettings: "KCB Settings",
		Status:           StatusFailed,
	}
}

func TestCanRetry(t *testing.T) {
	for status, want := range map[string]bool{
		"Failed":      true,
		"Pending":     false,
		"In Progress": false,
		"Completed":   false,
		"failed":      false,
	} {
		assert.Equal(t, want, CanRetry(rpc.STKRequest{Status: status}), status)
	}
}

func TestRetry_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		result rpc.STKPushResult
		err    error
		want   notice.Notice
	}{
		{"created", rpc.STKPushResult{StatusCode: http.StatusCreated}, nil, checkPhone},
		{"ok", rpc.STKPushResult{StatusCode: http.StatusOK}, nil, checkPhone},
		{"server error", rpc.STKPushResult{StatusCode: http.StatusInternalServerError, Error: "Network error"}, nil, pushFailed},
		{"bad request", rpc.STKPushResult{StatusCode: http.StatusBadRequest}, nil, pushFailed},
		{"call error", rpc.STKPushResult{}, errors.New("connection reset"), pushFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{result: tt.result, err: tt.err}
			log := &notice.Log{}
			r := NewRetrier(b, WithNotifier(log))

			_, err := r.Retry(context.Background(), failedRequest())
			if tt.err != nil {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, []notice.Notice{tt.want}, log.All())
		})
	}
}

func TestRetry_ReusesStoredParameters(t *testing.T) {
	b := &fakeBackend{result: rpc.STKPushResult{StatusCode: http.StatusCreated}}
	r := NewRetrier(b)

	_, err := r.Retry(context.Background(), failedRequest())
	require.NoError(t, err)

	require.Len(t, b.pushes, 1)
	got := b.pushes[0]
	assert.Equal(t, "254712345678", got.PhoneNumber)
	assert.True(t, got.RequestAmount.Equal(decimal.RequireFromString("1250.50")))
	assert.Equal(t, "174379-ACC-SINV-2025-00007", got.InvoiceNumber)
	assert.Equal(t, "Invoice payment", got.TransactionDescription)
	assert.Equal(t, "KCB Mpesa", got.PaymentGateway)
	assert.Equal(t, "KCB Settings", got.Settings)
	assert.Equal(t, "KCB-STK-2025-00004", got.KCBMpesaSTKRequest)
}

func TestRetry_NotFailed(t *testing.T) {
	b := &fakeBackend{}
	r := NewRetrier(b)
	req := failedRequest()
	req.Status = "In Progress"

	_, err := r.Retry(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotRetryable)
	assert.Zero(t, b.pushCount())
}

func TestRetry_DebouncesInFlight(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{result: rpc.STKPushResult{StatusCode: http.StatusCreated}, gate: gate}
	r := NewRetrier(b)

	done := make(chan error, 1)
	go func() {
		_, err := r.Retry(context.Background(), failedRequest())
		done <- err
	}()
	require.Eventually(t, func() bool { return b.pushCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := r.Retry(context.Background(), failedRequest())
	assert.ErrorIs(t, err, ErrRetryInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, b.pushCount())

	// released once the first call returned
	b.gate = nil
	_, err = r.Retry(context.Background(), failedRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, b.pushCount())
}

func TestRetryByName(t *testing.T) {
	b := &fakeBackend{loaded: failedRequest(), result: rpc.STKPushResult{StatusCode: http.StatusOK}}
	r := NewRetrier(b)

	_, err := r.RetryByName(context.Background(), "KCB-STK-2025-00004")
	require.NoError(t, err)

	_, err = r.RetryByName(context.Background(), "KCB-STK-2025-09999")
	assert.ErrorIs(t, err, rpc.ErrNotFound)
	assert.Equal(t, 1, b.pushCount())
}
