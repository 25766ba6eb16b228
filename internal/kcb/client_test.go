package kcb

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://uat.buni.kcbgroup.com", BaseURL(true))
	assert.Equal(t, "https://api.buni.kcbgroup.com", BaseURL(false))
}

func TestClient_Token(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		_, _ = io.WriteString(w, `{"access_token":"tok-1","expires_in":3599,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	tok, err := c.Token(context.Background(), true, "key", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)

	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, issued.Add(3599*time.Second), tok.ExpiresAt(issued))
}

func TestClient_TokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
	}))
	defer srv.Close()

	_, err := New(WithBaseURL(srv.URL)).Token(context.Background(), true, "key", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_STKPush(t *testing.T) {
	var got STKPushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mm/api/request/1.0.0/stkpush", r.URL.Path)
		assert.Equal(t, "207", r.Header.Get("routeCode"))
		assert.Equal(t, "STKPush", r.Header.Get("operation"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Regexp(t, regexp.MustCompile(`^1735732800_KCBOrg_[0-9a-f]{10}$`), r.Header.Get("messageId"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"response":{"MerchantRequestID":"M-1","CheckoutRequestID":"C-1","ResponseCode":"0","ResponseDescription":"Success","CustomerMessage":"Success"}}`)
	}))
	defer srv.Close()

	clock := func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	c := New(WithBaseURL(srv.URL), WithClock(clock))

	resp, err := c.STKPush(context.Background(), true, "tok-1", STKPushRequest{
		PhoneNumber:     "254712345678",
		Amount:          decimal.NewFromInt(1500),
		InvoiceNumber:   "7504343-ACC-SINV-2025-00001",
		SharedShortCode: true,
		CallbackURL:     "https://erp.example.com/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "7504343-ACC-SINV-2025-00001", got.InvoiceNumber)
	assert.True(t, got.SharedShortCode)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1500)))

	body, err := resp.Decode()
	require.NoError(t, err)
	require.NotNil(t, body.Response)
	assert.Equal(t, Text("0"), body.Response.ResponseCode)
	assert.Equal(t, "M-1", body.Response.MerchantRequestID)
}

func TestClient_STKPushNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	resp, err := New(WithBaseURL(srv.URL)).STKPush(context.Background(), false, "tok", STKPushRequest{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	_, err = resp.Decode()
	assert.Error(t, err)
}

func TestText_Unmarshal(t *testing.T) {
	var v struct {
		A Text `json:"a"`
		B Text `json:"b"`
		C Text `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"401","b":1500.50,"c":null}`), &v))
	assert.Equal(t, Text("401"), v.A)
	assert.Equal(t, Text("1500.50"), v.B)
	assert.Equal(t, Text(""), v.C)
}

func TestSTKCallback_Metadata(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"M-1","CheckoutRequestID":"C-1","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":1500},{"Name":"MpesaReceiptNumber","Value":"SFT12ABC"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(raw), &cb))
	require.NotNil(t, cb.Body.STKCallback)
	assert.True(t, cb.Body.STKCallback.Succeeded())

	md := cb.Body.STKCallback.Metadata()
	assert.Equal(t, "1500", md["Amount"])
	assert.Equal(t, "SFT12ABC", md["MpesaReceiptNumber"])
	assert.Equal(t, "254712345678", md["PhoneNumber"])
}

func TestNotification_MissingFields(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"header":{"messageID":"m-1"},"requestPayload":{"additionalData":{"notificationData":{"businessKey":"7504343#SINV-1","transactionAmt":"100"}}}}`), &n))
	assert.Equal(t, []string{"debitMSISDN", "transactionID"}, n.MissingFields())
}

func TestNewAck(t *testing.T) {
	ack := NewAck(NotificationHeader{OriginatorConversationID: "OC-1"}, StatusError, "Empty request body", "")
	assert.Equal(t, "unknown", ack.Header.MessageID)
	assert.Equal(t, "OC-1", ack.Header.OriginatorConversationID)
	assert.False(t, ack.OK())
}

func signingKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func sign(t *testing.T, key *rsa.PrivateKey, payload string) string {
	t.Helper()
	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifySignature(t *testing.T) {
	key, pemText := signingKey(t)
	pub, err := ParsePublicKey(pemText)
	require.NoError(t, err)

	compact := `{"header":{"messageID":"m-1"}}`
	sig := sign(t, key, compact)

	// whitespace in the received body does not matter
	assert.NoError(t, VerifySignature(pub, []byte("{ \"header\": { \"messageID\": \"m-1\" } }"), sig))
	assert.ErrorIs(t, VerifySignature(pub, []byte(`{"header":{"messageID":"m-2"}}`), sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(pub, []byte(compact), ""), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature(pub, []byte(compact), "not base64!"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(nil, []byte(compact), sig), ErrNoPublicKey)
}

func TestVerifySignature_NonASCIIPayer(t *testing.T) {
	key, pemText := signingKey(t)
	pub, err := ParsePublicKey(pemText)
	require.NoError(t, err)

	// KCB signs the ASCII-escaped, number-normalized form of the body
	sig := sign(t, key, `{"header":{"messageID":"m-1"},"firstName":"Jos\u00e9","amt":1.5}`)

	body := []byte(`{"header": {"messageID": "m-1"}, "firstName": "José", "amt": 1.50}`)
	assert.NoError(t, VerifySignature(pub, body, sig))
}

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"whitespace and key order", `{ "b": 1, "a": [true, false, null] }`, `{"b":1,"a":[true,false,null]}`},
		{"trailing zeros", `{"amt": 1.50}`, `{"amt":1.5}`},
		{"integers", `[100, -0, 12345678901234567890]`, `[100,0,12345678901234567890]`},
		{"float forms", `[1e16, 1e-5, 0.0001, 2.0, -0.0, 1E2, 1.5e300]`, `[1e+16,1e-05,0.0001,2.0,-0.0,100.0,1.5e+300]`},
		{"latin", `"José"`, `"Jos\u00e9"`},
		{"astral", `"😀"`, `"\ud83d\ude00"`},
		{"escapes", `"a\"b\\c\n\u0001\u007f\/"`, `"a\"b\\c\n\u0001\u007f/"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalJSON([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := CanonicalJSON([]byte(`{"a":1} x`))
	assert.Error(t, err)
	_, err = CanonicalJSON([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestParsePublicKey_Errors(t *testing.T) {
	_, err := ParsePublicKey("")
	assert.ErrorIs(t, err, ErrNoPublicKey)

	_, err = ParsePublicKey("not a key")
	assert.Error(t, err)
}
