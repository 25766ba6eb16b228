// Package kcb talks to the KCB Buni API: OAuth tokens and Mpesa STK push.
package kcb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	SandboxBaseURL    = "https://uat.buni.kcbgroup.com"
	ProductionBaseURL = "https://api.buni.kcbgroup.com"

	tokenPath    = "/token?grant_type=client_credentials"
	stkPushPath  = "/mm/api/request/1.0.0/stkpush"
	stkRouteCode = "207"
)

// BaseURL returns the Buni host for the environment.
func BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

type Client struct {
	http    *http.Client
	baseURL string
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL overrides the environment host, mostly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 10 * time.Second},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) host(sandbox bool) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return BaseURL(sandbox)
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// ExpiresAt returns when a token issued at issued stops being valid.
func (t Token) ExpiresAt(issued time.Time) time.Time {
	return issued.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Token requests a client-credentials access token.
func (c *Client) Token(ctx context.Context, sandbox bool, consumerKey, consumerSecret string) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host(sandbox)+tokenPath, nil)
	if err != nil {
		return Token{}, fmt.Errorf("building token request: %w", err)
	}
	req.SetBasicAuth(consumerKey, consumerSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, body)
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return Token{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("token response carried no access_token")
	}
	return tok, nil
}

// STKPushRequest is the body of an stkpush call.
type STKPushRequest struct {
	PhoneNumber            string          `json:"phoneNumber"`
	Amount                 decimal.Decimal `json:"amount"`
	InvoiceNumber          string          `json:"invoiceNumber"`
	SharedShortCode        bool            `json:"sharedShortCode"`
	OrgShortCode           string          `json:"orgShortCode"`
	OrgPassKey             string          `json:"orgPassKey"`
	CallbackURL            string          `json:"callbackUrl"`
	TransactionDescription string          `json:"transactionDescription"`
}

// STKPushResponse is the raw outcome of an stkpush call.
type STKPushResponse struct {
	StatusCode int
	MessageID  string
	Body       []byte
}

// STKPushBody is the decoded response body. Response is set on success
// and business errors, Code/Message/Description on HTTP errors.
type STKPushBody struct {
	Response    *STKPushAck `json:"response"`
	Code        Text        `json:"code"`
	Message     Text        `json:"message"`
	Description Text        `json:"description"`
}

type STKPushAck struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        Text   `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Decode parses the body. It fails when the gateway did not answer JSON.
func (r *STKPushResponse) Decode() (STKPushBody, error) {
	var b STKPushBody
	if err := json.Unmarshal(r.Body, &b); err != nil {
		return STKPushBody{}, fmt.Errorf("decoding stk push response: %w", err)
	}
	return b, nil
}

// STKPush sends the push prompt to the customer's phone. Only transport
// failures are returned as errors; every HTTP answer comes back in the
// response.
func (c *Client) STKPush(ctx context.Context, sandbox bool, accessToken string, body STKPushRequest) (*STKPushResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding stk push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host(sandbox)+stkPushPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building stk push request: %w", err)
	}

	messageID := NewMessageID(c.now())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("routeCode", stkRouteCode)
	req.Header.Set("operation", "STKPush")
	req.Header.Set("messageId", messageID)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending stk push: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading stk push response: %w", err)
	}
	return &STKPushResponse{StatusCode: resp.StatusCode, MessageID: messageID, Body: raw}, nil
}

// NewMessageID builds a unique messageId header value.
func NewMessageID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d_KCBOrg_%s", now.Unix(), hex[:10])
}
