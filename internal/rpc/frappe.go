package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPCaller speaks Frappe's /api/method protocol.
type HTTPCaller struct {
	baseURL   string
	apiKey    string
	apiSecret string
	timeout   time.Duration
	http      *http.Client
}

type HTTPOption func(*HTTPCaller)

// WithAPIToken authenticates with a Frappe API key and secret.
func WithAPIToken(key, secret string) HTTPOption {
	return func(c *HTTPCaller) {
		c.apiKey = key
		c.apiSecret = secret
	}
}

// WithHTTPClient replaces the default client. The client is used as is;
// WithTimeout does not touch it.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPCaller) { c.http = hc }
}

// WithTimeout sets the per-call timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPCaller) { c.timeout = d }
}

func NewHTTPCaller(baseURL string, opts ...HTTPOption) *HTTPCaller {
	c := &HTTPCaller{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Envelope is the body of a Frappe method response.
type Envelope struct {
	Message        json.RawMessage `json:"message,omitempty"`
	ExcType        string          `json:"exc_type,omitempty"`
	Exception      string          `json:"exception,omitempty"`
	Exc            string          `json:"exc,omitempty"`
	ServerMessages string          `json:"_server_messages,omitempty"`
}

func (c *HTTPCaller) Call(ctx context.Context, method string, args any, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding %s args: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/method/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}

	if resp.StatusCode >= 300 || env.ExcType != "" || env.Exc != "" {
		return &RemoteError{
			Method:     method,
			StatusCode: resp.StatusCode,
			ExcType:    env.ExcType,
			Message:    env.errorMessage(),
		}
	}

	return DecodeMessage(env.Message, out)
}

// DecodeMessage unmarshals a response message into out. A missing or null
// message leaves out untouched.
func DecodeMessage(msg json.RawMessage, out any) error {
	if out == nil || len(msg) == 0 || string(msg) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg, out); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

// NewErrorEnvelope builds the body Frappe sends for a raised exception.
func NewErrorEnvelope(excType, message string) Envelope {
	msg, _ := json.Marshal(map[string]string{"message": message})
	list, _ := json.Marshal([]string{string(msg)})
	return Envelope{
		ExcType:        excType,
		Exception:      "frappe.exceptions." + excType + ": " + message,
		ServerMessages: string(list),
	}
}

func (e Envelope) errorMessage() string {
	if e.ServerMessages != "" {
		var encoded []string
		if err := json.Unmarshal([]byte(e.ServerMessages), &encoded); err == nil {
			var msgs []string
			for _, s := range encoded {
				var m struct {
					Message string `json:"message"`
				}
				if err := json.Unmarshal([]byte(s), &m); err == nil && m.Message != "" {
					msgs = append(msgs, m.Message)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	if e.Exception != "" {
		if i := strings.Index(e.Exception, ": "); i >= 0 {
			return e.Exception[i+2:]
		}
		return e.Exception
	}
	return ""
}
