package kcb

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Text decodes a JSON string or number into its text form. KCB sends
// codes and amounts either way.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

// STKCallback is the body KCB posts once the customer answers the prompt.
type STKCallback struct {
	Body struct {
		STKCallback *STKCallbackResult `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallbackResult struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value Text   `json:"Value"`
}

// Metadata flattens the callback items by name.
func (r STKCallbackResult) Metadata() map[string]string {
	m := make(map[string]string, len(r.CallbackMetadata.Item))
	for _, it := range r.CallbackMetadata.Item {
		if it.Name != "" {
			m[it.Name] = it.Value.String()
		}
	}
	return m
}

// Succeeded reports a zero result code.
func (r STKCallbackResult) Succeeded() bool {
	return r.ResultCode != nil && *r.ResultCode == 0
}

// CallbackAck is what the callback endpoint answers.
type CallbackAck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Notification is an instant payment notification.
type Notification struct {
	Header         NotificationHeader `json:"header"`
	RequestPayload struct {
		AdditionalData struct {
			NotificationData NotificationData `json:"notificationData"`
		} `json:"additionalData"`
	} `json:"requestPayload"`
}

type NotificationHeader struct {
	MessageID                string `json:"messageID"`
	OriginatorConversationID string `json:"originatorConversationID"`
	ChannelCode              string `json:"channelCode"`
	Timestamp                string `json:"timeStamp"`
}

type NotificationData struct {
	BusinessKey     string `json:"businessKey"`
	DebitMSISDN     string `json:"debitMSISDN"`
	TransactionAmt  Text   `json:"transactionAmt"`
	TransactionDate string `json:"transactionDate"`
	TransactionID   string `json:"transactionID"`
	FirstName       string `json:"firstName"`
	MiddleName      string `json:"middleName"`
	LastName        string `json:"lastName"`
	Currency        string `json:"currency"`
	Narration       string `json:"narration"`
	TransactionType string `json:"transactionType"`
	Balance         Text   `json:"balance"`
}

// Data returns the notification payload.
func (n *Notification) Data() NotificationData {
	return n.RequestPayload.AdditionalData.NotificationData
}

// MissingFields lists the required fields left empty.
func (n *Notification) MissingFields() []string {
	d := n.Data()
	fields := []struct{ name, value string }{
		{"messageID", n.Header.MessageID},
		{"businessKey", d.BusinessKey},
		{"debitMSISDN", d.DebitMSISDN},
		{"transactionAmt", d.TransactionAmt.String()},
		{"transactionID", d.TransactionID},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

const (
	StatusOK    = "0"
	StatusError = "1"
)

// NotificationAck is the acknowledgement KCB expects for an IPN.
type NotificationAck struct {
	Header struct {
		MessageID                string `json:"messageID"`
		OriginatorConversationID string `json:"originatorConversationID"`
		StatusCode               string `json:"statusCode"`
		StatusMessage            string `json:"statusMessage"`
	} `json:"header"`
	ResponsePayload struct {
		TransactionInfo struct {
			TransactionID string `json:"transactionId"`
		} `json:"transactionInfo"`
	} `json:"responsePayload"`
}

// NewAck builds an acknowledgement for the notification header h.
func NewAck(h NotificationHeader, statusCode, message, transactionID string) NotificationAck {
	var a NotificationAck
	a.Header.MessageID = h.MessageID
	if a.Header.MessageID == "" {
		a.Header.MessageID = "unknown"
	}
	a.Header.OriginatorConversationID = h.OriginatorConversationID
	a.Header.StatusCode = statusCode
	a.Header.StatusMessage = message
	a.ResponsePayload.TransactionInfo.TransactionID = transactionID
	return a
}

// OK reports whether the acknowledgement accepted the notification.
func (a NotificationAck) OK() bool {
	return a.Header.StatusCode == StatusOK
}
