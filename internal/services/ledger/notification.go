package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kcb-payments-workbench/internal/kcb"
	"kcb-payments-workbench/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// paymentRequestMarker in a bill reference means the payment settles a
// payment request and needs no manual reconciliation.
const paymentRequestMarker = "#ACC-PRQ-"

var transactionDateLayouts = []string{
	"20060102150405",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// HandlePaymentNotification stores an instant payment notification and
// answers with the acknowledgement KCB expects. It never fails: every
// problem is reported in the acknowledgement with status code "1".
func (s *Service) HandlePaymentNotification(ctx context.Context, raw []byte, signature string) kcb.NotificationAck {
	if len(strings.TrimSpace(string(raw))) == 0 {
		s.log.Error("kcb ipn: empty request body")
		return kcb.NewAck(kcb.NotificationHeader{}, kcb.StatusError, "Empty request body", "")
	}

	var n kcb.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		s.log.Error("kcb ipn: invalid json", zap.Error(err))
		return kcb.NewAck(kcb.NotificationHeader{}, kcb.StatusError, "Internal error: "+err.Error(), "")
	}
	h := n.Header

	if s.verifySignature {
		switch err := kcb.VerifySignature(s.publicKey, raw, signature); {
		case errors.Is(err, kcb.ErrMissingSignature):
			s.log.Error("kcb ipn: missing signature header", zap.String("message_id", h.MessageID))
			return kcb.NewAck(h, kcb.StatusError, "Missing signature header", "")
		case err != nil:
			s.log.Error("kcb ipn: signature verification failed", zap.String("message_id", h.MessageID), zap.Error(err))
			return kcb.NewAck(h, kcb.StatusError, "Invalid signature", "")
		}
	} else {
		s.log.Warn("kcb ipn: signature verification is disabled")
	}

	if missing := n.MissingFields(); len(missing) > 0 {
		s.log.Error("kcb ipn: missing required fields", zap.Strings("fields", missing))
		return kcb.NewAck(h, kcb.StatusError, "Missing required fields", "")
	}

	d := n.Data()
	existing, err := s.payments.GetByKCBTransactionID(ctx, d.TransactionID)
	if err == nil {
		s.log.Warn("kcb ipn: duplicate transaction", zap.String("transaction_id", d.TransactionID))
		return kcb.NewAck(h, kcb.StatusOK, "Duplicate transaction - already processed", existing.Name)
	}
	if !notFound(err) {
		return s.internalError(h, err)
	}

	p, err := s.paymentFromNotification(h, d)
	if err != nil {
		return s.internalError(h, err)
	}

	reconciled := strings.Contains(d.BusinessKey, paymentRequestMarker)
	if !reconciled && h.OriginatorConversationID != "" {
		reconciled = s.matchesCompletedPush(ctx, h.OriginatorConversationID, d.BusinessKey)
	}
	if reconciled {
		p.Reconciled = p.Amount
		p.Status = models.PaymentReconciled
	}

	if err := s.payments.Create(ctx, p); err != nil {
		return s.internalError(h, err)
	}

	s.log.Info("kcb ipn received",
		zap.String("name", p.Name),
		zap.String("transaction_id", d.TransactionID),
		zap.String("bill_reference", d.BusinessKey),
		zap.String("status", p.Status),
	)
	return kcb.NewAck(h, kcb.StatusOK, "Notification received successfully", p.Name)
}

func (s *Service) internalError(h kcb.NotificationHeader, err error) kcb.NotificationAck {
	s.log.Error("kcb ipn failed", zap.String("message_id", h.MessageID), zap.Error(err))
	return kcb.NewAck(h, kcb.StatusError, "Internal error: "+err.Error(), "")
}

func (s *Service) paymentFromNotification(h kcb.NotificationHeader, d kcb.NotificationData) (*models.PaymentTransaction, error) {
	amount, err := decimal.NewFromString(d.TransactionAmt.String())
	if err != nil {
		return nil, fmt.Errorf("invalid transactionAmt %q", d.TransactionAmt)
	}
	balance := decimal.Zero
	if d.Balance != "" {
		if b, err := decimal.NewFromString(d.Balance.String()); err == nil {
			balance = b.Round(2)
		}
	}

	return &models.PaymentTransaction{
		Name:                     s.newName("KCB-PT"),
		MessageID:                h.MessageID,
		OriginatorConversationID: h.OriginatorConversationID,
		ChannelCode:              h.ChannelCode,
		Timestamp:                h.Timestamp,
		BillReference:            d.BusinessKey,
		MobileNumber:             d.DebitMSISDN,
		FirstName:                d.FirstName,
		MiddleName:               d.MiddleName,
		LastName:                 d.LastName,
		KCBTransactionID:         d.TransactionID,
		Amount:                   amount.Round(2),
		Reconciled:               decimal.Zero,
		Balance:                  balance,
		Currency:                 d.Currency,
		Narration:                d.Narration,
		TransactionType:          d.TransactionType,
		TransactionDate:          s.parseTransactionDate(d.TransactionDate),
		Status:                   models.PaymentUnreconciled,
	}, nil
}

func (s *Service) parseTransactionDate(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range transactionDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return s.now().UTC()
}

// matchesCompletedPush reports whether receipt paid a completed STK request
// for the invoice named in the bill reference ("till#invoice").
func (s *Service) matchesCompletedPush(ctx context.Context, receipt, billReference string) bool {
	req, err := s.stk.FindCompletedByReceipt(ctx, receipt)
	if err != nil {
		if !notFound(err) {
			s.log.Error("stk request match check failed", zap.String("receipt", receipt), zap.Error(err))
		}
		return false
	}

	invoice := billReference
	if _, after, ok := strings.Cut(billReference, "#"); ok {
		invoice = after
	}
	if invoice != req.ReferenceName {
		return false
	}

	s.log.Info("stk request match found",
		zap.String("receipt", receipt),
		zap.String("stk_request", req.Name),
		zap.String("invoice", invoice),
	)
	return true
}
