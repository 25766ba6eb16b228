// Package ledger is the sandbox backend: it implements the kcb_payments
// remote methods on the local database so the workbench can run without an
// ERPNext site.
package ledger

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"kcb-payments-workbench/internal/kcb"
	"kcb-payments-workbench/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ValidationError is a business rule violation. It is reported to callers
// as a Frappe ValidationError carrying Message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is a missing document, reported as DoesNotExistError.
type NotFoundError struct {
	Doctype string
	Name    string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Doctype, e.Name) }

func (e *NotFoundError) Unwrap() error { return repository.ErrNotFound }

// missing converts a repository not-found into a NotFoundError.
func missing(err error, doctype, name string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Doctype: doctype, Name: name}
	}
	return err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type Service struct {
	db       *gorm.DB
	invoices *repository.InvoiceRepository
	payments *repository.PaymentTransactionRepository
	entries  *repository.PaymentEntryRepository
	stk      *repository.STKRequestRepository
	gateways *repository.GatewayRepository

	kcb             *kcb.Client
	log             *zap.Logger
	siteURL         string
	verifySignature bool
	publicKey       *rsa.PublicKey
	now             func() time.Time
}

type Option func(*Service)

func WithKCBClient(c *kcb.Client) Option {
	return func(s *Service) { s.kcb = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithSiteURL sets the public base URL used for the default STK callback.
func WithSiteURL(u string) Option {
	return func(s *Service) { s.siteURL = strings.TrimRight(u, "/") }
}

// WithSignatureVerification requires IPN requests to be signed with the
// private half of pub.
func WithSignatureVerification(enabled bool, pub *rsa.PublicKey) Option {
	return func(s *Service) {
		s.verifySignature = enabled
		s.publicKey = pub
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:              db,
		invoices:        repository.NewInvoiceRepository(db),
		payments:        repository.NewPaymentTransactionRepository(db),
		entries:         repository.NewPaymentEntryRepository(db),
		stk:             repository.NewSTKRequestRepository(db),
		gateways:        repository.NewGatewayRepository(db),
		kcb:             kcb.New(),
		log:             zap.NewNop(),
		siteURL:         "http://localhost:8080",
		verifySignature: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newName builds a document name such as ACC-PAY-2025-3F9A1C20.
func (s *Service) newName(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%d-%s", prefix, s.now().Year(), id)
}

func (s *Service) today() time.Time {
	n := s.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

func notFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// tx runs fn with every repository bound to one database transaction.
func (s *Service) tx(ctx context.Context, fn func(r *Service) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := *s
		scoped.db = tx
		scoped.invoices = s.invoices.WithTx(tx)
		scoped.payments = s.payments.WithTx(tx)
		scoped.entries = s.entries.WithTx(tx)
		scoped.stk = repository.NewSTKRequestRepository(tx)
		scoped.gateways = s.gateways.WithTx(tx)
		return fn(&scoped)
	})
}
