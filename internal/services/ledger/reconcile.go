package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"kcb-payments-workbench/internal/models"
	"kcb-payments-workbench/internal/repository"
	"kcb-payments-workbench/internal/rpc"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	actionReconcile      = "process_kcb_reconciliation"
	actionProcessPayment = "process_kcb_payment"
)

func (s *Service) OutstandingInvoices(ctx context.Context, q rpc.OutstandingInvoiceQuery) ([]rpc.OutstandingInvoice, error) {
	rows, err := s.invoices.FindOutstanding(ctx, repository.InvoiceFilter{
		Company:   q.Company,
		Customer:  q.Customer,
		Currency:  q.Currency,
		VoucherNo: q.VoucherNo,
		FromDate:  q.FromDate.Time,
		ToDate:    q.ToDate.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("loading outstanding invoices: %w", err)
	}

	out := make([]rpc.OutstandingInvoice, 0, len(rows))
	for _, inv := range rows {
		out = append(out, rpc.OutstandingInvoice{
			VoucherNo:         inv.Name,
			VoucherType:       rpc.DoctypeSalesInvoice,
			PostingDate:       rpc.DateOf(inv.PostingDate),
			DueDate:           rpc.DateOf(inv.DueDate),
			InvoiceAmount:     inv.GrandTotal,
			PaymentAmount:     inv.GrandTotal.Sub(inv.OutstandingAmount),
			OutstandingAmount: inv.OutstandingAmount,
			Currency:          inv.Currency,
		})
	}
	return out, nil
}

func (s *Service) UnreconciledPayments(ctx context.Context, q rpc.UnreconciledPaymentQuery) ([]rpc.UnreconciledPayment, error) {
	rows, err := s.payments.FindUnreconciled(ctx, repository.PaymentFilter{
		FullName: q.FullName,
		FromDate: q.FromDate.Time,
		ToDate:   q.ToDate.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("loading unreconciled payments: %w", err)
	}

	out := make([]rpc.UnreconciledPayment, 0, len(rows))
	for _, p := range rows {
		out = append(out, rpc.UnreconciledPayment{
			Name:                     p.Name,
			MobileNumber:             p.MobileNumber,
			FirstName:                p.FirstName,
			LastName:                 p.LastName,
			Amount:                   p.Amount,
			Reconciled:               p.Reconciled,
			UnreconciledAmount:       p.Reconcilable(),
			OriginatorConversationID: p.OriginatorConversationID,
			TransactionDate:          rpc.DateOf(p.TransactionDate),
		})
	}
	return out, nil
}

func (s *Service) SearchTransactions(ctx context.Context, args rpc.TransactionSearchArgs) ([]rpc.PaymentTransaction, error) {
	rows, err := s.payments.Search(ctx, repository.SearchFilter{
		PhoneNumber:              args.PhoneNumber,
		Name:                     args.Name,
		Amount:                   args.Amount,
		OriginatorConversationID: args.OriginatorConversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("searching payments: %w", err)
	}

	out := make([]rpc.PaymentTransaction, 0, len(rows))
	for _, p := range rows {
		out = append(out, rpc.PaymentTransaction{
			Name:                     p.Name,
			MobileNumber:             p.MobileNumber,
			FirstName:                p.FirstName,
			LastName:                 p.LastName,
			Amount:                   p.Reconcilable(),
			OriginatorConversationID: p.OriginatorConversationID,
		})
	}
	return out, nil
}

// allocation is one payment's share of a reconciliation, kept for the log.
type allocation struct {
	Payment      string          `json:"payment"`
	PaymentEntry string          `json:"payment_entry"`
	Allocated    decimal.Decimal `json:"allocated"`
	Unallocated  decimal.Decimal `json:"unallocated"`
}

// ProcessReconciliation posts one payment entry per KCB payment and spreads
// it over the invoices, earliest due date first. Everything happens in one
// transaction.
func (s *Service) ProcessReconciliation(ctx context.Context, args rpc.ReconciliationArgs) error {
	if len(args.InvoiceNames) == 0 {
		return invalid("No invoices provided.")
	}

	return s.tx(ctx, func(r *Service) error {
		first, err := r.invoices.GetByName(ctx, args.InvoiceNames[0])
		if notFound(err) {
			return invalid("Sales Invoice %s not found", args.InvoiceNames[0])
		}
		if err != nil {
			return err
		}
		customer := first.Customer

		invoices, err := r.invoices.FindByNames(ctx, args.InvoiceNames)
		if err != nil {
			return err
		}
		if missing := missingInvoices(args.InvoiceNames, invoices); missing != "" {
			return invalid("Sales Invoice %s not found", missing)
		}

		var allocations []allocation
		for _, name := range args.KCBNames {
			a, err := r.postPayment(ctx, name, first, args.Company, invoices)
			if err != nil {
				return err
			}
			allocations = append(allocations, a)
		}

		for i := range invoices {
			if err := r.invoices.Save(ctx, &invoices[i]); err != nil {
				return fmt.Errorf("saving invoice %s: %w", invoices[i].Name, err)
			}
		}

		details, _ := json.Marshal(map[string]any{
			"invoices":    args.InvoiceNames,
			"allocations": allocations,
		})
		if err := r.entries.LogReconciliation(ctx, &models.ReconciliationLog{
			ID:       uuid.New(),
			Action:   actionReconcile,
			Company:  args.Company,
			Customer: customer,
			Details:  datatypes.JSON(details),
		}); err != nil {
			return err
		}

		r.log.Info("kcb reconciliation processed",
			zap.String("company", args.Company),
			zap.String("customer", customer),
			zap.Strings("payments", args.KCBNames),
			zap.Strings("invoices", args.InvoiceNames),
		)
		return nil
	})
}

// postPayment creates the payment entry for one KCB payment and allocates
// it over invoices in order, updating their outstanding amounts in place.
func (s *Service) postPayment(ctx context.Context, name string, party *models.SalesInvoice, company string, invoices []models.SalesInvoice) (allocation, error) {
	p, err := s.payments.GetByName(ctx, name)
	if notFound(err) {
		return allocation{}, invalid("KCB Payment %s not found", name)
	}
	if err != nil {
		return allocation{}, err
	}

	if p.Status == models.PaymentReconciled {
		return allocation{}, invalid("KCB Payment has already been fully reconciled.")
	}
	reconcilable := p.Reconcilable()
	if !reconcilable.IsPositive() {
		return allocation{}, invalid("KCB Payment has been used up, cannot be used for further reconciliation")
	}

	paidTo, err := s.accounts(ctx, party, company, p.Currency)
	if err != nil {
		return allocation{}, err
	}

	pe := s.newPaymentEntry(company, party, paidTo, p, reconcilable)
	remaining := reconcilable
	for i := range invoices {
		inv := &invoices[i]
		if !remaining.IsPositive() {
			break
		}
		if inv.IsPaid() {
			continue
		}
		amount := decimal.Min(remaining, inv.OutstandingAmount)
		pe.References = append(pe.References, models.PaymentEntryReference{
			ID:               uuid.New(),
			ReferenceDoctype: rpc.DoctypeSalesInvoice,
			ReferenceName:    inv.Name,
			AllocatedAmount:  amount,
		})
		inv.OutstandingAmount = inv.OutstandingAmount.Sub(amount)
		remaining = remaining.Sub(amount)
	}
	pe.UnallocatedAmount = remaining

	if err := s.entries.Create(ctx, pe); err != nil {
		return allocation{}, fmt.Errorf("creating payment entry for %s: %w", name, err)
	}

	allocated := reconcilable.Sub(remaining)
	p.Allocate(allocated)
	if err := s.payments.Save(ctx, p); err != nil {
		return allocation{}, fmt.Errorf("saving payment %s: %w", name, err)
	}

	return allocation{Payment: p.Name, PaymentEntry: pe.Name, Allocated: allocated, Unallocated: remaining}, nil
}

// accounts checks the party account and returns the KCB account receipts
// are paid into.
func (s *Service) accounts(ctx context.Context, party *models.SalesInvoice, company, currency string) (string, error) {
	if party.DebitTo == "" {
		return "", invalid("Could not find party account for customer %s in company %s", party.Customer, company)
	}
	if party.Currency != currency {
		return "", invalid("Currency mismatch between payment %s and party account %s", currency, party.Currency)
	}

	acc, err := s.gateways.ModeOfPaymentAccount(ctx, models.KCBModeOfPayment, company)
	if notFound(err) || (err == nil && acc.DefaultAccount == "") {
		return "", invalid("KCB payment account not configured for company %s", company)
	}
	if err != nil {
		return "", err
	}
	return acc.DefaultAccount, nil
}

func (s *Service) newPaymentEntry(company string, party *models.SalesInvoice, paidTo string, p *models.PaymentTransaction, amount decimal.Decimal) *models.PaymentEntry {
	refDate := p.UpdatedAt
	if refDate.IsZero() {
		refDate = p.TransactionDate
	}
	return &models.PaymentEntry{
		Name:          s.newName("ACC-PAY"),
		Company:       company,
		PaymentType:   "Receive",
		Party:         party.Customer,
		ModeOfPayment: models.KCBModeOfPayment,
		PaidFrom:      party.DebitTo,
		PaidTo:        paidTo,
		PaidAmount:    amount,
		ReferenceNo:   p.KCBTransactionID,
		ReferenceDate: rpc.DateOf(refDate).Time,
		PostingDate:   s.today(),
	}
}

func missingInvoices(names []string, found []models.SalesInvoice) string {
	have := make(map[string]bool, len(found))
	for _, inv := range found {
		have[inv.Name] = true
	}
	for _, n := range names {
		if !have[n] {
			return n
		}
	}
	return ""
}

// ProcessPayment settles one invoice from one KCB payment.
func (s *Service) ProcessPayment(ctx context.Context, args rpc.ProcessPaymentArgs) (rpc.ProcessPaymentResult, error) {
	var result rpc.ProcessPaymentResult

	err := s.tx(ctx, func(r *Service) error {
		p, perr := r.payments.GetByName(ctx, args.Payment)
		inv, ierr := r.invoices.GetByName(ctx, args.SalesInvoice)
		if notFound(perr) || notFound(ierr) {
			return invalid("Invalid payment or sales invoice document.")
		}
		if perr != nil {
			return perr
		}
		if ierr != nil {
			return ierr
		}

		if p.Status == models.PaymentReconciled {
			return invalid("Payment has already been reconciled.")
		}
		if inv.IsPaid() {
			return invalid("Sales Invoice is already fully paid.")
		}

		paidTo, err := r.accounts(ctx, inv, inv.Company, p.Currency)
		if err != nil {
			return err
		}

		reconcilable := p.Reconcilable()
		if !reconcilable.IsPositive() {
			return invalid("Payment has been used up, cannot be used for further reconciliation")
		}
		amount := decimal.Min(reconcilable, inv.OutstandingAmount)

		pe := r.newPaymentEntry(inv.Company, inv, paidTo, p, reconcilable)
		pe.UnallocatedAmount = reconcilable.Sub(amount)
		pe.References = []models.PaymentEntryReference{{
			ID:               uuid.New(),
			ReferenceDoctype: rpc.DoctypeSalesInvoice,
			ReferenceName:    inv.Name,
			AllocatedAmount:  amount,
		}}
		if err := r.entries.Create(ctx, pe); err != nil {
			return fmt.Errorf("creating payment entry: %w", err)
		}

		inv.OutstandingAmount = inv.OutstandingAmount.Sub(amount)
		if err := r.invoices.Save(ctx, inv); err != nil {
			return fmt.Errorf("saving invoice: %w", err)
		}

		p.Allocate(amount)
		if err := r.payments.Save(ctx, p); err != nil {
			return fmt.Errorf("saving payment: %w", err)
		}

		details, _ := json.Marshal(allocation{Payment: p.Name, PaymentEntry: pe.Name, Allocated: amount, Unallocated: pe.UnallocatedAmount})
		if err := r.entries.LogReconciliation(ctx, &models.ReconciliationLog{
			ID:       uuid.New(),
			Action:   actionProcessPayment,
			Company:  inv.Company,
			Customer: inv.Customer,
			Details:  datatypes.JSON(details),
		}); err != nil {
			return err
		}

		result = rpc.ProcessPaymentResult{
			Success:      true,
			PaymentEntry: pe.Name,
			Message:      fmt.Sprintf("Payment Entry %s created successfully for Sales Invoice %s.", pe.Name, inv.Name),
		}
		return nil
	})
	if err != nil {
		if IsValidation(err) {
			return rpc.ProcessPaymentResult{}, err
		}
		s.log.Error("kcb payment processing failed", zap.String("payment", args.Payment), zap.Error(err))
		return rpc.ProcessPaymentResult{}, invalid("Failed to process payment: %v", err)
	}
	return result, nil
}
