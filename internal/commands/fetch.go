package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/reconciliation"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type filterFlags struct {
	company         string
	customer        string
	currency        string
	invoice         string
	fromInvoiceDate string
	toInvoiceDate   string
	fullName        string
	fromPaymentDate string
	toPaymentDate   string
}

func (f *filterFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.company, "company", "", "company (default --default-company)")
	fs.StringVar(&f.customer, "customer", "", "customer")
	fs.StringVar(&f.currency, "currency", "", "invoice currency")
	fs.StringVar(&f.invoice, "invoice-name", "", "sales invoice name")
	fs.StringVar(&f.fromInvoiceDate, "from-invoice-date", "", "earliest posting date (YYYY-MM-DD)")
	fs.StringVar(&f.toInvoiceDate, "to-invoice-date", "", "latest posting date (YYYY-MM-DD)")
	fs.StringVar(&f.fullName, "full-name", "", "payer first name")
	fs.StringVar(&f.fromPaymentDate, "from-payment-date", "", "earliest payment date (YYYY-MM-DD)")
	fs.StringVar(&f.toPaymentDate, "to-payment-date", "", "latest payment date (YYYY-MM-DD)")
}

func (f *filterFlags) filters(defaultCompany string) (reconciliation.Filters, error) {
	out := reconciliation.Filters{
		Company:     f.company,
		Customer:    f.customer,
		Currency:    f.currency,
		InvoiceName: f.invoice,
		FullName:    f.fullName,
	}
	if out.Company == "" {
		out.Company = defaultCompany
	}

	dates := []struct {
		flag string
		raw  string
		dst  *rpc.Date
	}{
		{"from-invoice-date", f.fromInvoiceDate, &out.FromInvoiceDate},
		{"to-invoice-date", f.toInvoiceDate, &out.ToInvoiceDate},
		{"from-payment-date", f.fromPaymentDate, &out.FromPaymentDate},
		{"to-payment-date", f.toPaymentDate, &out.ToPaymentDate},
	}
	for _, d := range dates {
		parsed, err := rpc.ParseDate(d.raw)
		if err != nil {
			return reconciliation.Filters{}, fmt.Errorf("--%s: %w", d.flag, err)
		}
		*d.dst = parsed
	}
	return out, nil
}

func newFetchCommand(s *session) *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "List outstanding invoices and unreconciled KCB payments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters, err := ff.filters(s.defaultCompany)
			if err != nil {
				return err
			}
			ctrl, err := s.fetch(cmd, filters)
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), ctrl.State())
			return nil
		},
	}
	ff.bind(cmd.Flags())

	return cmd
}

// fetch runs one complete fetch on a new workbench controller.
func (s *session) fetch(cmd *cobra.Command, filters reconciliation.Filters) (*reconciliation.Controller, error) {
	ctrl := reconciliation.NewController(s.client,
		reconciliation.WithNotifier(&notice.Printer{W: cmd.OutOrStdout()}),
		reconciliation.WithLogger(s.log),
	)
	ctrl.Load(s.defaultCompany)
	ctrl.SetFilters(filters)

	h, err := ctrl.Fetch(cmd.Context())
	if err != nil {
		return nil, err
	}
	h.Wait()
	return ctrl, nil
}

func printState(w io.Writer, st reconciliation.State) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tINVOICE\tDATE\tTOTAL\tOUTSTANDING")
	for _, r := range st.Invoices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RowID, r.Invoice, r.Date, r.Total.StringFixed(2), r.OutstandingAmount.StringFixed(2))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ROW\tPAYMENT\tNAME\tDATE\tAMOUNT")
	for _, r := range st.Payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RowID, r.PaymentID, r.FullName, r.Date, r.Amount.StringFixed(2))
	}
	tw.Flush()
}
