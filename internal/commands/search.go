package commands

import (
	"fmt"
	"text/tabwriter"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/services/transactionsearch"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSearchCommand(s *session) *cobra.Command {
	var c transactionsearch.Criteria
	var amount, apply string

	cmd := &cobra.Command{
		Use:   "search <sales-invoice>",
		Short: "Search KCB payments for a sales invoice and optionally apply one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("--amount: %w", err)
				}
				c.Amount = &d
			}

			out := cmd.OutOrStdout()
			dialog, err := transactionsearch.Start(cmd.Context(), s.client, args[0],
				transactionsearch.WithNotifier(&notice.Printer{W: out}),
				transactionsearch.WithLogger(s.log),
			)
			if err != nil {
				return err
			}

			candidates, err := dialog.Search(cmd.Context(), c)
			if err != nil || len(candidates) == 0 {
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAYMENT\tPAYER\tMOBILE\tAMOUNT\tSCORE\tMATCH")
			for _, cand := range candidates {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
					cand.Name, cand.FullName(), cand.MobileNumber, cand.Amount.StringFixed(2), cand.Score, cand.Decision)
			}
			tw.Flush()

			if apply == "" {
				return nil
			}
			res, err := dialog.Reconcile(cmd.Context(), apply)
			if err != nil {
				return err
			}
			inv := dialog.Invoice()
			fmt.Fprintf(out, "Payment Entry %s created, %s outstanding %s\n", res.PaymentEntry, inv.Name, inv.OutstandingAmount.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().StringVar(&c.CustomerName, "customer-name", "", "payer name")
	cmd.Flags().StringVar(&c.PhoneNumber, "phone", "", "payer mobile number")
	cmd.Flags().StringVar(&amount, "amount", "", "payment amount")
	cmd.Flags().StringVar(&c.MpesaTransactionID, "transaction-id", "", "M-Pesa transaction id")
	cmd.Flags().StringVar(&apply, "apply", "", "payment transaction to reconcile against the invoice")

	return cmd
}
