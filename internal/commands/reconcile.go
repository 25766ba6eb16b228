package commands

import (
	"fmt"

	"kcb-payments-workbench/internal/services/reconciliation"

	"github.com/spf13/cobra"
)

func newReconcileCommand(s *session) *cobra.Command {
	var ff filterFlags
	var invoices, payments []string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Allocate KCB payments to sales invoices",
		Long: "Fetches the workbench with the given filters, selects the named invoices and payments\n" +
			"and processes them. The tables are printed again once the reconciliation is posted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters, err := ff.filters(s.defaultCompany)
			if err != nil {
				return err
			}
			ctrl, err := s.fetch(cmd, filters)
			if err != nil {
				return err
			}

			sel, err := selectionFor(ctrl.State(), invoices, payments)
			if err != nil {
				return err
			}
			if _, err := ctrl.Select(sel); err != nil {
				return err
			}

			h, err := ctrl.Process(cmd.Context())
			if err != nil {
				return err
			}
			h.Wait()
			printState(cmd.OutOrStdout(), ctrl.State())
			return nil
		},
	}
	ff.bind(cmd.Flags())
	cmd.Flags().StringSliceVar(&invoices, "invoice", nil, "sales invoice to allocate to (repeatable)")
	cmd.Flags().StringSliceVar(&payments, "payment", nil, "KCB payment transaction to allocate (repeatable)")

	return cmd
}

// selectionFor maps document names onto the row ids of the fetched tables.
func selectionFor(st reconciliation.State, invoices, payments []string) (reconciliation.Selection, error) {
	var sel reconciliation.Selection
	for _, name := range invoices {
		id := ""
		for _, r := range st.Invoices {
			if r.Invoice == name {
				id = r.RowID
				break
			}
		}
		if id == "" {
			return sel, fmt.Errorf("invoice %s is not outstanding for these filters", name)
		}
		sel.Invoices = append(sel.Invoices, id)
	}
	for _, name := range payments {
		id := ""
		for _, r := range st.Payments {
			if r.PaymentID == name {
				id = r.RowID
				break
			}
		}
		if id == "" {
			return sel, fmt.Errorf("payment %s is not unreconciled for these filters", name)
		}
		sel.Payments = append(sel.Payments, id)
	}
	return sel, nil
}
