package commands

import (
	"fmt"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/services/paymentrequest"
	"kcb-payments-workbench/internal/services/stkpush"

	"github.com/spf13/cobra"
)

func newSTKRetryCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stk-retry <stk-request>",
		Short: "Send a failed STK push request to the customer's phone again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := stkpush.NewRetrier(s.client,
				stkpush.WithNotifier(&notice.Printer{W: cmd.OutOrStdout()}),
				stkpush.WithLogger(s.log),
			)
			_, err := r.RetryByName(cmd.Context(), args[0])
			return err
		},
	}
}

func newSyncPaymentRequestCommand(s *session) *cobra.Command {
	var form paymentrequest.Form
	var event string

	cmd := &cobra.Command{
		Use:   "sync-payment-request",
		Short: "Resolve the payment gateway or mode of payment of a Payment Request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if form.Company == "" {
				form.Company = s.defaultCompany
			}
			got, err := paymentrequest.NewSyncer(s.client, s.log).Apply(cmd.Context(), event, form)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode_of_payment: %s\n", got.ModeOfPayment)
			fmt.Fprintf(out, "payment_gateway: %s\n", got.PaymentGateway)
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Company, "company", "", "company (default --default-company)")
	cmd.Flags().StringVar(&form.ModeOfPayment, "mode-of-payment", "", "mode of payment")
	cmd.Flags().StringVar(&form.PaymentGateway, "payment-gateway", "", "payment gateway")
	cmd.Flags().StringVar(&event, "event", paymentrequest.EventRefresh,
		"field that changed: mode_of_payment, payment_gateway or refresh")

	return cmd
}
