// Package commands implements the kcbctl command line.
package commands

import (
	"fmt"

	"kcb-payments-workbench/internal/app"
	"kcb-payments-workbench/internal/config"
	"kcb-payments-workbench/internal/logging"
	"kcb-payments-workbench/internal/rpc"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// session is what every subcommand runs against. It is filled in by the
// root command before a subcommand runs.
type session struct {
	client         *rpc.Client
	log            *zap.Logger
	defaultCompany string
}

type Option func(*session)

// WithClient skips backend configuration and uses client directly.
func WithClient(client *rpc.Client) Option {
	return func(s *session) { s.client = client }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *session) { s.log = log }
}

// WithDefaultCompany sets the company used when --company is not given.
func WithDefaultCompany(company string) Option {
	return func(s *session) { s.defaultCompany = company }
}

type connFlags struct {
	backend   string
	frappeURL string
	apiKey    string
	apiSecret string
	company   string
	logLevel  string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(opts ...Option) *cobra.Command {
	s := &session{}
	for _, opt := range opts {
		opt(s)
	}

	var flags connFlags
	rootCmd := &cobra.Command{
		Use:   "kcbctl",
		Short: "Reconcile KCB payments against ERPNext sales invoices",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.connect(cmd, flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.backend, "backend", "", "frappe or sandbox (default $BACKEND)")
	pf.StringVar(&flags.frappeURL, "frappe-url", "", "Frappe site URL (default $FRAPPE_URL)")
	pf.StringVar(&flags.apiKey, "api-key", "", "Frappe API key (default $FRAPPE_API_KEY)")
	pf.StringVar(&flags.apiSecret, "api-secret", "", "Frappe API secret (default $FRAPPE_API_SECRET)")
	pf.StringVar(&flags.company, "default-company", "", "company used when a command gets none (default $DEFAULT_COMPANY)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (default $LOG_LEVEL)")

	rootCmd.AddCommand(
		newFetchCommand(s),
		newReconcileCommand(s),
		newSearchCommand(s),
		newSTKRetryCommand(s),
		newSyncPaymentRequestCommand(s),
	)

	return rootCmd
}

func (s *session) connect(cmd *cobra.Command, flags connFlags) error {
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if cmd.Flags().Changed("default-company") {
		s.defaultCompany = flags.company
	}
	if s.client != nil {
		return nil
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("backend", &cfg.Backend, flags.backend)
	set("frappe-url", &cfg.FrappeURL, flags.frappeURL)
	set("api-key", &cfg.FrappeAPIKey, flags.apiKey)
	set("api-secret", &cfg.FrappeAPISecret, flags.apiSecret)
	set("log-level", &cfg.LogLevel, flags.logLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if s.defaultCompany == "" {
		s.defaultCompany = cfg.DefaultCompany
	}

	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	backend, err := app.NewBackend(cfg, log)
	if err != nil {
		return fmt.Errorf("connecting to %s backend: %w", cfg.Backend, err)
	}
	s.client = backend.Client
	s.log = log
	return nil
}
