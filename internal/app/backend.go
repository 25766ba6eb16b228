// Package app wires the remote backend selected by the configuration.
package app

import (
	"fmt"

	"kcb-payments-workbench/internal/config"
	"kcb-payments-workbench/internal/kcb"
	"kcb-payments-workbench/internal/models"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/ledger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Backend is the typed client plus, in sandbox mode, the ledger serving it.
type Backend struct {
	Client  *rpc.Client
	Sandbox *ledger.Server
}

// NewBackend connects to the Frappe site or opens the sandbox ledger.
func NewBackend(cfg *config.Config, log *zap.Logger) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendFrappe:
		caller := rpc.NewHTTPCaller(cfg.FrappeURL,
			rpc.WithAPIToken(cfg.FrappeAPIKey, cfg.FrappeAPISecret),
			rpc.WithTimeout(cfg.FrappeTimeout),
		)
		log.Info("using frappe backend", zap.String("url", cfg.FrappeURL))
		return &Backend{Client: rpc.NewClient(caller)}, nil

	case config.BackendSandbox:
		db, err := config.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewSandbox(db, cfg, log)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// NewSandbox migrates db and serves the ledger from it.
func NewSandbox(db *gorm.DB, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrating sandbox models: %w", err)
	}

	opts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.WithSiteURL(cfg.SiteURL),
		ledger.WithKCBClient(kcb.New()),
	}
	if cfg.VerifySignature {
		pub, err := kcb.ParsePublicKey(cfg.KCBPublicKey)
		if err != nil && cfg.KCBPublicKey != "" {
			return nil, fmt.Errorf("parsing KCB_PUBLIC_KEY: %w", err)
		}
		if pub == nil {
			log.Warn("KCB_PUBLIC_KEY not set, signed notifications will be rejected")
		}
		opts = append(opts, ledger.WithSignatureVerification(true, pub))
	} else {
		opts = append(opts, ledger.WithSignatureVerification(false, nil))
	}

	server := ledger.NewServer(ledger.NewService(db, opts...))
	log.Info("using sandbox backend", zap.Strings("methods", server.Methods()))
	return &Backend{Client: rpc.NewClient(server), Sandbox: server}, nil
}
