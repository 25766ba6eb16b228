package routes

import (
	"net/http"

	handler "kcb-payments-workbench/internal/handlers"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are what the routes are served from. Sandbox is nil unless the
// sandbox ledger backs the service.
type Deps struct {
	Client         *rpc.Client
	DefaultCompany string
	Sandbox        *ledger.Server
	Log            *zap.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	reconHandler := handler.NewReconciliationHandler(d.Client, d.DefaultCompany, log)
	paymentHandler := handler.NewPaymentHandler(d.Client, log)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sandbox": d.Sandbox != nil})
	})

	// Reconciliation workbench sessions
	recon := api.Group("/reconciliation")
	recon.POST("", reconHandler.Create)
	recon.GET("/:id", reconHandler.Get)
	recon.DELETE("/:id", reconHandler.Delete)
	recon.PUT("/:id/filters", reconHandler.SetFilters)
	recon.GET("/:id/invoice-picker", reconHandler.InvoicePicker)
	recon.POST("/:id/fetch", reconHandler.Fetch)
	recon.PUT("/:id/selection", reconHandler.Select)
	recon.POST("/:id/process", reconHandler.Process)

	// Sales invoice search dialog
	invoices := api.Group("/invoices")
	{
		invoices.GET("/:name/actions", paymentHandler.InvoiceActions)
		invoices.POST("/:name/kcb-payments/search", paymentHandler.Search)
	}
	dialogs := api.Group("/kcb-payments/dialogs")
	dialogs.POST("/:id/reconcile", paymentHandler.Reconcile)
	dialogs.DELETE("/:id", paymentHandler.CloseDialog)

	api.POST("/stk-requests/:name/retry", paymentHandler.RetrySTKPush)
	api.POST("/payment-requests/sync", paymentHandler.SyncPaymentRequest)

	if d.Sandbox != nil {
		sandbox := handler.NewSandboxHandler(d.Sandbox, log)
		api.GET("/methods", sandbox.Methods)
		api.POST("/method/:method", sandbox.Method)
	}
}
