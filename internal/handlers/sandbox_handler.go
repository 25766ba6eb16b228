package handler

import (
	"io"
	"net/http"

	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the IPN payload signature.
const SignatureHeader = "signature"

// SandboxHandler answers Frappe /api/method calls from the sandbox ledger,
// including the two KCB webhooks.
type SandboxHandler struct {
	server *ledger.Server
	log    *zap.Logger
}

func NewSandboxHandler(server *ledger.Server, log *zap.Logger) *SandboxHandler {
	return &SandboxHandler{server: server, log: log}
}

func (h *SandboxHandler) Method(c *gin.Context) {
	method := c.Param("method")
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warn("reading request body failed", zap.String("method", method), zap.Error(err))
		status, env := ledger.Envelope(nil, err)
		c.JSON(status, env)
		return
	}

	ctx := c.Request.Context()
	switch method {
	case rpc.MethodSTKPushCallback:
		c.JSON(http.StatusOK, gin.H{"message": h.server.Service().HandleSTKCallback(ctx, raw)})
		return
	case rpc.MethodPaymentNotification:
		ack := h.server.Service().HandlePaymentNotification(ctx, raw, c.GetHeader(SignatureHeader))
		c.JSON(http.StatusOK, gin.H{"message": ack})
		return
	}

	msg, err := h.server.Invoke(ctx, method, raw)
	status, env := ledger.Envelope(msg, err)
	c.JSON(status, env)
}

// Methods lists what the sandbox serves.
func (h *SandboxHandler) Methods(c *gin.Context) {
	methods := append(h.server.Methods(), rpc.MethodSTKPushCallback, rpc.MethodPaymentNotification)
	c.JSON(http.StatusOK, gin.H{"methods": methods})
}
