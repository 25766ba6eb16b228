package handler

import (
	"errors"
	"net/http"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/paymentrequest"
	"kcb-payments-workbench/internal/services/stkpush"
	"kcb-payments-workbench/internal/services/transactionsearch"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type searchDialog struct {
	dialog  *transactionsearch.Dialog
	notices *notice.Log
}

// PaymentHandler serves the sales invoice search dialog, the STK push
// retry and the payment request sync.
type PaymentHandler struct {
	client  *rpc.Client
	log     *zap.Logger
	dialogs *sessions[*searchDialog]
	retrier *stkpush.Retrier
	syncer  *paymentrequest.Syncer
}

func NewPaymentHandler(client *rpc.Client, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		client:  client,
		log:     log,
		dialogs: newSessions[*searchDialog](),
		retrier: stkpush.NewRetrier(client, stkpush.WithLogger(log)),
		syncer:  paymentrequest.NewSyncer(client, log),
	}
}

// InvoiceActions reports which custom buttons the invoice shows.
func (h *PaymentHandler) InvoiceActions(c *gin.Context) {
	inv, err := h.client.SalesInvoice(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv, "get_kcb_payments": transactionsearch.Available(inv)})
}

// Search opens a dialog for the invoice and runs the first search.
func (h *PaymentHandler) Search(c *gin.Context) {
	var criteria transactionsearch.Criteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sd := &searchDialog{notices: &notice.Log{}}
	d, err := transactionsearch.Start(c.Request.Context(), h.client, c.Param("name"),
		transactionsearch.WithNotifier(sd.notices),
		transactionsearch.WithLogger(h.log),
	)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	sd.dialog = d

	candidates, err := d.Search(c.Request.Context(), criteria)
	if err != nil {
		writeError(c, err, drain(sd.notices))
		return
	}
	if !d.Open() {
		c.JSON(http.StatusOK, gin.H{"candidates": []transactionsearch.Candidate{}, "notices": drain(sd.notices)})
		return
	}

	id := h.dialogs.add(sd)
	c.JSON(http.StatusOK, gin.H{"dialog_id": id, "candidates": candidates, "notices": drain(sd.notices)})
}

// Reconcile applies one candidate of an open dialog.
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	id := c.Param("id")
	sd, ok := h.dialogs.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dialog not found"})
		return
	}
	var payload struct {
		Payment string `json:"payment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	res, err := sd.dialog.Reconcile(c.Request.Context(), payload.Payment)
	if err != nil {
		writeError(c, err, drain(sd.notices))
		return
	}
	h.dialogs.remove(id)
	c.JSON(http.StatusOK, gin.H{
		"result":  res,
		"invoice": sd.dialog.Invoice(),
		"notices": drain(sd.notices),
	})
}

func (h *PaymentHandler) CloseDialog(c *gin.Context) {
	if sd, ok := h.dialogs.get(c.Param("id")); ok {
		sd.dialog.Close()
		h.dialogs.remove(c.Param("id"))
	}
	c.Status(http.StatusNoContent)
}

// RetrySTKPush re-sends the push of a failed STK request. Once the push
// has been attempted every failure is a bad gateway carrying the failure
// notice, whatever the remote error kind.
func (h *PaymentHandler) RetrySTKPush(c *gin.Context) {
	ctx := c.Request.Context()
	req, err := h.client.STKRequest(ctx, c.Param("name"))
	if err != nil {
		writeError(c, err, nil)
		return
	}

	res, err := h.retrier.Retry(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, stkpush.ErrNotRetryable), errors.Is(err, stkpush.ErrRetryInFlight):
		writeError(c, err, nil)
		return
	default:
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "notices": []notice.Notice{stkpush.Outcome(res, err)}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "notices": []notice.Notice{stkpush.Outcome(res, nil)}})
}

// SyncPaymentRequest runs the Payment Request form hook named by event.
func (h *PaymentHandler) SyncPaymentRequest(c *gin.Context) {
	var payload struct {
		Event string              `json:"event"`
		Form  paymentrequest.Form `json:"form"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	form, err := h.syncer.Apply(c.Request.Context(), payload.Event, payload.Form)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"form": form})
}
