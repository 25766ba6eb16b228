package handler

import (
	"net/http"

	"kcb-payments-workbench/internal/notice"
	service "kcb-payments-workbench/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type workbench struct {
	ctrl    *service.Controller
	notices *notice.Log
}

// ReconciliationHandler serves the reconciliation workbench. Each session
// holds one form.
type ReconciliationHandler struct {
	backend        service.Backend
	defaultCompany string
	log            *zap.Logger
	sessions       *sessions[*workbench]
}

func NewReconciliationHandler(backend service.Backend, defaultCompany string, log *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		backend:        backend,
		defaultCompany: defaultCompany,
		log:            log,
		sessions:       newSessions[*workbench](),
	}
}

func (h *ReconciliationHandler) render(c *gin.Context, status int, id string, wb *workbench) {
	c.JSON(status, gin.H{
		"session_id": id,
		"state":      wb.ctrl.State(),
		"notices":    drain(wb.notices),
	})
}

// Create opens a new workbench form and runs its onload hook.
func (h *ReconciliationHandler) Create(c *gin.Context) {
	wb := &workbench{notices: &notice.Log{}}
	wb.ctrl = service.NewController(h.backend, service.WithNotifier(wb.notices), service.WithLogger(h.log))
	wb.ctrl.Load(h.defaultCompany)

	id := h.sessions.add(wb)
	h.render(c, http.StatusCreated, id, wb)
}

func (h *ReconciliationHandler) Get(c *gin.Context) {
	id, wb, ok := h.session(c)
	if !ok {
		return
	}
	h.render(c, http.StatusOK, id, wb)
}

func (h *ReconciliationHandler) Delete(c *gin.Context) {
	h.sessions.remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *ReconciliationHandler) SetFilters(c *gin.Context) {
	id, wb, ok := h.session(c)
	if !ok {
		return
	}
	var filters service.Filters
	if err := c.ShouldBindJSON(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	wb.ctrl.SetFilters(filters)
	h.render(c, http.StatusOK, id, wb)
}

// InvoicePicker returns the query filter of the invoice_name field.
func (h *ReconciliationHandler) InvoicePicker(c *gin.Context) {
	_, wb, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"filters": wb.ctrl.State().Filters.InvoicePickerFilter()})
}

// Fetch reloads both tables and answers once both calls completed.
func (h *ReconciliationHandler) Fetch(c *gin.Context) {
	id, wb, ok := h.session(c)
	if !ok {
		return
	}
	handle, err := wb.ctrl.Fetch(c.Request.Context())
	if err != nil {
		writeError(c, err, drain(wb.notices))
		return
	}
	handle.Wait()
	h.render(c, http.StatusOK, id, wb)
}

func (h *ReconciliationHandler) Select(c *gin.Context) {
	id, wb, ok := h.session(c)
	if !ok {
		return
	}
	var sel service.Selection
	if err := c.ShouldBindJSON(&sel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := wb.ctrl.Select(sel); err != nil {
		writeError(c, err, drain(wb.notices))
		return
	}
	h.render(c, http.StatusOK, id, wb)
}

// Process submits the selection and answers after the follow-up refresh.
func (h *ReconciliationHandler) Process(c *gin.Context) {
	id, wb, ok := h.session(c)
	if !ok {
		return
	}
	handle, err := wb.ctrl.Process(c.Request.Context())
	if err != nil {
		writeError(c, err, drain(wb.notices))
		return
	}
	handle.Wait()
	h.render(c, http.StatusOK, id, wb)
}

func (h *ReconciliationHandler) session(c *gin.Context) (string, *workbench, bool) {
	id := c.Param("id")
	wb, ok := h.sessions.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return "", nil, false
	}
	return id, wb, true
}
