package handler

import (
	"errors"
	"net/http"
	"sync"

	"kcb-payments-workbench/internal/notice"
	"kcb-payments-workbench/internal/rpc"
	"kcb-payments-workbench/internal/services/reconciliation"
	"kcb-payments-workbench/internal/services/stkpush"
	"kcb-payments-workbench/internal/services/transactionsearch"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// sessions keeps per-client form state in memory.
type sessions[T any] struct {
	m sync.Map // id -> T
}

func newSessions[T any]() *sessions[T] {
	return &sessions[T]{}
}

func (s *sessions[T]) add(v T) string {
	id := uuid.NewString()
	s.m.Store(id, v)
	return id
}

func (s *sessions[T]) get(id string) (T, bool) {
	v, ok := s.m.Load(id)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func (s *sessions[T]) remove(id string) {
	s.m.Delete(id)
}

func drain(l *notice.Log) []notice.Notice {
	items := l.Drain()
	if items == nil {
		return []notice.Notice{}
	}
	return items
}

var badRequest = []error{
	reconciliation.ErrCompanyRequired,
	reconciliation.ErrNoSelection,
	reconciliation.ErrUnknownRow,
	transactionsearch.ErrEmptyCriteria,
	transactionsearch.ErrUnknownCandidate,
	transactionsearch.ErrNotAvailable,
	stkpush.ErrNotRetryable,
}

var conflict = []error{
	reconciliation.ErrBusy,
	stkpush.ErrRetryInFlight,
}

func statusFor(err error) int {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range conflict {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeError(c *gin.Context, err error, notices []notice.Notice) {
	_ = c.Error(err)
	if notices == nil {
		notices = []notice.Notice{}
	}
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "notices": notices})
}
