package handler

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/service"
)

// OperationLogHandler serves the audit-trail listing for the admin viewer.
type OperationLogHandler struct {
	query *service.QueryService
}

func NewOperationLogHandler(query *service.QueryService) *OperationLogHandler {
	return &OperationLogHandler{query: query}
}

// List handles GET /v1/operation-logs. Filters: account_id, operation,
// from/to (RFC 3339, inclusive), page, page_size.
func (h *OperationLogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := service.LogQuery{Operation: r.URL.Query().Get("operation")}
	q.Page, q.PageSize = parsePaging(r)

	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "account_id must be an integer")
			return
		}
		q.AccountID = &id
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{name: "from", dst: &q.From},
		{name: "to", dst: &q.To},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-time", p.name+" must be RFC 3339")
			return
		}
		*p.dst = &ts
	}

	entries, err := h.query.Logs(r.Context(), q)
	if err != nil {
		zap.L().Error("list operation logs failed", zap.Error(err))
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusOK, "operation logs", map[string]any{
		"items": entries,
		"count": len(entries),
	})
}
