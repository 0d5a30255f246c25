package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/service"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

type transferRequest struct {
	FromAccountID int64  `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64  `json:"to_account_id" validate:"required,gt=0"`
	Amount        string `json:"amount" validate:"required,money"`
	Origin        string `json:"origin" validate:"omitempty,max=128"`
}

// Transfer handles POST /v1/transfers.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, _ := decimal.NewFromString(req.Amount)

	res, err := h.svc.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, amount, requestOrigin(r, req.Origin))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusOK, "transfer recorded", map[string]any{
		"outgoing": res.Outgoing,
		"incoming": res.Incoming,
		"balance":  res.Outgoing.BalanceAfter,
	})
}
