package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ayo6706/bank-ledger/internal/domain"
	"github.com/ayo6706/bank-ledger/internal/service"
)

// AccountHandler exposes account lifecycle, money movement and statement
// reads for a single account.
type AccountHandler struct {
	accounts  *service.AccountService
	lifecycle *service.LifecycleService
	query     *service.QueryService
}

func NewAccountHandler(accounts *service.AccountService, lifecycle *service.LifecycleService, query *service.QueryService) *AccountHandler {
	return &AccountHandler{accounts: accounts, lifecycle: lifecycle, query: query}
}

type createAccountRequest struct {
	Username       string `json:"username" validate:"required,min=2,max=64"`
	CredentialHash string `json:"credential_hash" validate:"required"`
	NationalID     string `json:"national_id" validate:"required,min=4,max=64"`
	InitialBalance string `json:"initial_balance" validate:"omitempty,money0"`
	Origin         string `json:"origin" validate:"omitempty,max=128"`
}

// Create handles POST /v1/accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	initial := decimal.Zero
	if req.InitialBalance != "" {
		initial, _ = decimal.NewFromString(req.InitialBalance)
	}

	acct, err := h.lifecycle.CreateAccount(r.Context(), req.Username, req.CredentialHash, req.NationalID, initial, requestOrigin(r, req.Origin))
	if err != nil {
		if !domain.IsValidation(err) {
			zap.L().Error("create account failed", zap.Error(err), zap.String("username", req.Username))
		}
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusCreated, "account created", acct)
}

// Get handles GET /v1/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", err.Error())
		return
	}

	acct, err := h.query.Account(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusOK, "account", acct)
}

// List handles GET /v1/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePaging(r)
	accounts, total, err := h.query.Accounts(r.Context(), page, pageSize)
	if err != nil {
		zap.L().Error("list accounts failed", zap.Error(err))
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusOK, "accounts", map[string]any{
		"items":       accounts,
		"count":       len(accounts),
		"total_count": total,
	})
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Origin string `json:"origin" validate:"omitempty,max=128"`
}

// SetStatus handles PUT /v1/accounts/{id}/status.
func (h *AccountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", err.Error())
		return
	}

	var req setStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	acct, err := h.lifecycle.SetStatus(r.Context(), id, domain.AccountStatus(req.Status), requestOrigin(r, req.Origin))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusOK, "status updated", acct)
}

// Delete handles DELETE /v1/accounts/{id}. Deletion is always refused.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", err.Error())
		return
	}

	err = h.lifecycle.DeleteAccount(r.Context(), id, requestOrigin(r, ""))
	respondDomainError(w, r, err)
}

type moveRequest struct {
	Amount string `json:"amount" validate:"required,money"`
	Origin string `json:"origin" validate:"omitempty,max=128"`
}

// Deposit handles POST /v1/accounts/{id}/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, domain.KindDeposit)
}

// Withdraw handles POST /v1/accounts/{id}/withdraw.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, domain.KindWithdraw)
}

func (h *AccountHandler) move(w http.ResponseWriter, r *http.Request, kind domain.TransactionKind) {
	id, err := parseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", err.Error())
		return
	}

	var req moveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, _ := decimal.NewFromString(req.Amount)
	origin := requestOrigin(r, req.Origin)

	switch kind {
	case domain.KindDeposit:
		record, err := h.accounts.Deposit(r.Context(), id, amount, origin)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		RespondData(w, http.StatusOK, "deposit recorded", map[string]any{
			"transaction": record,
			"balance":     record.BalanceAfter,
		})
	case domain.KindWithdraw:
		record, err := h.accounts.Withdraw(r.Context(), id, amount, origin)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		RespondData(w, http.StatusOK, "withdrawal recorded", map[string]any{
			"transaction": record,
			"balance":     record.BalanceAfter,
		})
	}
}

// Transactions handles GET /v1/accounts/{id}/transactions.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", err.Error())
		return
	}

	page, pageSize := parsePaging(r)
	records, err := h.query.Transactions(r.Context(), id, page, pageSize)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	RespondData(w, http.StatusOK, "transactions", map[string]any{
		"items": records,
		"count": len(records),
	})
}
