package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ayo6706/bank-ledger/internal/api/problem"
	"github.com/ayo6706/bank-ledger/internal/domain"
)

// Envelope is the uniform success response wrapper.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// money: a decimal string the ledger accepts as an operation amount.
	// Delegates to the domain check so the gate and the services agree on
	// inputs like "1.500", whose value fits two decimal places.
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && domain.CheckAmount(d) == nil
	})
	// money0: like money but zero is allowed (opening balances).
	_ = v.RegisterValidation("money0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && domain.CheckOpeningBalance(d) == nil
	})
	return v
}

// RespondData writes the success envelope.
func RespondData(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Message: message, Data: data})
}

// RespondError writes an RFC 7807 problem response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// decodeAndValidate decodes the JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether the caller should
// continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			RespondError(w, r, http.StatusBadRequest, "request/validation", "invalid field "+strings.ToLower(verrs[0].Field()))
			return false
		}
		RespondError(w, r, http.StatusBadRequest, "request/validation", "invalid request")
		return false
	}
	return true
}

// respondDomainError maps the ledger error taxonomy onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		RespondError(w, r, http.StatusBadRequest, "amount/invalid", err.Error())
	case errors.Is(err, domain.ErrSelfTransfer):
		RespondError(w, r, http.StatusBadRequest, "transfer/self", err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		RespondError(w, r, http.StatusBadRequest, "account/invalid-status", err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", err.Error())
	case errors.Is(err, domain.ErrDeletionForbidden):
		RespondError(w, r, http.StatusForbidden, "account/deletion-forbidden", err.Error())
	case errors.Is(err, domain.ErrDuplicateIdentity):
		RespondError(w, r, http.StatusConflict, "account/duplicate-identity", err.Error())
	case errors.Is(err, domain.ErrAccountNotActive):
		RespondError(w, r, http.StatusConflict, "account/not-active", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "account/insufficient-balance", err.Error())
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal/storage", "operation failed")
	}
}

// requestOrigin resolves the audit origin for a request: an explicit origin
// from the body wins, then X-Forwarded-For, then the peer address.
func requestOrigin(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseAccountID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("account id must be a positive integer")
	}
	return id, nil
}

// parsePaging reads page/page_size query parameters, tolerating absence.
func parsePaging(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}
