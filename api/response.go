package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"bidvault/escrow"
	"bidvault/ledger"
	"bidvault/store"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

func respondOK(w http.ResponseWriter, r *http.Request, response any, logger log.Logger) {
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		level.Warn(logger).Log("path", r.URL.Path, "msg", "write response failed", "err", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error, fallbackCode int, logger log.Logger) {
	code, trueError := classifyError(err, fallbackCode)

	if trueError {
		level.Error(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "err", err, "code", code)
	} else {
		level.Debug(logger).Log("remote_addr", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "quasi_error", err, "code", code)
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorResponse{
		Error:      err.Error(),
		StatusCode: code,
		StatusText: http.StatusText(code),
	}); err != nil {
		level.Warn(logger).Log("path", r.URL.Path, "msg", "write error response failed", "err", err)
	}
}

// classifyError maps domain errors to status codes. The bool is false for
// errors caused by the caller, which aren't logged as errors.
func classifyError(err error, fallback int) (int, bool) {
	switch {
	case err == nil:
		return http.StatusOK, false
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusUnauthorized, false
	case errors.Is(err, escrow.ErrConfigurationMissing):
		return http.StatusPreconditionFailed, false
	case errors.Is(err, escrow.ErrAlreadyInitialized),
		errors.Is(err, escrow.ErrBiddingPeriodActive),
		errors.Is(err, escrow.ErrNoActivePeriod):
		return http.StatusConflict, false
	case errors.Is(err, escrow.ErrBiddingPeriodExpired):
		return http.StatusGone, false
	case errors.Is(err, escrow.ErrPayment),
		errors.Is(err, escrow.ErrInvalidTerms),
		errors.Is(err, escrow.ErrInvalidAdmins),
		errors.Is(err, escrow.ErrTooManyAccepted),
		errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, false
	case errors.Is(err, escrow.ErrBidNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, true
	default:
		return fallback, true
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
}
