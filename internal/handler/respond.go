package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// errorKinds maps apperr kinds to status codes and error codes.
var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{apperr.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{apperr.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperr.ErrNotEligible, http.StatusBadRequest, "not_eligible"},
	{apperr.ErrWindowExpired, http.StatusBadRequest, "window_expired"},
	{apperr.ErrConflict, http.StatusConflict, "conflict"},
	{apperr.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperr.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperr.ErrExternal, http.StatusInternalServerError, "external_failure"},
	{apperr.ErrStorage, http.StatusInternalServerError, "internal"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Server-side failures are logged
// and their message is replaced with a generic one.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	kind := apperr.KindOf(err)
	for _, k := range errorKinds {
		if kind == k.kind {
			status, code = k.status, k.code
			break
		}
	}

	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
		if kind == apperr.ErrExternal {
			msg = apperr.Message(err)
		}
	}
	writeErrorStatus(w, r, status, code, msg)
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Code:      code,
		Message:   msg,
		RequestID: httpmiddleware.RequestIDFromContext(r.Context()),
	})
}

func badRequest(msg string) error {
	return apperr.New(apperr.ErrValidation, msg)
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.ErrValidation, err, "invalid request body")
	}
	return nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, badRequest("invalid " + name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest("invalid " + name)
	}
	return v, nil
}
