package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/invoice"
	applog "ledger/internal/log"
	ports "ledger/internal/sheets"
)

var (
	errBadRequest     = errors.New("bad request")
	errIfMatchMissing = errors.New("If-Match header is required")
)

// statusFor maps domain errors onto response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownTable),
		errors.Is(err, ports.ErrRowIndex),
		errors.Is(err, ports.ErrArchiveNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ports.ErrVersionRequired), errors.Is(err, errIfMatchMissing):
		return http.StatusPreconditionRequired
	case errors.Is(err, invoice.ErrNothingDue), errors.Is(err, ports.ErrEmptyTable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrEmptyField),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidMilestone),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, message string) {
	NewJSONResponse().Status(status).Body(map[string]string{"error": message}).Write(w)
}

// fail writes err with its mapped status. Internal errors are logged and
// answered with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err,
			applog.FieldPath, r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func tableParam(r *http.Request) (core.TableName, error) {
	return core.ParseTableName(sanitizeInput(r.PathValue("table")))
}

// indexParam parses a zero-based row index path value.
func indexParam(r *http.Request, name string) (int, error) {
	v := sanitizeInput(r.PathValue(name))
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: row index %q", errBadRequest, v)
	}
	return i, nil
}

// ifMatch returns the version the client expects. Weak prefixes and
// quotes are stripped; "*" passes through as AnyVersion.
func ifMatch(r *http.Request) (string, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" {
		return "", errIfMatchMissing
	}
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`), nil
}

func etag(version string) string {
	return `"` + version + `"`
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
