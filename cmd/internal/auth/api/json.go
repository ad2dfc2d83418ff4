package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"vidtube/cmd/internal/kind"
)

type successEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, msg string) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, successEnvelope{StatusCode: status, Data: data, Message: msg, Success: true})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{StatusCode: status, Code: code, Message: msg, Success: false})
}

// writeFailure renders err. Internal failures are logged and never leak their cause.
func writeFailure(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	k := kind.Of(err)
	status := statusFor(k)
	msg := kind.Message(err)

	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "http.handler.fail",
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeError(w, status, k.Error(), msg)
}

// statusFor is the single kind to HTTP status mapping.
func statusFor(k error) int {
	switch k {
	case kind.ErrValidation:
		return http.StatusBadRequest
	case kind.ErrConflict:
		return http.StatusConflict
	case kind.ErrUnauthorized:
		return http.StatusUnauthorized
	case kind.ErrForbidden:
		return http.StatusForbidden
	case kind.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
