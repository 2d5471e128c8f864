// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"conceptarium/internal/models"
)

// ErrorCode is a machine-readable error class in API responses.
type ErrorCode string

const (
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeDuplicateName    ErrorCode = "duplicate_name"
	ErrorCodeReferenced       ErrorCode = "referenced"
	ErrorCodeConflict         ErrorCode = "conflict"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeInternal         ErrorCode = "internal"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// ErrorDetails carries the error class and human-readable message.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// maxBodyBytes caps request bodies; drawings with embedded images stay well
// under this.
const maxBodyBytes = 16 << 20

// Wrap adapts a typed handler function to an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters are extracted into struct fields tagged with `path:"name"`,
// query parameters into fields tagged with `query:"name"`.
// *In must implement Validatable.
func Wrap[In any, PtrIn interface {
	*In
	Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
			return
		}
		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodeValidationFailed, "request body too large")
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "failed to read request body")
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "invalid request body")
			return false
		}
	}
	return true
}

func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		status, code := classifyError(err)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", status)
		} else {
			slog.DebugContext(ctx, "Handler error", "err", err, "statusCode", status)
		}
		writeError(w, status, code, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// classifyError maps the domain error taxonomy to HTTP status codes.
func classifyError(err error) (int, ErrorCode) {
	var notFound *models.NotFoundError
	var dup *models.DuplicateNameError
	var referenced *models.ReferencedEntityError
	var conflict *models.ConflictError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrorCodeNotFound
	case errors.As(err, &dup):
		return http.StatusConflict, ErrorCodeDuplicateName
	case errors.As(err, &referenced):
		return http.StatusConflict, ErrorCodeReferenced
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorCodeConflict
	}
	return http.StatusInternalServerError, ErrorCodeInternal
}

func writeError(w http.ResponseWriter, statusCode int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := ErrorResponse{Error: ErrorDetails{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}

// populatePathParams extracts path parameters from the request and populates
// struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			elem.Field(i).SetString(paramValue)
		}
	}
}

// populateQueryParams extracts query parameters into struct fields tagged
// with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}
		fieldVal := elem.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(paramValue)
		case reflect.Int:
			if intVal, err := strconv.Atoi(paramValue); err == nil {
				fieldVal.SetInt(int64(intVal))
			}
		case reflect.Bool:
			if boolVal, err := strconv.ParseBool(paramValue); err == nil {
				fieldVal.SetBool(boolVal)
			}
		}
	}
}
