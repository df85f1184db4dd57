// Package jsonutil provides helper functions for JSON API responses.
//
// Use these helpers in API handlers to ensure consistent JSON responses
// with proper Content-Type headers and error formatting.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
)

// MaxBodyBytes bounds request bodies read by Decode. Page content has its
// own, smaller limit enforced by the page store.
const MaxBodyBytes = 4 << 20

// JSON writes a JSON response with the given status code.
//
// Usage:
//
//	jsonutil.JSON(w, http.StatusOK, map[string]any{
//	    "status": "success",
//	    "data": result,
//	})
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a 200 OK JSON response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 Created JSON response.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 No Content response (no body).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error response with the given status code.
// The response body is {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// WriteError writes err as {"error": message, "code": kind} with the status
// of its kind. Unclassified errors become a bare 500; log them separately.
//
// Usage:
//
//	page, err := h.Pages.GetBySlug(ctx, slug)
//	if err != nil {
//	    jsonutil.WriteError(w, err)
//	    return
//	}
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	JSON(w, apperr.Status(kind), map[string]string{
		"error": apperr.Message(err),
		"code":  string(kind),
	})
}

// ValidationError writes a 400 Bad Request response with field-level errors.
//
// Usage:
//
//	jsonutil.ValidationError(w, map[string]string{
//	    "email": "invalid email format",
//	    "name":  "required",
//	})
func ValidationError(w http.ResponseWriter, fields map[string]string) {
	JSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"code":   string(apperr.KindValidation),
		"fields": fields,
	})
}

// Decode reads one JSON document from the request body into v. Unknown
// fields, trailing data and bodies over MaxBodyBytes are rejected. The
// returned error is an apperr validation error ready for WriteError.
//
// Usage:
//
//	var in createPageRequest
//	if err := jsonutil.Decode(r, &in); err != nil {
//	    jsonutil.WriteError(w, err)
//	    return
//	}
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Wrap(apperr.KindValidation, "request body is empty", err)
		}
		return apperr.Wrap(apperr.KindValidation, fmt.Sprintf("malformed JSON: %v", err), err)
	}
	if dec.More() {
		return apperr.Validation("request body must hold a single JSON object")
	}
	return nil
}
