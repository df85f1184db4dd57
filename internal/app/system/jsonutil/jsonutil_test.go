package jsonutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "200 OK with data",
			status:     http.StatusOK,
			data:       map[string]string{"slug": "home"},
			wantStatus: http.StatusOK,
			wantBody:   `{"slug":"home"}`,
		},
		{
			name:       "201 Created with data",
			status:     http.StatusCreated,
			data:       map[string]int{"revision": 1},
			wantStatus: http.StatusCreated,
			wantBody:   `{"revision":1}`,
		},
		{
			name:       "nil data",
			status:     http.StatusOK,
			data:       nil,
			wantStatus: http.StatusOK,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, tt.status, tt.data)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			body := strings.TrimSpace(rec.Body.String())
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body should be empty, got %q", rec.Body.String())
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"unauthenticated", apperr.Unauthenticated(), 401, "unauthenticated", "authentication required"},
		{"forbidden", apperr.Forbidden("editor role required"), 403, "forbidden", "editor role required"},
		{"not found", apperr.NotFound("page not found"), 404, "not_found", "page not found"},
		{"conflict", apperr.Conflict("slug already exists"), 409, "conflict", "slug already exists"},
		{"cycle", apperr.ErrCycle, 409, "cycle", "move would create a cycle"},
		{"validation", apperr.Validation("title is required"), 400, "validation", "title is required"},
		{"internal", errors.New("socket closed"), 500, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var got map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("json unmarshal error: %v", err)
			}
			if got["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", got["code"], tt.wantCode)
			}
			if got["error"] != tt.wantMsg {
				t.Errorf("error = %q, want %q", got["error"], tt.wantMsg)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, map[string]string{
		"title": "required",
		"slug":  "must be a slug",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var got struct {
		Error  string            `json:"error"`
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json unmarshal error: %v", err)
	}
	if got.Code != "validation" {
		t.Errorf("code = %q, want validation", got.Code)
	}
	if got.Fields["title"] != "required" {
		t.Errorf("fields.title = %q, want required", got.Fields["title"])
	}
}

func TestDecode(t *testing.T) {
	type input struct {
		Title string `json:"title"`
		Slug  string `json:"slug"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid JSON", `{"title":"Home","slug":"home"}`, false},
		{"invalid JSON", `{invalid}`, true},
		{"empty body", "", true},
		{"unknown field", `{"title":"Home","color":"red"}`, true},
		{"trailing document", `{"title":"a"}{"title":"b"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var got input
			err := Decode(req, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("Decode() kind = %q, want validation", apperr.KindOf(err))
			}
		})
	}
}

func TestDecode_TooLarge(t *testing.T) {
	body := `{"title":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var got map[string]string
	if err := Decode(req, &got); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Decode() error = %v, want validation", err)
	}
}
