package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorLogger_Write(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantLogs int
	}{
		{"classified", apperr.Conflict("slug already exists"), http.StatusConflict, 0},
		{"cycle", apperr.ErrCycle, http.StatusConflict, 0},
		{"internal", fmt.Errorf("mongo down"), http.StatusInternalServerError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			e := NewErrorLogger(zap.New(core))

			req := httptest.NewRequest(http.MethodPost, "/api/pages", nil)
			rec := httptest.NewRecorder()
			e.Write(rec, req, "create page failed", tt.err)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if logs.Len() != tt.wantLogs {
				t.Errorf("logged %d entries, want %d", logs.Len(), tt.wantLogs)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["code"] != string(apperr.KindOf(tt.err)) {
				t.Errorf("code = %q", body["code"])
			}
			if tt.wantLogs > 0 && body["error"] == "mongo down" {
				t.Error("internal cause leaked to client")
			}
		})
	}
}

func TestErrorLogger_LogWithFields(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	e := NewErrorLogger(zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/api/menus", nil)
	e.LogWithFields(req, "tree failed", fmt.Errorf("boom"), zap.String("root", "x"))

	if logs.Len() != 1 {
		t.Fatalf("logged %d entries", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["path"] != "/api/menus" || fields["method"] != http.MethodGet || fields["root"] != "x" {
		t.Errorf("fields = %v", fields)
	}
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/api/pages", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
