package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteKnownError(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, Invalid("bad field"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
	if body["error_code"] != string(InvalidInput) {
		t.Errorf("expected error_code=%s, got %v", InvalidInput, body["error_code"])
	}
}

func TestWriteWrapsOpaqueError(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for an opaque error, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error_code"] != string(Internal) {
		t.Errorf("expected error_code=%s, got %v", Internal, body["error_code"])
	}
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	var err error = NotFoundErr("nope")
	if err.Error() != "nope" {
		t.Errorf("expected message passthrough, got %q", err.Error())
	}
}
