package store

import (
	"testing"

	"github.com/wardloop/wardloop/internal/model"
)

func TestBuildAlertFilterEmpty(t *testing.T) {
	fa := buildAlertFilter(model.AlertFilter{})
	if fa.whereSQL() != "" {
		t.Errorf("expected no WHERE clause for an empty filter, got %q", fa.whereSQL())
	}
	if len(fa.args) != 0 {
		t.Errorf("expected no bound args, got %v", fa.args)
	}
}

func TestBuildAlertFilterCombinesClausesWithIncrementingPlaceholders(t *testing.T) {
	severity := model.SeverityHigh
	kind := model.KindXSS
	principalID := int64(7)

	fa := buildAlertFilter(model.AlertFilter{Severity: &severity, Kind: &kind, PrincipalID: &principalID})

	want := "WHERE severity = $1 AND kind = $2 AND principal_id = $3"
	if got := fa.whereSQL(); got != want {
		t.Errorf("whereSQL() = %q, want %q", got, want)
	}
	if len(fa.args) != 3 {
		t.Fatalf("expected 3 bound args, got %d", len(fa.args))
	}
	if fa.args[0] != string(model.SeverityHigh) || fa.args[1] != string(model.KindXSS) || fa.args[2] != principalID {
		t.Errorf("unexpected bound args: %+v", fa.args)
	}
}

func TestBuildAlertFilterAddressAndStatus(t *testing.T) {
	addr := "1.2.3.4"
	status := model.StatusReviewed
	fa := buildAlertFilter(model.AlertFilter{RemoteAddress: &addr, Status: &status})

	want := "WHERE status = $1 AND remote_address = $2"
	if got := fa.whereSQL(); got != want {
		t.Errorf("whereSQL() = %q, want %q", got, want)
	}
}

func TestNullableString(t *testing.T) {
	if got := nullableString(""); got != nil {
		t.Errorf("expected nil for an empty string, got %v", got)
	}
	got := nullableString("x-forwarded-for")
	if got == nil || *got != "x-forwarded-for" {
		t.Errorf("expected a pointer to the original string, got %v", got)
	}
}
