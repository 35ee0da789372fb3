package classify

import (
	"strings"
	"testing"

	"github.com/wardloop/wardloop/internal/model"
)

func TestClassifySQLInjection(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "POST",
		Route:  "/auth/login",
		Body:   `email=u@x&password=' OR 1=1 --`,
	})
	if len(findings) == 0 {
		t.Fatalf("expected at least one finding")
	}
	var sqli *model.Finding
	for i := range findings {
		if findings[i].Kind == model.KindSQLInjection {
			sqli = &findings[i]
		}
	}
	if sqli == nil {
		t.Fatalf("expected a SQL_INJECTION finding, got %+v", findings)
	}
	if sqli.RiskScore() < 60 {
		t.Errorf("risk score too low: %d", sqli.RiskScore())
	}
}

func TestClassifyXSS(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "GET",
		Route:  "/comments",
		Query:  "text=<script>alert(document.cookie)</script>",
	})
	found := false
	for _, f := range findings {
		if f.Kind == model.KindXSS {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an XSS finding, got %+v", findings)
	}
}

func TestClassifyCommandInjection(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "POST",
		Route:  "/tools/ping",
		Body:   "host=example.com; cat /etc/passwd",
	})
	found := false
	for _, f := range findings {
		if f.Kind == model.KindCommandInjection {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a COMMAND_INJECTION finding, got %+v", findings)
	}
}

func TestClassifyTwoKindsAreCritical(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "GET",
		Route:  "/search",
		Query:  "q=<script>alert(1)</script>&id=1' UNION SELECT * FROM users--",
	})
	if len(findings) < 2 {
		t.Fatalf("expected at least two findings to trigger CRITICAL, got %+v", findings)
	}
	for _, f := range findings {
		if f.Severity != model.SeverityCritical {
			t.Errorf("expected CRITICAL severity when two kinds fire, got %s for %s", f.Severity, f.Kind)
		}
	}
}

func TestClassifySingleSQLiOnWriteRouteIsCritical(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "POST",
		Route:  "/orders",
		// Exactly one SQLi pattern matches this payload, so it is a
		// single hit rather than a multi-hit finding.
		Body: "id=1 UNION SELECT name FROM orders",
	})
	var sqli *model.Finding
	for i := range findings {
		if findings[i].Kind == model.KindSQLInjection {
			sqli = &findings[i]
		}
	}
	if sqli == nil {
		t.Fatalf("expected SQL_INJECTION finding, got %+v", findings)
	}
	if sqli.Severity != model.SeverityCritical {
		t.Errorf("expected CRITICAL for single SQLi on a write route, got %s", sqli.Severity)
	}
}

func TestClassifyWhitelistSuppressesFindings(t *testing.T) {
	c := New([]string{"127.0.0.1"}, false)
	findings := c.Classify(Request{
		Method:        "POST",
		Route:         "/auth/login",
		Body:          `password=' OR 1=1 --`,
		RemoteAddress: "127.0.0.1",
	})
	if len(findings) != 0 {
		t.Fatalf("expected no findings for whitelisted address, got %+v", findings)
	}
}

func TestClassifyTestingModeSuppressesFindings(t *testing.T) {
	c := New(nil, true)
	findings := c.Classify(Request{
		Method: "POST",
		Route:  "/auth/login",
		Body:   `password=' OR 1=1 --`,
	})
	if len(findings) != 0 {
		t.Fatalf("expected no findings in TESTING mode, got %+v", findings)
	}
}

func TestClassifyCleanRequestHasNoFindings(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "GET",
		Route:  "/events",
		Query:  "category=music&city=austin",
	})
	if len(findings) != 0 {
		t.Fatalf("expected no findings for a clean request, got %+v", findings)
	}
}

func TestClassifyOversizedPayloadYieldsAPIAbuse(t *testing.T) {
	c := New(nil, false)
	huge := strings.Repeat("a", 300<<10)
	findings := c.Classify(Request{
		Method: "POST",
		Route:  "/upload",
		Body:   huge,
	})
	if len(findings) != 1 {
		t.Fatalf("expected exactly one finding for an oversized payload, got %d: %+v", len(findings), findings)
	}
	if findings[0].Kind != model.KindAPIAbuse || findings[0].Severity != model.SeverityHigh {
		t.Errorf("expected API_ABUSE/HIGH, got %s/%s", findings[0].Kind, findings[0].Severity)
	}
}

func TestClassifyScannerUserAgent(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method:    "GET",
		Route:     "/",
		UserAgent: "sqlmap/1.7.2#stable (http://sqlmap.org)",
	})
	found := false
	for _, f := range findings {
		if f.Kind == model.KindPenTestTool {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a PEN_TEST_TOOL finding for a known scanner UA, got %+v", findings)
	}
}

func TestClassifyProbePath(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method: "GET",
		Route:  "/.git/config",
	})
	found := false
	for _, f := range findings {
		if f.Kind == model.KindPenTestTool {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a PEN_TEST_TOOL finding for a known probe path, got %+v", findings)
	}
}

func TestClassifyDisallowedMethodIsAPIAbuse(t *testing.T) {
	c := New(nil, false)
	findings := c.Classify(Request{
		Method:         "POST",
		Route:          "/events",
		AllowedMethods: []string{"GET"},
	})
	found := false
	for _, f := range findings {
		if f.Kind == model.KindAPIAbuse {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an API_ABUSE finding for a disallowed method, got %+v", findings)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New(nil, false)
	req := Request{Method: "POST", Route: "/auth/login", Body: `password=' OR 1=1 --`}
	first := c.Classify(req)
	second := c.Classify(req)
	if len(first) != len(second) {
		t.Fatalf("classifier is not deterministic: %d vs %d findings", len(first), len(second))
	}
	for i := range first {
		if first[i].Signature != second[i].Signature {
			t.Errorf("signature mismatch across identical runs: %q vs %q", first[i].Signature, second[i].Signature)
		}
	}
}
