// Package classify implements the pattern-based attack Classifier: pure,
// side-effect-free, regex-driven request classification (spec §4.1).
package classify

import (
	"regexp"
	"strings"

	"github.com/wardloop/wardloop/internal/model"
)

// Request is the Classifier's input: the parts of an inbound HTTP request
// relevant to pattern matching.
type Request struct {
	Method        string
	Route         string // route template, e.g. "/auth/login", not the concrete path
	Query         string
	Body          string
	UserAgent     string
	Referer       string
	RemoteAddress string
	// AllowedMethods, if non-empty, is the set of methods the route
	// normally expects; a method outside this set is an API_ABUSE signal.
	// Optional — omitted when the caller has no route metadata.
	AllowedMethods []string
}

// Classifier is a pure function (request) -> []Finding, with one-time
// compiled-pattern state and an explicit whitelist.
type Classifier struct {
	testing   bool
	whitelist map[string]struct{}
}

// New builds a Classifier. whitelistAddrs and testing implement spec
// §4.1's "never fires" suppression, applied before any scoring.
func New(whitelistAddrs []string, testing bool) *Classifier {
	wl := make(map[string]struct{}, len(whitelistAddrs))
	for _, a := range whitelistAddrs {
		wl[strings.TrimSpace(a)] = struct{}{}
	}
	return &Classifier{testing: testing, whitelist: wl}
}

var stackingRE = regexp.MustCompile(`(?i);\s*(drop|alter|create|truncate|exec|execute|select|insert|update|delete)\b`)

func isWriteMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

// Classify runs the Classifier against req, returning zero or more Findings.
// It never panics and never blocks; a malformed field degrades to a LOW
// API_ABUSE finding rather than failing (spec §4.1 failure semantics).
func (c *Classifier) Classify(req Request) (findings []model.Finding) {
	defer func() {
		if r := recover(); r != nil {
			findings = []model.Finding{{
				Kind:      model.KindAPIAbuse,
				Severity:  model.SeverityLow,
				Signature: model.ComputeSignature(model.KindAPIAbuse, "malformed-request"),
				Fragment:  "malformed request",
				ScoreBase: model.KindAPIAbuse.ScoreBase(),
			}}
		}
	}()

	if _, ok := c.whitelist[req.RemoteAddress]; ok || c.testing {
		return nil
	}

	text, oversized := combinedSearchText(req.Query, req.Body, req.UserAgent, req.Referer)
	if oversized {
		return []model.Finding{{
			Kind:      model.KindAPIAbuse,
			Severity:  model.SeverityHigh,
			Signature: model.ComputeSignature(model.KindAPIAbuse, req.Route),
			Fragment:  truncate(text, 256),
			ScoreBase: model.KindAPIAbuse.ScoreBase(),
		}}
	}

	matches := matchAttackRules(text)
	distinctKinds := len(matches)

	for _, m := range matches {
		findings = append(findings, buildFinding(m, text, req, distinctKinds))
	}

	if matchesScannerUA(req.UserAgent) || matchesProbePath(req.Route) {
		findings = append(findings, model.Finding{
			Kind:      model.KindPenTestTool,
			Severity:  model.SeverityLow,
			Signature: model.ComputeSignature(model.KindPenTestTool, req.Route+"|"+req.UserAgent),
			Fragment:  truncate(req.UserAgent+" "+req.Route, 256),
			ScoreBase: model.KindPenTestTool.ScoreBase(),
		})
	}

	if len(req.AllowedMethods) > 0 && !methodAllowed(req.Method, req.AllowedMethods) {
		findings = append(findings, model.Finding{
			Kind:      model.KindAPIAbuse,
			Severity:  model.SeverityLow,
			Signature: model.ComputeSignature(model.KindAPIAbuse, req.Method+" "+req.Route),
			Fragment:  req.Method + " " + req.Route,
			ScoreBase: model.KindAPIAbuse.ScoreBase(),
		})
	}

	return findings
}

func methodAllowed(method string, allowed []string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func buildFinding(m regexMatch, text string, req Request, distinctKinds int) model.Finding {
	severity := model.SeverityLow
	if m.hitCount > 1 {
		severity = model.SeverityMedium
	}
	if m.kind.ScoreBase() >= 70 || stackingRE.MatchString(text) {
		severity = model.SeverityHigh
	}
	isSQLorCmd := m.kind == model.KindSQLInjection || m.kind == model.KindCommandInjection
	if distinctKinds >= 2 || (m.hitCount == 1 && isSQLorCmd && isWriteMethod(req.Method)) {
		severity = model.SeverityCritical
	}

	fragment := truncate(text, 256)
	return model.Finding{
		Kind:      m.kind,
		Severity:  severity,
		Signature: model.ComputeSignature(m.kind, fragment),
		Fragment:  fragment,
		ScoreBase: m.kind.ScoreBase(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
