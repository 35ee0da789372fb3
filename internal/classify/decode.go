package classify

import (
	"html"
	"net/url"
)

const (
	maxDecodePasses  = 3
	maxExpansion     = 64
	maxDecodedBytes  = 1 << 20 // 1 MiB
	maxScanInputSize = 256 << 10
)

// decodeResult carries every decoding pass of a field alongside a flag
// noting whether the expansion budget was exceeded.
type decodeResult struct {
	passes       []string // original + each successive decode, de-duplicated
	budgetBlown  bool
}

// decodeField runs up to maxDecodePasses of URL- then HTML-entity-decoding
// over raw, stopping early once a pass produces no change or its output
// exceeds the expansion budget. It never raises: a pass whose URL-decoding
// fails keeps that layer as-is and still applies HTML-entity decoding.
func decodeField(raw string) decodeResult {
	budget := len(raw) * maxExpansion
	if budget > maxDecodedBytes || budget <= 0 {
		budget = maxDecodedBytes
	}

	res := decodeResult{passes: []string{raw}}
	current := raw
	for i := 0; i < maxDecodePasses; i++ {
		next := current
		if unescaped, err := url.QueryUnescape(next); err == nil {
			next = unescaped
		}
		next = html.UnescapeString(next)

		if len(next) > budget {
			res.budgetBlown = true
			break
		}
		if next == current {
			break
		}
		res.passes = append(res.passes, next)
		current = next
	}
	return res
}

// combinedSearchText joins every decode pass of every field into one string
// for pattern matching. The text is not truncated; oversized reports whether
// the passes total more than maxScanInputSize bytes or any field blew its
// expansion budget, so the caller can treat the request as API_ABUSE/HIGH
// without further pattern work.
func combinedSearchText(fields ...string) (text string, oversized bool) {
	var all []string
	total := 0
	for _, f := range fields {
		dr := decodeField(f)
		for _, p := range dr.passes {
			total += len(p)
			all = append(all, p)
		}
		if dr.budgetBlown {
			oversized = true
		}
	}
	if total > maxScanInputSize {
		oversized = true
	}

	joined := ""
	for i, s := range all {
		if i > 0 {
			joined += " "
		}
		joined += s
	}
	return joined, oversized
}
