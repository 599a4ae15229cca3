package store

import "strings"

// PreflightRequest is the subset of an incoming CORS preflight request the
// matcher needs (spec §9 CORS matcher design note).
type PreflightRequest struct {
	Origin         string
	Method         string
	RequestHeaders []string
}

// MatchCORS evaluates rules in order and returns the first rule whose
// origin, method, and every requested header all match. Origin and method
// patterns support an exact match or the wildcard "*"; header patterns
// additionally support a suffix wildcard ("x-ms-*") matched by
// case-insensitive prefix. ok is false if no rule matches.
func MatchCORS(rules []CORSRule, req PreflightRequest) (CORSRule, bool) {
	for _, rule := range rules {
		if !matchOrigin(rule.AllowedOrigins, req.Origin) {
			continue
		}
		if !matchExact(rule.AllowedMethods, req.Method) {
			continue
		}
		if !allHeadersMatch(rule.AllowedHeaders, req.RequestHeaders) {
			continue
		}
		return rule, true
	}
	return CORSRule{}, false
}

func matchOrigin(patterns []string, origin string) bool {
	for _, p := range patterns {
		if p == "*" || strings.EqualFold(p, origin) {
			return true
		}
	}
	return false
}

func matchExact(patterns []string, v string) bool {
	for _, p := range patterns {
		if p == "*" || strings.EqualFold(p, v) {
			return true
		}
	}
	return false
}

func allHeadersMatch(patterns []string, headers []string) bool {
	for _, h := range headers {
		if !matchHeader(patterns, h) {
			return false
		}
	}
	return true
}

func matchHeader(patterns []string, header string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if strings.HasSuffix(p, "*") {
			prefix := strings.TrimSuffix(p, "*")
			if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
				return true
			}
			continue
		}
		if strings.EqualFold(p, header) {
			return true
		}
	}
	return false
}
