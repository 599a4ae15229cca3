package store

import "testing"

func TestMatchCORS(t *testing.T) {
	rules := []CORSRule{
		{
			AllowedOrigins: []string{"https://example.com"},
			AllowedMethods: []string{"GET", "PUT"},
			AllowedHeaders: []string{"x-ms-*"},
		},
		{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"*"},
			AllowedHeaders: []string{"*"},
		},
	}

	cases := []struct {
		name    string
		req     PreflightRequest
		wantIdx int
		wantOK  bool
	}{
		{"exact origin and method, wildcard header", PreflightRequest{Origin: "https://example.com", Method: "GET", RequestHeaders: []string{"x-ms-blob-type"}}, 0, true},
		{"header not covered by first rule falls to wildcard", PreflightRequest{Origin: "https://example.com", Method: "GET", RequestHeaders: []string{"content-type"}}, 1, true},
		{"method not allowed by first rule falls to wildcard", PreflightRequest{Origin: "https://example.com", Method: "DELETE", RequestHeaders: nil}, 1, true},
		{"unrelated origin falls to wildcard", PreflightRequest{Origin: "https://other.example", Method: "GET", RequestHeaders: nil}, 1, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rule, ok := MatchCORS(rules, c.req)
			if ok != c.wantOK {
				t.Fatalf("ok = %v, want %v", ok, c.wantOK)
			}
			if ok && rule.AllowedOrigins[0] != rules[c.wantIdx].AllowedOrigins[0] {
				t.Fatalf("matched rule %+v, want index %d", rule, c.wantIdx)
			}
		})
	}

	if _, ok := MatchCORS(nil, PreflightRequest{Origin: "https://example.com"}); ok {
		t.Fatal("expected no match against an empty rule set")
	}
}

func TestMatchCORSHeaderPrefix(t *testing.T) {
	rules := []CORSRule{{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"*"},
		AllowedHeaders: []string{"x-ms-meta-*"},
	}}

	if _, ok := MatchCORS(rules, PreflightRequest{Origin: "a", Method: "GET", RequestHeaders: []string{"X-MS-Meta-Foo"}}); !ok {
		t.Fatal("expected case-insensitive prefix match to succeed")
	}
	if _, ok := MatchCORS(rules, PreflightRequest{Origin: "a", Method: "GET", RequestHeaders: []string{"x-ms-blob-type"}}); ok {
		t.Fatal("expected non-matching prefix to fail")
	}
}
