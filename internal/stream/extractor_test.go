package stream

import (
	"strings"
	"testing"
)

func collect(field string) (*Extractor, *[]string) {
	var got []string
	ex := New(field, func(fragment string) { got = append(got, fragment) })
	return ex, &got
}

func feedByChar(ex *Extractor, raw string) {
	for _, r := range raw {
		ex.Feed(string(r))
	}
}

func TestExtractorSingleCharChunks(t *testing.T) {
	t.Parallel()

	ex, got := collect("x")
	feedByChar(ex, `{"x":"a\nb"}`)

	if joined := strings.Join(*got, ""); joined != "a\nb" {
		t.Fatalf("extracted %q, want %q", joined, "a\nb")
	}
	if !ex.Done() {
		t.Fatal("extractor should be done after the closing quote")
	}
}

func TestExtractorMarkerSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	ex, got := collect("html_prototype")
	ex.Feed(`{"components":[],"htm`)
	ex.Feed(`l_prototype":"Z"`)

	if joined := strings.Join(*got, ""); joined != "Z" {
		t.Fatalf("extracted %q, want %q", joined, "Z")
	}
}

func TestExtractorEscapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"basic escapes", `{"f":"a\tb\rc\"d\\e\/f"}`, "a\tb\rc\"d\\e/f"},
		{"unicode escape", `{"f":"x\u00e9y"}`, "xéy"},
		{"invalid hex degrades literally", `{"f":"x\uZZZZy"}`, `x\uZZZZy`},
		{"unknown escape passes through", `{"f":"a\qb"}`, "aqb"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex, got := collect("f")
			feedByChar(ex, tc.raw)
			if joined := strings.Join(*got, ""); joined != tc.want {
				t.Fatalf("extracted %q, want %q", joined, tc.want)
			}
		})
	}
}

func TestExtractorEscapeSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	ex, got := collect("f")
	ex.Feed(`{"f":"a\`)
	ex.Feed(`nb\u00`)
	ex.Feed(`e9c"}`)

	if joined := strings.Join(*got, ""); joined != "a\nbéc" {
		t.Fatalf("extracted %q, want %q", joined, "a\nbéc")
	}
}

func TestExtractorUnterminatedString(t *testing.T) {
	t.Parallel()

	ex, got := collect("f")
	ex.Feed(`{"f":"abc`)

	if joined := strings.Join(*got, ""); joined != "abc" {
		t.Fatalf("extracted %q, want %q", joined, "abc")
	}
	if ex.Done() {
		t.Fatal("extractor must not be done without a closing quote")
	}

	// Further chunks keep streaming; still no crash, no spurious flush.
	ex.Feed("def")
	if joined := strings.Join(*got, ""); joined != "abcdef" {
		t.Fatalf("extracted %q, want %q", joined, "abcdef")
	}
}

func TestExtractorIgnoresInputAfterDone(t *testing.T) {
	t.Parallel()

	ex, got := collect("f")
	ex.Feed(`{"f":"v","g":"other"}`)
	ex.Feed(`{"f":"again"}`)

	if joined := strings.Join(*got, ""); joined != "v" {
		t.Fatalf("extracted %q, want %q", joined, "v")
	}
}

func TestExtractorFieldAbsent(t *testing.T) {
	t.Parallel()

	ex, got := collect("missing")
	feedByChar(ex, `{"present":"value"}`)

	if len(*got) != 0 {
		t.Fatalf("expected no fragments, got %v", *got)
	}
}
