package rangeref

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTripLiterals(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"epubcfi(/6/4!/4/2,/1:0,/3:12)",
		"+/=",
		"???>>>",
		"Ünïcödé – 日本語 🚀",
		strings.Repeat("x", 1000),
	}

	for _, in := range inputs {
		token := Encode(in)
		if strings.ContainsAny(token, "+/=") {
			t.Fatalf("token %q for %q contains characters outside the link alphabet", token, in)
		}

		out, err := Decode(token)
		if err != nil {
			t.Fatalf("Decode(%q) returned error: %v", token, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")

		token := Encode(s)
		if strings.ContainsAny(token, "+/=") {
			t.Fatalf("token %q contains '+', '/' or '='", token)
		}

		out, err := Decode(token)
		if err != nil {
			t.Fatalf("Decode(%q) returned error: %v", token, err)
		}
		if out != s {
			t.Fatalf("round trip mismatch: got %q want %q", out, s)
		}
	})
}

func TestTokenRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[A-Za-z0-9_-]{0,40}`).Draw(t, "token")

		decoded, err := Decode(s)
		if err != nil {
			// Not every string over the alphabet is a canonical token.
			return
		}
		if got := Encode(decoded); got != s {
			t.Fatalf("Encode(Decode(%q)) = %q", s, got)
		}
	})
}

func TestDecodeRejectsMalformedTokens(t *testing.T) {
	cases := map[string]string{
		"padding":        "Zg==",
		"plus":           "ab+c",
		"slash":          "ab/c",
		"impossible len": "abcde",
		"non canonical":  "Zh",
		"invalid utf8":   Encode(string([]byte{0xff, 0xfe})),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(token); !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("expected ErrMalformedToken for %q, got %v", token, err)
			}
		})
	}
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		raw    string
		want   Ref
		wantOK bool
	}{
		{raw: "Book.epub#rangeref=abc123", want: Ref{Path: "Book.epub", Token: "abc123"}, wantOK: true},
		{raw: "Notes/Book.epub#rangeref=Zg_9", want: Ref{Path: "Notes/Book.epub", Token: "Zg_9"}, wantOK: true},
		{raw: "Book.pdf#rangeref=abc", wantOK: false},
		{raw: "Book.epub", wantOK: false},
		{raw: "deep://open?file=Book.epub#rangeref=xyz", want: Ref{Path: "Book.epub", Token: "xyz"}, wantOK: true},
		{raw: "BOOK.EPUB#rangeref=A-b", want: Ref{Path: "BOOK.EPUB", Token: "A-b"}, wantOK: true},
		{raw: "Book.epub#page=3", wantOK: false},
		{raw: "[[Shelf\\Book.epub#rangeref=abc|A label]]", want: Ref{Path: "Shelf/Book.epub", Token: "abc"}, wantOK: true},
		{raw: "![[Book.epub#rangeref=abc]]", want: Ref{Path: "Book.epub", Token: "abc"}, wantOK: true},
		{raw: "<My Books/Book.epub#rangeref=abc>", want: Ref{Path: "My Books/Book.epub", Token: "abc"}, wantOK: true},
		{raw: "deep://open?vault=v&file=Shelf%2FBook.epub#rangeref=q1", want: Ref{Path: "Shelf/Book.epub", Token: "q1"}, wantOK: true},
		{raw: "https://example.com/Book.epub#rangeref=abc", wantOK: false},
		{raw: "", wantOK: false},
		{raw: "#rangeref=abc", wantOK: false},
		{raw: "Book.epub#norangeref=abc", wantOK: false},
		{raw: "Book.epub#x-rangeref=abc", wantOK: false},
		{raw: "Book.epub#page=3&rangeref=abc", want: Ref{Path: "Book.epub", Token: "abc"}, wantOK: true},
	}

	for _, tc := range tests {
		got, ok := Parse(tc.raw)
		if ok != tc.wantOK {
			t.Fatalf("Parse(%q) ok = %v, want %v", tc.raw, ok, tc.wantOK)
		}
		if ok && got != tc.want {
			t.Fatalf("Parse(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}

func TestParseNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		_, _ = Parse(raw)
	})
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"Book.epub#rangeref=abc":           KindPath,
		"deep://open?file=Book.epub#x":     KindDeepLink,
		"https://example.com/page":         KindOther,
		"plain note":                       KindOther,
		"[[Book.epub#rangeref=abc|label]]": KindPath,
	}

	for raw, want := range cases {
		if got := Classify(raw).Kind; got != want {
			t.Errorf("Classify(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestTokensFindsEveryOccurrence(t *testing.T) {
	text := "[[Book.epub#rangeref=aaa|see also rangeref=bbb and rangeref=aaa]]"
	got := Tokens(text)
	want := []string{"aaa", "bbb", "aaa"}
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := Tokens("Book.epub#xrangeref=abc and norangeref=def"); got != nil {
		t.Fatalf("expected keys ending in rangeref to be ignored, got %v", got)
	}
	if got := Tokens("rangeref=a#rangeref=b"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected adjacent references to both match, got %v", got)
	}
}

func TestLinkRenderingRoundTripsThroughParse(t *testing.T) {
	rng := "epubcfi(/6/4!/4/2,/1:0,/3:12)"
	link := NewLink("Shelf/Book.epub", rng, "A [quoted] | passage")

	if link.Label != "A quoted passage" {
		t.Fatalf("unexpected sanitized label %q", link.Label)
	}

	forms := map[string]string{
		"wiki":     link.Wiki(),
		"markdown": strings.TrimSuffix(strings.SplitN(link.Markdown(), "](", 2)[1], ")"),
		"deeplink": link.DeepLink("ebref", "Main"),
	}

	for name, text := range forms {
		ref, ok := Parse(text)
		if !ok {
			t.Fatalf("%s form %q did not parse", name, text)
		}
		if ref.Path != "Shelf/Book.epub" {
			t.Fatalf("%s form parsed path %q", name, ref.Path)
		}
		decoded, err := Decode(ref.Token)
		if err != nil {
			t.Fatalf("%s form token did not decode: %v", name, err)
		}
		if decoded != rng {
			t.Fatalf("%s form decoded %q, want %q", name, decoded, rng)
		}
	}
}

func TestSanitizeLabel(t *testing.T) {
	if got := SanitizeLabel("  line one\nline   two\r\n "); got != "line one line two" {
		t.Fatalf("unexpected collapsed label %q", got)
	}

	long := strings.Repeat("word ", 30)
	got := SanitizeLabel(long)
	if utf8.RuneCountInString(got) > MaxLabelLength {
		t.Fatalf("label exceeds cap: %d runes", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated label to end with ellipsis, got %q", got)
	}

	exact := strings.Repeat("é", MaxLabelLength)
	if got := SanitizeLabel(exact); got != exact {
		t.Fatalf("label at the cap should be untouched, got %q", got)
	}
}

func TestLimitLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		max   int
		want  string
	}{
		{"short label untouched", "Call me Ishmael", 20, "Call me Ishmael"},
		{"cut with ellipsis", "Call me Ishmael", 10, "Call me..."},
		{"tiny cap drops ellipsis", "Ishmael", 3, "Ish"},
		{"non-positive uses default", strings.Repeat("a", MaxLabelLength), 0, strings.Repeat("a", MaxLabelLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LimitLabel(tt.label, tt.max); got != tt.want {
				t.Fatalf("LimitLabel(%q, %d) = %q, want %q", tt.label, tt.max, got, tt.want)
			}
		})
	}

	link := NewLinkLimit("Novel.epub", "epubcfi(/6/2!/4,/1:0,/1:3)", "Call me Ishmael", 10)
	if link.Label != "Call me..." {
		t.Fatalf("expected NewLinkLimit to cap the label, got %q", link.Label)
	}
}
