package parser

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	raw := "line one=\r\nline two=\nvalue=3D\"x\""
	once := Normalize(raw)
	twice := Normalize(once)

	if once != "line oneline twovalue=\"x\"" {
		t.Fatalf("unexpected normalization: %q", once)
	}
	if once != twice {
		t.Fatalf("normalization must be idempotent: %q != %q", once, twice)
	}
}

func TestExtract(t *testing.T) {
	e := NewCodeExtractor()

	tests := []struct {
		name  string
		body  string
		want  string
		found bool
	}{
		{
			name:  "labelled verification-code span",
			body:  `<span class="verification-code" style="x">AB12CD</span>`,
			want:  "AB12CD",
			found: true,
		},
		{
			name:  "quoted-printable wrapped attribute",
			body:  "<span class=3D\"verification-code\" style=3D\"letter-spacing: 4px\"=\r\n>XY99ZZ</span>",
			want:  "XY99ZZ",
			found: true,
		},
		{
			name:  "bare span",
			body:  `<p>Your code:</p><span>QQ12WW</span>`,
			want:  "QQ12WW",
			found: true,
		},
		{
			name:  "large font block",
			body:  `<div style="font-size: 28px; font-weight: bold">ZZ88XX<br/></div>`,
			want:  "ZZ88XX",
			found: true,
		},
		{
			name:  "lowercase code is upper-cased",
			body:  `<span>ab12cd</span>`,
			want:  "AB12CD",
			found: true,
		},
		{
			name:  "seven characters do not match",
			body:  `<span>ABC1234</span>`,
			found: false,
		},
		{
			name:  "no code at all",
			body:  `<p>Welcome! Please confirm your address.</p>`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := e.Extract(tt.body)
			if found != tt.found {
				t.Fatalf("expected found=%v, got %v (code %q)", tt.found, found, got)
			}
			if found && got != tt.want {
				t.Fatalf("expected code %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtractPatternOrder(t *testing.T) {
	e := NewCodeExtractor()

	// A labelled span must win over an earlier bare span
	body := `<span>FF00FF</span><span class="verification-code">AA11BB</span>`
	code, found := e.Extract(body)
	if !found {
		t.Fatal("expected a code")
	}
	if code != "AA11BB" {
		t.Fatalf("expected the labelled pattern to win, got %q", code)
	}
}

func TestTextSnippet(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body><p>Hello</p><div>World</div></body></html>`
	got := TextSnippet(html, 100)
	if got != "Hello\nWorld" {
		t.Fatalf("unexpected snippet: %q", got)
	}

	if got := TextSnippet(html, 3); got != "Hel..." {
		t.Fatalf("expected truncation, got %q", got)
	}
}
