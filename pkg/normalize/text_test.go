package normalize

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tags and nbsp", "<p>Hello&nbsp;<b>world</b></p>", "Hello world"},
		{"plain text", "  Shares   rose\n\ttoday ", "Shares rose today"},
		{"entities", "Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"block elements", "<div><p>First</p><p>Second</p></div>", "First Second"},
		{"script and style dropped", "<style>p{color:red}</style><p>Body</p><script>alert(1)</script>", "Body"},
		{"comments dropped", "<p>Kept<!-- hidden --></p>", "Kept"},
		{"unclosed markup", "<p>Broken <b>bold", "Broken bold"},
		{"empty", "", ""},
		{"stray angle bracket", "AAPL<TSLA rally", "AAPL<TSLA rally"},
		{"comparison with entity", "P/E < 15 &amp; rising", "P/E < 15 & rising"},
		{"spaced angle brackets", "a < b > c", "a < b > c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeValuePassesNonStrings(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"<i>x</i>", "x"},
		{42, 42},
		{nil, nil},
		{json.Number("1.5"), json.Number("1.5")},
		{[]any{"<b>a</b>"}, []any{"<b>a</b>"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, SanitizeValue(tt.in)); diff != "" {
			t.Errorf("SanitizeValue(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
