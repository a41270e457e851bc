package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// dropped elements never contribute text.
const dropped = "script, style, noscript, template"

// markup matches a complete tag or the start of a comment. Text
// without a match is only entity-decoded, so a bare "<" survives.
var markup = regexp.MustCompile(`</?[A-Za-z][^<>]*>|<!--`)

// Sanitize turns a fragment of markup into plain text: tags removed,
// entities decoded, text nodes joined with a space, whitespace (NBSP
// included) collapsed and trimmed. Unparseable input falls back to the
// whitespace-collapsed original.
func Sanitize(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	if !markup.MatchString(s) {
		return collapse(html.UnescapeString(s))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find(dropped).Remove()

	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}
	return collapse(strings.Join(parts, " "))
}

// SanitizeValue sanitizes strings and returns anything else unchanged.
func SanitizeValue(v any) any {
	if s, ok := v.(string); ok {
		return Sanitize(s)
	}
	return v
}

func collectText(n *html.Node, out *[]string) {
	if n.Type == html.TextNode {
		*out = append(*out, n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
