package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hidden = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Template: true,
}

// textFromHTML reduces a (possibly truncated) HTML document to its
// visible text, one block per line, with the title first.
func textFromHTML(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return tokenText(doc)
	}

	var b strings.Builder
	if title := strings.TrimSpace(titleOf(root)); title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}
	walk(root, &b)
	return squeeze(b.String())
}

func titleOf(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if c := n.FirstChild; c != nil && c.Type == html.TextNode {
			return c.Data
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := titleOf(c); t != "" {
			return t
		}
	}
	return ""
}

func walk(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.ElementNode:
		if hidden[n.DataAtom] || n.DataAtom == atom.Head {
			return
		}
		if breaks(n.DataAtom) {
			b.WriteString("\n")
		}
	case html.TextNode:
		if s := strings.TrimSpace(n.Data); s != "" {
			b.WriteString(s)
			b.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}
}

func breaks(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Tr, atom.Pre,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Table, atom.Ul, atom.Ol:
		return true
	}
	return false
}

// tokenText is the fallback when the parser gives up.
func tokenText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return squeeze(b.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); hidden[atom.Lookup(name)] {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); hidden[atom.Lookup(name)] && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteString(" ")
			}
		}
	}
}

// squeeze collapses runs of blanks within lines and drops empty lines.
func squeeze(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
