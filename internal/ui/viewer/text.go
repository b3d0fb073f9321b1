package viewer

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end the current line when they open or close.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "ul": true, "ol": true,
	"hr": true,
}

// PlainText flattens an HTML body for the terminal: block elements become
// line breaks, links keep their target, and scripts and styles are
// dropped. Input that fails to parse is returned unchanged.
func PlainText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(collapseSpace(n.Data))
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			}
			if blockTags[n.Data] {
				newline(&b)
			}
			if n.Data == "li" {
				b.WriteString("- ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			if n.Data == "a" {
				if href := attr(n, "href"); href != "" && href != textOf(n) {
					b.WriteString(" <" + href + ">")
				}
			}
			if blockTags[n.Data] && n.Data != "br" {
				newline(&b)
			}
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			blank++
			if blank > 1 || len(out) == 0 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func newline(b *strings.Builder) {
	s := b.String()
	if s == "" || strings.HasSuffix(s, "\n") {
		return
	}
	b.WriteString("\n")
}

func collapseSpace(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(f, " ")
	if strings.TrimLeft(s, " \t\r\n") != s {
		out = " " + out
	}
	if strings.TrimRight(s, " \t\r\n") != s {
		out += " "
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
