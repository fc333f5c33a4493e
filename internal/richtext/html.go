package richtext

import (
	stdhtml "html"
	"regexp"
	"strings"
)

var (
	dropBlockRegex = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	commentRegex   = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRegex       = regexp.MustCompile(`(?s)<(/?)([a-zA-Z][a-zA-Z0-9]*)[^>]*>`)
	spaceRegex     = regexp.MustCompile(`[ \t\f\v]+`)
)

// FromHTML strips HTML down to headings, quotes, lists and paragraphs. Block tags are
// turned into markdown line prefixes and the result is classified by FromMarkdown, so
// nesting is flattened and anything else (tables, inline formatting) becomes plain text.
func FromHTML(src string) Node {
	return FromMarkdown(htmlToLines(src))
}

func htmlToLines(src string) string {
	src = dropBlockRegex.ReplaceAllString(src, "")
	src = commentRegex.ReplaceAllString(src, "")

	var (
		out        strings.Builder
		listStack  []string
		quoteDepth int
	)
	newline := func(prefix string) {
		out.WriteString("\n")
		if quoteDepth > 0 && prefix == "" {
			prefix = "> "
		}
		out.WriteString(prefix)
	}

	last := 0
	for _, loc := range tagRegex.FindAllStringSubmatchIndex(src, -1) {
		out.WriteString(inlineText(src[last:loc[0]]))
		last = loc[1]
		closing := src[loc[2]:loc[3]] == "/"
		name := strings.ToLower(src[loc[4]:loc[5]])
		switch name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if closing {
				newline("")
			} else {
				out.WriteString("\n")
				newline(strings.Repeat("#", int(name[1]-'0')) + " ")
			}
		case "blockquote":
			if closing {
				if quoteDepth > 0 {
					quoteDepth--
				}
				out.WriteString("\n\n")
			} else {
				out.WriteString("\n\n")
				quoteDepth++
				out.WriteString("> ")
			}
		case "ul", "ol":
			if closing {
				if len(listStack) > 0 {
					listStack = listStack[:len(listStack)-1]
				}
				out.WriteString("\n\n")
			} else {
				listStack = append(listStack, name)
				out.WriteString("\n")
			}
		case "li":
			if closing {
				continue
			}
			marker := "- "
			if len(listStack) > 0 && listStack[len(listStack)-1] == "ol" {
				marker = "1. "
			}
			newline(marker)
		case "p", "div", "section", "article", "pre", "table", "tr":
			if quoteDepth > 0 {
				newline("")
			} else {
				out.WriteString("\n\n")
			}
		case "br":
			newline("")
		default:
			if !closing && (name == "td" || name == "th") {
				out.WriteString(" ")
			}
		}
	}
	out.WriteString(inlineText(src[last:]))
	return out.String()
}

func inlineText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = stdhtml.UnescapeString(s)
	return spaceRegex.ReplaceAllString(s, " ")
}
