package richtext

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	quoteLine   = regexp.MustCompile(`^>\s?(.*)$`)
	bulletLine  = regexp.MustCompile(`^[-*+]\s+(.*)$`)
	orderedLine = regexp.MustCompile(`^\d{1,9}[.)]\s+(.*)$`)
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineText
	lineHeading
	lineQuote
	lineBullet
	lineOrdered
)

func classify(line string) (lineKind, string, int) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return lineBlank, "", 0
	}
	if m := headingLine.FindStringSubmatch(trimmed); m != nil {
		return lineHeading, m[2], len(m[1])
	}
	if m := quoteLine.FindStringSubmatch(trimmed); m != nil {
		return lineQuote, strings.TrimSpace(m[1]), 0
	}
	if m := bulletLine.FindStringSubmatch(trimmed); m != nil {
		return lineBullet, strings.TrimSpace(m[1]), 0
	}
	if m := orderedLine.FindStringSubmatch(trimmed); m != nil {
		return lineOrdered, strings.TrimSpace(m[1]), 0
	}
	return lineText, trimmed, 0
}

// FromMarkdown classifies each line as heading, quote, list item, or paragraph text
// and groups consecutive lines of the same kind into blocks. Inline markup is kept verbatim.
func FromMarkdown(src string) Node {
	doc := Node{Type: NodeDoc}
	src = strings.ReplaceAll(src, "\r\n", "\n")

	var (
		para  []string
		quote []string
		items []string
		kind  lineKind
	)
	flush := func() {
		switch {
		case len(para) > 0:
			doc.Content = append(doc.Content, paragraph(strings.Join(para, " ")))
		case len(quote) > 0:
			doc.Content = append(doc.Content, Node{
				Type:    NodeBlockquote,
				Content: []Node{paragraph(strings.Join(quote, " "))},
			})
		case len(items) > 0:
			list := Node{Type: NodeBulletList}
			if kind == lineOrdered {
				list.Type = NodeOrderedList
			}
			for _, item := range items {
				list.Content = append(list.Content, Node{Type: NodeListItem, Content: []Node{paragraph(item)}})
			}
			doc.Content = append(doc.Content, list)
		}
		para, quote, items = nil, nil, nil
	}

	for _, line := range strings.Split(src, "\n") {
		k, text, level := classify(line)
		if k != kind {
			flush()
			kind = k
		}
		switch k {
		case lineHeading:
			doc.Content = append(doc.Content, heading(level, text))
		case lineQuote:
			if text != "" {
				quote = append(quote, text)
			}
		case lineBullet, lineOrdered:
			if text != "" {
				items = append(items, text)
			}
		case lineText:
			para = append(para, text)
		}
	}
	flush()
	return doc
}

// ToMarkdown serializes a document tree produced by FromMarkdown or FromHTML.
func ToMarkdown(doc Node) string {
	blocks := make([]string, 0, len(doc.Content))
	for _, block := range doc.Content {
		switch block.Type {
		case NodeHeading:
			blocks = append(blocks, strings.Repeat("#", clampLevel(block.HeadingLevel()))+" "+block.PlainText())
		case NodeBlockquote:
			blocks = append(blocks, "> "+block.PlainText())
		case NodeBulletList, NodeOrderedList:
			lines := make([]string, 0, len(block.Content))
			for i, item := range block.Content {
				marker := "-"
				if block.Type == NodeOrderedList {
					marker = strconv.Itoa(i+1) + "."
				}
				lines = append(lines, marker+" "+item.PlainText())
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		default:
			if text := block.PlainText(); text != "" {
				blocks = append(blocks, text)
			}
		}
	}
	return strings.Join(blocks, "\n\n")
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}
