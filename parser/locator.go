package parser

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"tender-scraper/models"
)

const unknown = models.Unknown

// SectionByKey finds the span tagged with data-labels-key == key and returns
// its nearest enclosing div whose id starts with "section". The selection is
// empty when either step fails.
func SectionByKey(root *goquery.Selection, key string) *goquery.Selection {
	if root == nil {
		return &goquery.Selection{}
	}
	span := root.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr("data-labels-key")
		return ok && v == key
	}).First()
	if span.Length() == 0 {
		return span
	}
	return span.ParentsFiltered("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return strings.HasPrefix(id, "section")
	}).First()
}

// FirstSectionByKey returns the section for the first key that resolves.
func FirstSectionByKey(root *goquery.Selection, keys ...string) *goquery.Selection {
	for _, k := range keys {
		if sec := SectionByKey(root, k); sec.Length() > 0 {
			return sec
		}
	}
	return &goquery.Selection{}
}

// SectionContent returns the div.section-content that follows a section header.
func SectionContent(section *goquery.Selection) *goquery.Selection {
	if section == nil || section.Length() == 0 {
		return &goquery.Selection{}
	}
	return section.NextAllFiltered("div.section-content").First()
}

// LabelsContaining returns the span.label elements of container whose text
// contains any of the given substrings.
func LabelsContaining(container *goquery.Selection, substrings ...string) *goquery.Selection {
	if container == nil {
		return &goquery.Selection{}
	}
	return container.Find("span.label").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for _, sub := range substrings {
			if strings.Contains(text, sub) {
				return true
			}
		}
		return false
	})
}

// BoldStartingWith returns span.bold elements whose trimmed text starts with prefix.
func BoldStartingWith(container *goquery.Selection, prefix string) *goquery.Selection {
	if container == nil {
		return &goquery.Selection{}
	}
	return container.Find("span.bold").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.HasPrefix(strings.TrimSpace(s.Text()), prefix)
	})
}

// LabelValue finds the first span.label under container whose text contains
// label and reads the value paired with it: the following span.data, else the
// immediately following text node, else the following div's text. Returns
// Unknown when nothing matches.
func LabelValue(container *goquery.Selection, label string) string {
	lbl := LabelsContaining(container, label).First()
	if lbl.Length() == 0 {
		return unknown
	}

	if data := lbl.NextAllFiltered("span.data").First(); data.Length() > 0 {
		return TextOrLinkText(data)
	}

	if next := lbl.Nodes[0].NextSibling; next != nil && next.Type == html.TextNode {
		if text := NormaliseText(next.Data); text != "" {
			return text
		}
	}

	if div := lbl.NextAllFiltered("div").First(); div.Length() > 0 {
		if text := JoinedText(div, ", "); text != "" {
			return text
		}
	}

	return unknown
}

// DataSpans returns the span.data descendants of the label's parent, the
// layout used for multi-part values such as amount + currency.
func DataSpans(label *goquery.Selection) *goquery.Selection {
	if label == nil || label.Length() == 0 {
		return &goquery.Selection{}
	}
	return label.First().Parent().Find("span.data")
}

// TextOrLinkText prefers the text of a nested link, falling back to the
// element's own text. Returns Unknown for an empty selection.
func TextOrLinkText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return unknown
	}
	sel = sel.First()
	if link := sel.Find("a").First(); link.Length() > 0 {
		return NormaliseText(link.Text())
	}
	return NormaliseText(sel.Text())
}

// JoinedText joins the trimmed, non-empty text nodes under sel with sep.
func JoinedText(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := NormaliseText(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// orUnknown maps an empty string to Unknown.
func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
