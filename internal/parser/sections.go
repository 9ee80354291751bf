package parser

import (
	"regexp"
	"strconv"
	"strings"

	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"
)

var (
	headingRe   = regexp.MustCompile(models.SectionHeadingRegex)
	sectionRe   = regexp.MustCompile(models.SectionReferenceRegex)
	articleRe   = regexp.MustCompile(models.ArticleReferenceRegex)
	actYearRe   = regexp.MustCompile(models.ActYearRegex)
	anyYearRe   = regexp.MustCompile(models.FourDigitYearRegex)
	dateRe      = regexp.MustCompile(models.DateRegex)
	amountRe    = regexp.MustCompile(models.AmountRegex)
	actAliasMap = map[string]string{
		"ipc":                        "IPC",
		"indian penal code":          "IPC",
		"crpc":                       "CrPC",
		"cr.p.c.":                    "CrPC",
		"code of criminal procedure": "CrPC",
		"evidence act":               "Evidence Act",
		"constitution":               "Constitution",
	}
)

// Heading is a statute heading found in cleaned corpus text.
type Heading struct {
	Citation string // "Section 101"
	Title    string // "Punishment for theft"
	Offset   int    // byte offset of Citation
}

// FindHeadings returns the headings of text in order of appearance.
func FindHeadings(text string) []Heading {
	var headings []Heading
	for _, m := range headingRe.FindAllStringSubmatchIndex(text, -1) {
		h := Heading{
			Citation: text[m[2]:m[3]],
			Offset:   m[2],
		}
		if m[4] >= 0 {
			h.Title = strings.TrimSpace(text[m[4]:m[5]])
		}
		headings = append(headings, h)
	}
	return headings
}

// headingFor picks the first heading inside [start, end), or failing that the
// closest one before start.
func headingFor(headings []Heading, start, end int) (Heading, bool) {
	var (
		before Heading
		found  bool
	)
	for _, h := range headings {
		if h.Offset >= end {
			break
		}
		if h.Offset >= start {
			return h, true
		}
		before, found = h, true
	}
	return before, found
}

// ActYear finds an enactment year such as "CODE, 1860" near the top of text.
func ActYear(text string) *int {
	head, _ := helper.TruncateRunes(text, 500)
	if m := actYearRe.FindStringSubmatch(head); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			return &y
		}
	}
	return nil
}

// ParseYear pulls the first plausible four digit year out of s, e.g. a
// "2019-03-01" publish date.
func ParseYear(s string) *int {
	if m := anyYearRe.FindStringSubmatch(s); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			return &y
		}
	}
	return nil
}

// CaseReferences lists the statute provisions a case narrative mentions,
// normalized and deduplicated in order of first appearance.
func CaseReferences(text string) []string {
	type ref struct {
		pos  int
		text string
	}
	var refs []ref
	for _, m := range sectionRe.FindAllStringSubmatchIndex(text, -1) {
		r := "Section " + strings.ToUpper(text[m[2]:m[3]])
		if m[4] >= 0 {
			if act, ok := actAliasMap[strings.ToLower(text[m[4]:m[5]])]; ok {
				r += " " + act
			}
		}
		refs = append(refs, ref{m[0], r})
	}
	for _, m := range articleRe.FindAllStringSubmatchIndex(text, -1) {
		refs = append(refs, ref{m[0], "Article " + strings.ToUpper(text[m[2]:m[3]]) + " Constitution"})
	}
	// stable insertion sort by position; reference lists are short
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refs[j].pos < refs[j-1].pos; j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
	seen := make(map[string]bool, len(refs))
	var out []string
	for _, r := range refs {
		if !seen[r.text] {
			seen[r.text] = true
			out = append(out, r.text)
		}
	}
	return out
}

// maxFacts caps the dates and amounts lifted out of one case.
const maxFacts = 5

// Dates lists the distinct dates a case narrative mentions, in order of
// first appearance.
func Dates(text string) []string {
	return firstDistinct(dateRe.FindAllString(text, -1), maxFacts)
}

// Amounts lists the distinct money amounts a case narrative mentions, in
// order of first appearance.
func Amounts(text string) []string {
	return firstDistinct(amountRe.FindAllString(text, -1), maxFacts)
}

func firstDistinct(matches []string, limit int) []string {
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.Join(strings.Fields(m), " ")
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out
}
