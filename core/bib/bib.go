// Package bib extracts bibliographic metadata from raw document markup.
// Extraction is a pure function over the markup text: every field falls
// back to the empty string when its pattern does not match, and repeated
// author/subject entries are joined with ", ".
package bib

import (
	"regexp"
	"strings"
)

// Info is the bibliographic record derived from raw markup.
type Info struct {
	Author    string
	Accession string
	Type      string
	Title     string
	Journal   string
	Citation  string
	Year      string
	Abstract  string
	Subject   string
}

var (
	authorPattern    = regexp.MustCompile(`(?s)<author>(.*?)</author>`)
	accessionPattern = regexp.MustCompile(`(?s)<accession>(.*?)</accession>`)
	typePattern      = regexp.MustCompile(`(?s)<type>(.*?)</type>`)
	titlePattern     = regexp.MustCompile(`(?s)<title>(.*?)</title>`)
	journalPattern   = regexp.MustCompile(`(?s)<journal>(.*?)</journal>`)
	citationPattern  = regexp.MustCompile(`(?s)<citation>(.*?)</citation>`)
	yearPattern      = regexp.MustCompile(`(?s)<year>(.*?)</year>`)
	abstractPattern  = regexp.MustCompile(`(?s)<abstract>(.*?)</abstract>`)
	subjectPattern   = regexp.MustCompile(`(?s)<subject>(.*?)</subject>`)

	// Citations commonly embed the publication year when no explicit
	// <year> element is present.
	citationYearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
)

// Extract derives an Info from raw markup text.
func Extract(raw string) Info {
	info := Info{
		Author:    joinAll(authorPattern, raw),
		Accession: first(accessionPattern, raw),
		Type:      first(typePattern, raw),
		Title:     first(titlePattern, raw),
		Journal:   first(journalPattern, raw),
		Citation:  first(citationPattern, raw),
		Year:      first(yearPattern, raw),
		Abstract:  first(abstractPattern, raw),
		Subject:   joinAll(subjectPattern, raw),
	}

	if info.Year == "" && info.Citation != "" {
		info.Year = citationYearPattern.FindString(info.Citation)
	}

	return info
}

// first returns the trimmed first capture of the pattern, or "".
func first(p *regexp.Regexp, raw string) string {
	m := p.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// joinAll returns all trimmed captures joined with ", ", or "".
func joinAll(p *regexp.Regexp, raw string) string {
	matches := p.FindAllStringSubmatch(raw, -1)
	if matches == nil {
		return ""
	}

	values := make([]string, 0, len(matches))
	for _, m := range matches {
		if v := strings.TrimSpace(m[1]); v != "" {
			values = append(values, v)
		}
	}
	return strings.Join(values, ", ")
}
