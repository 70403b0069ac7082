package redaction

import (
	"regexp"
	"strings"
	"unicode"
)

// The entity matcher is a deterministic, offline stand-in for a statistical
// NER model. It recognizes the PERSON/ORG/GPE/DATE label families from small
// lexicons and capitalization shape, which is enough for the rule engine's
// accuracy tier; callers wanting model-grade recognition use the vision
// engine instead.

var honorifics = map[string]bool{
	"Mr.": true, "Mrs.": true, "Ms.": true, "Dr.": true, "Prof.": true,
	"Mr": true, "Mrs": true, "Ms": true, "Dr": true, "Prof": true,
}

var givenNames = map[string]bool{
	"James": true, "John": true, "Robert": true, "Michael": true, "William": true,
	"David": true, "Richard": true, "Joseph": true, "Thomas": true, "Charles": true,
	"Mary": true, "Patricia": true, "Jennifer": true, "Linda": true, "Elizabeth": true,
	"Barbara": true, "Susan": true, "Jessica": true, "Sarah": true, "Karen": true,
	"Daniel": true, "Matthew": true, "Anthony": true, "Mark": true, "Steven": true,
	"Emily": true, "Anna": true, "Olivia": true, "Emma": true, "Sophia": true,
}

var orgSuffixes = map[string]bool{
	"Inc": true, "Inc.": true, "LLC": true, "Ltd": true, "Ltd.": true,
	"Corp": true, "Corp.": true, "Co.": true, "GmbH": true, "AG": true,
	"Company": true, "Corporation": true, "Airlines": true, "Bank": true,
}

var placeNames = map[string]bool{
	"London": true, "Paris": true, "Berlin": true, "Madrid": true, "Rome": true,
	"Tokyo": true, "Sydney": true, "Toronto": true, "Chicago": true, "Boston": true,
	"Seattle": true, "Denver": true, "Austin": true, "Dallas": true, "Houston": true,
	"France": true, "Germany": true, "Spain": true, "Italy": true, "Japan": true,
	"Canada": true, "Australia": true, "India": true, "Brazil": true, "Mexico": true,
	"USA": true, "UK": true,
	"New York": true, "Los Angeles": true, "San Francisco": true, "United States": true,
	"United Kingdom": true, "New Delhi": true, "Hong Kong": true,
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
}

// token is a word of the scanned text with its character span.
type token struct {
	text  string
	start int
	end   int
}

func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: text[start:], start: start, end: len(text)})
	}
	return tokens
}

// trimPunct strips leading/trailing punctuation for lexicon lookups.
func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '.'
	})
}

func isCapitalized(s string) bool {
	s = trimPunct(s)
	if s == "" {
		return false
	}
	r := []rune(s)[0]
	return unicode.IsUpper(r)
}

// findEntities locates PERSON/ORG/GPE/DATE spans in text.
func findEntities(text string, labels []string) []piiSpan {
	wanted := labelSet(labels)
	var found []piiSpan

	if wanted[LabelDate] {
		for _, pattern := range datePatterns {
			for _, match := range pattern.FindAllStringIndex(text, -1) {
				found = append(found, piiSpan{start: match[0], end: match[1], label: LabelDate})
			}
		}
	}

	tokens := tokenize(text)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		word := trimPunct(tok.text)

		if wanted[LabelGPE] {
			// Try two-token place names first, then single tokens.
			if i+1 < len(tokens) {
				pair := word + " " + trimPunct(tokens[i+1].text)
				if placeNames[pair] {
					found = append(found, piiSpan{start: tok.start, end: tokens[i+1].end, label: LabelGPE})
					i++
					continue
				}
			}
			if placeNames[word] {
				found = append(found, piiSpan{start: tok.start, end: tok.end, label: LabelGPE})
				continue
			}
		}

		if wanted[LabelPerson] {
			if span, next, ok := matchPerson(tokens, i); ok {
				found = append(found, span)
				i = next
				continue
			}
		}

		if wanted[LabelOrg] {
			if span, next, ok := matchOrg(tokens, i); ok {
				found = append(found, span)
				i = next
				continue
			}
		}
	}

	return found
}

// matchPerson matches an honorific or known given name followed by
// capitalized surname tokens.
func matchPerson(tokens []token, i int) (piiSpan, int, bool) {
	tok := tokens[i]
	word := trimPunct(tok.text)

	start := -1
	nameStart := i
	if honorifics[word] && i+1 < len(tokens) && isCapitalized(tokens[i+1].text) {
		start = tok.start
		nameStart = i + 1
	} else if givenNames[word] {
		start = tok.start
	} else {
		return piiSpan{}, i, false
	}

	end := tokens[nameStart].end
	last := nameStart
	for j := nameStart + 1; j < len(tokens) && j <= nameStart+2; j++ {
		w := trimPunct(tokens[j].text)
		if !isCapitalized(w) || honorifics[w] || orgSuffixes[w] || placeNames[w] {
			break
		}
		end = tokens[j].end
		last = j
	}
	if last == nameStart && start == tok.start && !honorifics[word] {
		// A lone given name with no surname is too weak a signal.
		return piiSpan{}, i, false
	}
	return piiSpan{start: start, end: end, label: LabelPerson}, last, true
}

// matchOrg matches capitalized token runs terminated by a company suffix.
func matchOrg(tokens []token, i int) (piiSpan, int, bool) {
	if !isCapitalized(tokens[i].text) {
		return piiSpan{}, i, false
	}
	for j := i; j < len(tokens) && j <= i+3; j++ {
		if !isCapitalized(tokens[j].text) {
			break
		}
		if orgSuffixes[trimPunct(tokens[j].text)] && j > i {
			return piiSpan{start: tokens[i].start, end: tokens[j].end, label: LabelOrg}, j, true
		}
	}
	return piiSpan{}, i, false
}
