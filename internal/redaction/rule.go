package redaction

import (
	"context"
	"regexp"
	"sort"

	"github.com/kenneth/redaction-gateway/internal/document"
)

// regexPatterns are the high-confidence PII patterns. TRANSACTION_ID and
// INVOICE_NUMBER capture only the value, not the field label preceding it.
var regexPatterns = map[string]*regexp.Regexp{
	LabelEmail:         regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`),
	LabelPhone:         regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	LabelPNR:           regexp.MustCompile(`\b\d{10}\b`),
	LabelTransactionID: regexp.MustCompile(`Transaction ID:\s*(\d+)`),
	LabelInvoiceNumber: regexp.MustCompile(`Invoice Number:\s*([A-Z0-9]+)`),
	LabelSSN:           regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	LabelCreditCard:    regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
}

// piiSpan is a located PII hit in a page's joined text.
type piiSpan struct {
	start int
	end   int
	label string
}

// RuleEngine finds PII locally using regular expressions plus an offline
// entity matcher. It runs entirely in-process and never leaves the host.
type RuleEngine struct{}

// NewRuleEngine constructs the rule engine.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

// Mode identifies the engine variant.
func (e *RuleEngine) Mode() Mode {
	return ModeRule
}

// Redact scans every page's text for the labels active at the given severity
// and blacks out the covered words.
func (e *RuleEngine) Redact(ctx context.Context, doc *document.Document, severity int) (*Result, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return nil, engineErrorf(ModeRule, "document has no pages")
	}
	if err := ctx.Err(); err != nil {
		return nil, engineErrorf(ModeRule, "canceled: %v", err)
	}

	wanted := LabelsForSeverity(severity)
	result := &Result{Pages: make(map[string][]Item)}
	boxes := make(map[int][]document.BBox)

	for i := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, engineErrorf(ModeRule, "canceled: %v", err)
		}
		page := &doc.Pages[i]
		text := page.Text()

		hits := findPII(text, wanted)
		if len(hits) == 0 {
			continue
		}

		spans := indexWords(page)
		for _, hit := range hits {
			plaintext, box, ok := collectSpan(page, spans, hit.start, hit.end)
			if !ok {
				continue
			}
			key := pageKey(page.Number)
			result.Pages[key] = append(result.Pages[key], Item{Text: plaintext, BBox: box})
			boxes[page.Number] = append(boxes[page.Number], box)
		}
	}

	if len(result.Pages) == 0 {
		return &Result{Redacted: doc.Clone()}, nil
	}
	result.Redacted = doc.Redact(boxes)
	return result, nil
}

// findPII locates the wanted label families in text.
func findPII(text string, wanted []string) []piiSpan {
	if len(wanted) == 0 {
		return nil
	}
	wantedSet := labelSet(wanted)

	var found []piiSpan

	// Pattern-based search first.
	for label, pattern := range regexPatterns {
		if !wantedSet[label] {
			continue
		}
		for _, match := range pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := match[0], match[1]
			if len(match) >= 4 && match[2] >= 0 {
				// Use the capture group when the pattern has one.
				start, end = match[2], match[3]
			}
			found = append(found, piiSpan{start: start, end: end, label: label})
		}
	}

	// Entity-based search for the label families the patterns don't cover.
	var entityLabels []string
	for _, label := range wanted {
		if _, isPattern := regexPatterns[label]; !isPattern {
			entityLabels = append(entityLabels, label)
		}
	}
	if len(entityLabels) > 0 {
		found = append(found, findEntities(text, entityLabels)...)
	}

	// Page order, not pattern order.
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	return found
}
