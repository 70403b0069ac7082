// Package redaction provides the two interchangeable redaction engines and
// the gateway that dispatches between them. Both engines consume a document
// and a severity level and produce a redacted copy plus the extracted
// sensitive items with their locations; callers cannot tell which engine ran
// from the shape of the result.
package redaction

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kenneth/redaction-gateway/internal/document"
)

// Mode selects a redaction engine.
type Mode string

const (
	// ModeVision uses the remote vision inference backend.
	ModeVision Mode = "vision"
	// ModeRule uses the local rule engine (regex + entity matcher).
	ModeRule Mode = "rule"
)

// Item is one extracted sensitive value: its plaintext and the merged
// bounding box of the words it covered. The box is page geometry, not
// sensitive, and travels unencrypted.
type Item struct {
	Text string
	BBox document.BBox
}

// Result is the outcome of a successful engine run. Pages maps page numbers
// (as decimal strings, the wire shape) to the items found on that page; it is
// empty when the engine extracted nothing, in which case Redacted is an
// unmodified copy of the input.
type Result struct {
	Redacted *document.Document
	Pages    map[string][]Item
}

// Engine is the capability both redaction backends implement.
type Engine interface {
	// Redact scans the document at the given severity and returns the
	// redacted artifact plus the extracted items. It either produces a
	// complete artifact or fails; there is no partial redaction.
	Redact(ctx context.Context, doc *document.Document, severity int) (*Result, error)

	// Mode identifies the engine variant.
	Mode() Mode
}

// EngineError wraps any backend failure: model or service unavailable,
// malformed document, internal parsing failure.
type EngineError struct {
	EngineMode Mode
	Cause      error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s engine failed: %v", e.EngineMode, e.Cause)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// engineErrorf builds an EngineError from a formatted cause.
func engineErrorf(mode Mode, format string, args ...any) *EngineError {
	return &EngineError{EngineMode: mode, Cause: fmt.Errorf(format, args...)}
}

// Gateway dispatches redaction requests to the engine selected by mode.
type Gateway struct {
	engines map[Mode]Engine
}

// NewGateway builds a gateway over the given engines.
func NewGateway(engines ...Engine) *Gateway {
	g := &Gateway{engines: make(map[Mode]Engine, len(engines))}
	for _, e := range engines {
		g.engines[e.Mode()] = e
	}
	return g
}

// Redact runs the selected engine.
func (g *Gateway) Redact(ctx context.Context, mode Mode, doc *document.Document, severity int) (*Result, error) {
	engine, ok := g.engines[mode]
	if !ok {
		return nil, fmt.Errorf("unknown engine mode: %q", mode)
	}
	return engine.Redact(ctx, doc, severity)
}

// Modes lists the registered engine modes.
func (g *Gateway) Modes() []Mode {
	modes := make([]Mode, 0, len(g.engines))
	for m := range g.engines {
		modes = append(modes, m)
	}
	return modes
}

// pageKey is the wire key for a page number.
func pageKey(number int) string {
	return strconv.Itoa(number)
}

// wordSpan records where a word's text sits in its page's joined text.
type wordSpan struct {
	start int
	end   int
	index int
}

// indexWords computes the character span of every word in the page's joined
// text (words separated by single spaces).
func indexWords(page *document.Page) []wordSpan {
	spans := make([]wordSpan, len(page.Words))
	offset := 0
	for i, w := range page.Words {
		start := offset
		end := start + len(w.Text)
		spans[i] = wordSpan{start: start, end: end, index: i}
		offset = end + 1
	}
	return spans
}

// collectSpan gathers the words of page overlapping the character range
// [start, end) and returns their joined plaintext and merged bounding box.
func collectSpan(page *document.Page, spans []wordSpan, start, end int) (string, document.BBox, bool) {
	var text string
	var box document.BBox
	found := false
	for _, ws := range spans {
		if max(start, ws.start) >= min(end, ws.end) {
			continue
		}
		word := page.Words[ws.index]
		if !found {
			text = word.Text
			box = word.BBox
			found = true
		} else {
			text += " " + word.Text
			box = box.Union(word.BBox)
		}
	}
	return text, box, found
}
