// Package document implements the layout-preserving artifact format the
// gateway redacts and restores. A document is a sequence of pages, each a
// sequence of words carrying their page-coordinate bounding boxes, so text
// can be blacked out and later written back at the exact same location.
package document

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// RedactionRune is what covered words are replaced with, one rune per rune of
// the original so the visual footprint is preserved.
const RedactionRune = '█'

// BBox is an axis-aligned box in page coordinates: [x0, y0, x1, y1].
type BBox [4]float64

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		min(b[0], o[0]),
		min(b[1], o[1]),
		max(b[2], o[2]),
		max(b[3], o[3]),
	}
}

// Overlaps reports whether b and o share any area.
func (b BBox) Overlaps(o BBox) bool {
	return max(b[0], o[0]) < min(b[2], o[2]) && max(b[1], o[1]) < min(b[3], o[3])
}

// Word is a single token with its location on the page.
type Word struct {
	Text string `json:"text"`
	BBox BBox   `json:"bbox"`
}

// Page holds the ordered words of one page.
type Page struct {
	Number int    `json:"number"`
	Words  []Word `json:"words"`
}

// Text returns the page content as a single space-joined string, the form
// the redaction engines scan.
func (p *Page) Text() string {
	parts := make([]string, len(p.Words))
	for i, w := range p.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// Document is the artifact the gateway operates on.
type Document struct {
	Pages []Page `json:"pages"`
}

// Decode reads a document from r.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// Encode writes the document to w.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return nil
}

// Load reads a document from a file.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Save writes the document to a file.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create document file: %w", err)
	}
	if err := d.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{Pages: make([]Page, len(d.Pages))}
	for i, p := range d.Pages {
		words := make([]Word, len(p.Words))
		copy(words, p.Words)
		out.Pages[i] = Page{Number: p.Number, Words: words}
	}
	return out
}

// Redact returns a copy of the document with every word covered by a box in
// boxes (keyed by page number) replaced with redaction runes of the same
// length. Word geometry is untouched so the document can be restored later.
func (d *Document) Redact(boxes map[int][]BBox) *Document {
	out := d.Clone()
	for i := range out.Pages {
		page := &out.Pages[i]
		pageBoxes := boxes[page.Number]
		if len(pageBoxes) == 0 {
			continue
		}
		for j, word := range page.Words {
			for _, box := range pageBoxes {
				if word.BBox.Overlaps(box) {
					page.Words[j].Text = strings.Repeat(string(RedactionRune), utf8.RuneCountInString(word.Text))
					break
				}
			}
		}
	}
	return out
}

// WriteAt writes text back over the words covered by box on the given page.
// The text is split on spaces; when it has one field per covered word each
// word gets its original token back, otherwise the whole text lands on the
// first covered word. Returns an error when no word on the page is covered,
// which indicates the supplied artifact's geometry does not match.
func (d *Document) WriteAt(pageNumber int, box BBox, text string) error {
	page := d.pageByNumber(pageNumber)
	if page == nil {
		return fmt.Errorf("page %d not present in document", pageNumber)
	}

	var covered []int
	for i, word := range page.Words {
		if word.BBox.Overlaps(box) {
			covered = append(covered, i)
		}
	}
	if len(covered) == 0 {
		return fmt.Errorf("no words under bbox %v on page %d", box, pageNumber)
	}

	fields := strings.Fields(text)
	if len(fields) == len(covered) {
		for i, idx := range covered {
			page.Words[idx].Text = fields[i]
		}
		return nil
	}

	page.Words[covered[0]].Text = text
	for _, idx := range covered[1:] {
		page.Words[idx].Text = ""
	}
	return nil
}

func (d *Document) pageByNumber(number int) *Page {
	for i := range d.Pages {
		if d.Pages[i].Number == number {
			return &d.Pages[i]
		}
	}
	return nil
}

// Synthesize builds a document from plain text pages, one word per token,
// with deterministic geometry: 10 units of width per rune, 14 per line.
// Lines are split on newlines, words on spaces.
func Synthesize(pages ...string) *Document {
	doc := &Document{Pages: make([]Page, len(pages))}
	for p, content := range pages {
		page := Page{Number: p}
		for lineNo, line := range strings.Split(content, "\n") {
			x := 0.0
			y0 := float64(lineNo) * 14.0
			for _, token := range strings.Fields(line) {
				width := float64(utf8.RuneCountInString(token)) * 10.0
				page.Words = append(page.Words, Word{
					Text: token,
					BBox: BBox{x, y0, x + width, y0 + 12.0},
				})
				x += width + 10.0
			}
		}
		doc.Pages[p] = page
	}
	return doc
}
