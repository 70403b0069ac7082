package redaction

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kenneth/redaction-gateway/internal/config"
	"github.com/kenneth/redaction-gateway/internal/document"
)

// VisionEngine sends each page to a remote vision inference backend and maps
// the returned PII snippets back onto the page's word geometry. It is the
// slower, higher-accuracy variant and requires network access.
type VisionEngine struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewVisionEngine constructs the vision engine. The HTTP client timeout is a
// per-page safety net; the orchestrator additionally bounds the whole
// invocation through the request context.
func NewVisionEngine(cfg *config.VisionConfig, timeout time.Duration) *VisionEngine {
	return &VisionEngine{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Mode identifies the engine variant.
func (e *VisionEngine) Mode() Mode {
	return ModeVision
}

// inferenceRequest is one page analysis request to the backend.
type inferenceRequest struct {
	Page     int      `json:"page"`
	Text     string   `json:"text"`
	Labels   []string `json:"labels"`
	Severity int      `json:"severity"`
}

// inferenceHit is one PII snippet identified by the backend.
type inferenceHit struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Redact analyzes every page through the inference backend and blacks out
// each identified snippet at the location where its words appear.
func (e *VisionEngine) Redact(ctx context.Context, doc *document.Document, severity int) (*Result, error) {
	if e.endpoint == "" {
		return nil, engineErrorf(ModeVision, "no inference endpoint configured")
	}
	if doc == nil || len(doc.Pages) == 0 {
		return nil, engineErrorf(ModeVision, "document has no pages")
	}

	wanted := LabelsForSeverity(severity)
	result := &Result{Pages: make(map[string][]Item)}
	boxes := make(map[int][]document.BBox)

	for i := range doc.Pages {
		page := &doc.Pages[i]

		hits, err := e.analyzePage(ctx, page, wanted, severity)
		if err != nil {
			return nil, err
		}

		for _, hit := range hits {
			if hit.Text == "" {
				continue
			}
			box, plaintext, ok := locateSnippet(page, hit.Text)
			if !ok {
				// The model hallucinated text that is not on the page.
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

// analyzePage posts one page to the inference backend.
func (e *VisionEngine) analyzePage(ctx context.Context, page *document.Page, labels []string, severity int) ([]inferenceHit, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(inferenceRequest{
		Page:     page.Number,
		Text:     page.Text(),
		Labels:   labels,
		Severity: severity,
	})
	if err != nil {
		return nil, engineErrorf(ModeVision, "failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, engineErrorf(ModeVision, "failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, engineErrorf(ModeVision, "inference call failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, engineErrorf(ModeVision, "inference backend returned %d: %s", resp.StatusCode, snippet)
	}

	var hits []inferenceHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, engineErrorf(ModeVision, "failed to decode inference response: %v", err)
	}
	return hits, nil
}

// locateSnippet finds the first run of page words matching the snippet's
// tokens and returns their merged box and exact page text. The backend only
// returns text, never coordinates, so location is recovered here (word-window
// match over the page).
func locateSnippet(page *document.Page, snippet string) (document.BBox, string, bool) {
	target := strings.Fields(snippet)
	if len(target) == 0 {
		return document.BBox{}, "", false
	}

	for i := 0; i+len(target) <= len(page.Words); i++ {
		matched := true
		for j, want := range target {
			if page.Words[i+j].Text != want {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		box := page.Words[i].BBox
		parts := make([]string, len(target))
		for j := 0; j < len(target); j++ {
			box = box.Union(page.Words[i+j].BBox)
			parts[j] = page.Words[i+j].Text
		}
		return box, strings.Join(parts, " "), true
	}
	return document.BBox{}, "", false
}
