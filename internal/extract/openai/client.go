package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/internal/extract"
)

// The client calls chat/completions (vision) directly over HTTP and
// validates every response against the schema before handing it on. Each
// operation makes at most two attempts: one retry on a transient failure,
// terminal error otherwise.

var _ extract.Extractor = (*Client)(nil)

const pagePrompt = `You are a financial statement extraction engine.
You are given ONE page of an annual report as an image.
Extract every line item of the statement into JSON:
- "page_title": best-effort heading of the page.
- "rows": object keyed by the item label EXACTLY as printed; each value is an
  object mapping a 4-digit year to the printed amount, plus "nota" when a
  note reference is printed for the row.
- "confidence_score": your overall confidence, 0..1.
Rules: use the exact text as printed; do not translate labels; do not add
wrapper keys; return ONLY JSON matching the provided schema.`

const metadataPrompt = `You are given the FIRST PAGE of an annual report as an image.
Extract:
1) company_name: the primary company/publisher name on the page.
2) publication_year: the 4-digit report year (e.g. from "Arsfrasogn 2024").
3) publication_date: the publication date printed on the page, as YYYYMMDD.
Return ONLY valid JSON with exactly these keys:
{ "company_name": string|null, "publication_year": string|null, "publication_date": string|null }
Use the exact text as printed; use null when uncertain; no extra keys.`

// ExtractPage implements extract.Extractor.
func (c *Client) ExtractPage(ctx context.Context, req extract.PageRequest) (extract.PageExtraction, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.page.start",
		"req_id", rid, "model", c.cfg.Model,
		"page_index", req.PageIndex, "image", filepath.Base(req.ImagePath))

	dataURL, err := imageDataURL(req.ImagePath)
	if err != nil {
		return extract.PageExtraction{}, nil, fmt.Errorf("read page image: %w", err)
	}

	schema := extract.BuildPageJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": pagePrompt + "\n\nJSON Schema:\n" + mustJSON(schema)},
			{"role": "user", "content": []map[string]any{
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
	}

	content, err := c.chatWithRetry(ctx, rid, body)
	if err != nil {
		c.log.Error("llm.page.failed", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return extract.PageExtraction{}, nil, err
	}

	if err := extract.ValidateJSONAgainstSchema(schema, content); err != nil {
		c.log.Error("llm.page.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds())
		return extract.PageExtraction{}, content, fmt.Errorf("schema validation failed: %w", err)
	}

	var out extract.PageExtraction
	if err := json.Unmarshal(content, &out); err != nil {
		return extract.PageExtraction{}, content, fmt.Errorf("unmarshal page extraction: %w", err)
	}
	if out.Rows == nil {
		out.Rows = extract.PageRows{}
	}

	c.log.Info("llm.page.ok",
		"req_id", rid, "page_index", req.PageIndex,
		"rows", len(out.Rows), "confidence", out.ConfidenceScore,
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, content, nil
}

// ExtractMetadata implements extract.Extractor.
func (c *Client) ExtractMetadata(ctx context.Context, imagePath string) (extract.DocumentMetadata, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.metadata.start", "req_id", rid, "model", c.cfg.Model, "image", filepath.Base(imagePath))

	dataURL, err := imageDataURL(imagePath)
	if err != nil {
		return extract.DocumentMetadata{}, nil, fmt.Errorf("read page image: %w", err)
	}

	schema := extract.BuildMetadataJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": metadataPrompt},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
	}

	content, err := c.chatWithRetry(ctx, rid, body)
	if err != nil {
		c.log.Error("llm.metadata.failed", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return extract.DocumentMetadata{}, nil, err
	}

	if err := extract.ValidateJSONAgainstSchema(schema, content); err != nil {
		c.log.Error("llm.metadata.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content))
		return extract.DocumentMetadata{}, content, fmt.Errorf("schema validation failed: %w", err)
	}

	var out extract.DocumentMetadata
	if err := json.Unmarshal(content, &out); err != nil {
		return extract.DocumentMetadata{}, content, fmt.Errorf("unmarshal metadata: %w", err)
	}

	c.log.Info("llm.metadata.ok", "req_id", rid,
		"company_name", out.CompanyName, "publication_year", out.PublicationYear,
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, content, nil
}

// ChooseHeader implements the taxonomy matcher's LLM fallback: pick the
// taxonomy header that best matches label, or report no match with "".
func (c *Client) ChooseHeader(ctx context.Context, label string, candidates []string) (string, error) {
	rid := uuid.New().String()
	c.log.Info("llm.match.start", "req_id", rid, "label", label, "candidates", len(candidates))

	prompt := "You map financial statement line items onto a canonical taxonomy.\n" +
		"Item label: " + label + "\n" +
		"Candidate taxonomy headers:\n- " + strings.Join(candidates, "\n- ") + "\n\n" +
		`Pick the single candidate that means the same thing as the item label.
Return ONLY valid JSON: { "matched_header": string|null }
Use null when no candidate is a sound semantic match. No extra keys.`

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}

	content, err := c.chatWithRetry(ctx, rid, body)
	if err != nil {
		c.log.Error("llm.match.failed", "req_id", rid, "error", err)
		return "", err
	}

	var out struct {
		MatchedHeader *string `json:"matched_header"`
	}
	if err := json.Unmarshal(content, &out); err != nil {
		return "", fmt.Errorf("unmarshal match choice: %w", err)
	}
	if out.MatchedHeader == nil {
		c.log.Info("llm.match.none", "req_id", rid, "label", label)
		return "", nil
	}
	c.log.Info("llm.match.ok", "req_id", rid, "label", label, "header", *out.MatchedHeader)
	return strings.TrimSpace(*out.MatchedHeader), nil
}

// chatWithRetry posts a chat/completions body and retries exactly once on a
// transient failure (timeout, 429, 5xx).
func (c *Client) chatWithRetry(ctx context.Context, rid string, body map[string]any) ([]byte, error) {
	content, err := c.chat(ctx, body)
	if err != nil && isTransient(err) {
		c.log.Warn("llm.transient_retry", "req_id", rid, "error", err)
		content, err = c.chat(ctx, body)
	}
	return content, err
}

func (c *Client) chat(ctx context.Context, body map[string]any) ([]byte, error) {
	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}
	return []byte(strings.TrimSpace(cc.Choices[0].Message.Content)), nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &httpError{Status: resp.StatusCode, Body: snippet}
	}
	return raw, nil
}

type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.Status, e.Body)
}

func isTransient(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.Status == http.StatusTooManyRequests || he.Status >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func imageDataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
