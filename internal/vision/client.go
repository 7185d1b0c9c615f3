package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docingest/internal/common"
)

// Config for the captioning client. Works against any OpenAI-compatible
// chat/completions endpoint that accepts image_url content parts.
type Config struct {
	APIKey    string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL   string        // default https://api.openai.com/v1
	Model     string        // e.g. "gpt-4o-mini"
	MaxTokens int           // per-call completion cap
	Timeout   time.Duration // http client timeout
}

// Usage mirrors the endpoint's token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CaptionRequest carries the page raster plus whatever text we already have,
// which the model uses to anchor label names.
type CaptionRequest struct {
	Page     int
	JPEG     []byte
	PageText string
	Reason   string
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether captioning can run at all. A missing model or key
// disables the whole vision path rather than failing per page.
func (c *Client) Enabled() bool {
	return c.cfg.Model != "" && c.cfg.APIKey != ""
}

// CaptionDiagram sends one page image to the model and returns the validated
// structured caption plus token usage. The returned raw JSON is what goes
// into the assembled output verbatim.
func (c *Client) CaptionDiagram(ctx context.Context, req CaptionRequest) (Caption, []byte, Usage, error) {
	rid := uuid.New().String()
	start := time.Now()

	if !c.Enabled() {
		return Caption{}, nil, Usage{}, common.ErrVisionDisabled
	}
	if len(req.JPEG) == 0 {
		return Caption{}, nil, Usage{}, fmt.Errorf("caption page %d: %w: empty image", req.Page, common.ErrInvalidInput)
	}

	c.logger.Info("vision.caption.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"page", req.Page,
		"reason", req.Reason,
		"image_bytes", len(req.JPEG),
		"text_len", len(req.PageText),
	)

	schema := BuildCaptionJSONSchema()
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.JPEG)

	body := map[string]any{
		"model":           c.cfg.Model,
		"max_tokens":      c.cfg.MaxTokens,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildCaptionSystemPrompt()},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": buildCaptionUserPrompt(req.PageText)},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("vision.caption.http_error",
			"req_id", rid, "page", req.Page, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Caption{}, nil, Usage{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("vision.caption.decode_error",
			"req_id", rid, "page", req.Page, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Caption{}, nil, cc.Usage, fmt.Errorf("decode caption response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("vision.caption.no_choices",
			"req_id", rid, "page", req.Page,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Caption{}, nil, cc.Usage, fmt.Errorf("no choices in caption response")
	}

	content := stripCodeFence(strings.TrimSpace(cc.Choices[0].Message.Content))
	rawContent := []byte(content)

	if err := ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		c.logger.Error("vision.caption.schema_validation_failed",
			"req_id", rid, "page", req.Page, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Caption{}, rawContent, cc.Usage, fmt.Errorf("schema validation failed: %w", err)
	}

	var out Caption
	if err := json.Unmarshal(rawContent, &out); err != nil {
		return Caption{}, rawContent, cc.Usage, fmt.Errorf("unmarshal caption: %w", err)
	}

	c.logger.Info("vision.caption.ok",
		"req_id", rid,
		"page", req.Page,
		"labels", len(out.Labels),
		"relationships", len(out.Relationships),
		"total_tokens", cc.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, cc.Usage, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if cerr := Body.Close(); cerr != nil {
			c.logger.Warn("vision response body close error", "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func buildCaptionSystemPrompt() string {
	return "You describe diagrams, charts, and figures found in document pages. " +
		"Identify the visible labels and how the elements connect. " +
		"Respond with JSON only, matching the provided schema: " +
		"\"labels\" lists the visible element names and \"relationships\" lists directed edges between them. " +
		"Do not invent labels that are not visible in the image."
}

func buildCaptionUserPrompt(pageText string) string {
	var b strings.Builder
	b.WriteString("Describe the diagram or figure on this page.")
	if t := strings.TrimSpace(pageText); t != "" {
		if len(t) > 2000 {
			t = t[:2000]
		}
		b.WriteString("\n\nText already extracted from the page (may be partial):\n")
		b.WriteString(t)
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

// stripCodeFence unwraps ```json fenced blocks some models emit despite the
// JSON response format.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
