package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/nugget/activity-tracker/internal/httpkit"
	"github.com/nugget/activity-tracker/internal/trackererr"
)

// ocrBinary is the external OCR binary IsReady looks for on PATH when
// OCR evidence is enabled.
const ocrBinary = "tesseract"

// readyChecker is satisfied by *connwatch.Watcher. Defined here to avoid
// an import cycle between llm and connwatch.
type readyChecker interface {
	IsReady() bool
}

// Client talks to an Ollama-compatible chat API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	watcher    readyChecker
	includeOCR bool
}

// NewClient builds a Client. Large local vision models can take a long
// time to load before sending headers, so the transport's
// ResponseHeaderTimeout is widened well past httpkit's default.
func NewClient(baseURL, model string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 5 * time.Minute

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithTransport(t),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// SetWatcher attaches a connwatch.Watcher so IsReady reflects observed
// reachability instead of performing a fresh probe on every call.
func (c *Client) SetWatcher(w readyChecker) {
	c.watcher = w
}

// SetIncludeOCR controls whether IsReady/Probe also require an OCR
// binary on PATH. Callers should pass the same include_ocr setting used
// to gate OCR evidence gathering in the summarizer worker.
func (c *Client) SetIncludeOCR(includeOCR bool) {
	c.includeOCR = includeOCR
}

// ocrAvailable reports whether the OCR binary is on PATH. Always true
// when OCR evidence is not configured.
func (c *Client) ocrAvailable() bool {
	if !c.includeOCR {
		return true
	}
	_, err := exec.LookPath(ocrBinary)
	return err == nil
}

// chatRequest is the wire format for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ollamaWireResponse is the wire format for a non-streaming /api/chat reply.
type ollamaWireResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	TotalDuration int64 `json:"total_duration"`
	LoadDuration  int64 `json:"load_duration"`
	EvalDuration  int64 `json:"eval_duration"`
}

func (w ollamaWireResponse) toChatResponse() *ChatResponse {
	return &ChatResponse{
		Model:         w.Model,
		CreatedAt:     w.CreatedAt,
		Content:       w.Message.Content,
		Done:          w.Done,
		TotalDuration: time.Duration(w.TotalDuration),
		LoadDuration:  time.Duration(w.LoadDuration),
		EvalDuration:  time.Duration(w.EvalDuration),
	}
}

// Chat sends a single non-streaming request and returns the model's reply.
// Failures are mapped into the trackererr taxonomy: a context deadline
// becomes LLMTimeout, a transport or non-200 failure becomes
// LLMUnavailable, and an undecodable body becomes LLMMalformed.
func (c *Client) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	reqBody := chatRequest{Model: c.model, Messages: messages, Stream: false}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, trackererr.Wrap(trackererr.LLMTimeout, "chat request", err)
		}
		return nil, trackererr.Wrap(trackererr.LLMUnavailable, "chat request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("chat API error", "status", resp.StatusCode, "body", body)
		return nil, trackererr.Wrap(trackererr.LLMUnavailable, fmt.Sprintf("chat API status %d", resp.StatusCode), fmt.Errorf("%s", body))
	}

	var wire ollamaWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, trackererr.Wrap(trackererr.LLMMalformed, "decode chat response", err)
	}

	chatResp := wire.toChatResponse()
	c.logger.Debug("chat response received",
		"model", chatResp.Model,
		"total_duration", chatResp.TotalDuration,
		"content_len", len(chatResp.Content),
	)
	return chatResp, nil
}

// tagsResponse is the wire format for GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// modelAvailable reports whether /api/tags lists a model whose name
// begins with the configured model's base name (the part before ":",
// e.g. "llava" matches "llava:13b").
func (c *Client) modelAvailable(ctx context.Context) (bool, error) {
	base := c.model
	if i := strings.Index(base, ":"); i >= 0 {
		base = base[:i]
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("build tags request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, trackererr.Wrap(trackererr.LLMUnavailable, "tags request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return false, trackererr.Wrap(trackererr.LLMUnavailable, fmt.Sprintf("tags API status %d", resp.StatusCode), fmt.Errorf("%s", body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, trackererr.Wrap(trackererr.LLMMalformed, "decode tags response", err)
	}

	for _, m := range tags.Models {
		name := m.Name
		if i := strings.Index(name, ":"); i >= 0 {
			name = name[:i]
		}
		if name == base {
			return true, nil
		}
	}
	return false, nil
}

// IsReady reports whether the configured model is currently reachable
// and serving, and, when include_ocr is configured, whether the OCR
// binary is present on PATH. When a watcher is attached, its cached
// reachability is trusted instead of issuing a fresh model probe, but
// the OCR check still runs fresh every call.
func (c *Client) IsReady(ctx context.Context) bool {
	if !c.ocrAvailable() {
		return false
	}
	if c.watcher != nil {
		return c.watcher.IsReady()
	}
	ok, err := c.modelAvailable(ctx)
	return err == nil && ok
}

// Probe is a connwatch.ProbeFunc: nil error means the configured model
// is present in the host's tag listing and, when include_ocr is
// configured, the OCR binary is present on PATH.
func (c *Client) Probe(ctx context.Context) error {
	if !c.ocrAvailable() {
		return trackererr.Wrap(trackererr.LLMUnavailable, "ocr check", fmt.Errorf("%s not found on PATH", ocrBinary))
	}
	ok, err := c.modelAvailable(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return trackererr.Wrap(trackererr.LLMUnavailable, "model not listed", fmt.Errorf("%s not found in /api/tags", c.model))
	}
	return nil
}
