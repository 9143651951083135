// Package generator is the client side of the document generation
// collaborator. The collaborator turns raw board data into a markdown
// document and a set of diagrams keyed by heading.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// Diagram is one generated diagram. Image holds raw PNG bytes; on the wire it
// travels base64 encoded.
type Diagram struct {
	Text  string `json:"diagram"`
	Image []byte `json:"image,omitempty"`
}

// Request describes one generation.
type Request struct {
	OwnerID      string          `json:"user_id"`
	ProjectID    string          `json:"project_id"`
	TemplateName string          `json:"template_name"`
	BoardName    string          `json:"board_name,omitempty"`
	BoardData    json.RawMessage `json:"board_data"`
}

// Result is a generated document with its diagrams.
type Result struct {
	Document string             `json:"generated_docs"`
	Diagrams map[string]Diagram `json:"generated_diagrams"`
}

// Generator produces documents. Implementations must be safe for concurrent
// use.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (*Result, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// HTTPGenerator posts requests to a generation service.
type HTTPGenerator struct {
	url        string
	httpClient *http.Client
}

// NewHTTPGenerator creates an HTTPGenerator. timeout bounds a whole
// generation, which can take minutes.
func NewHTTPGenerator(url string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPGenerator{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	const op = "generator.generate"

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Validation(op, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Generation(op, fmt.Errorf("calling generator: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperr.Generation(op, fmt.Errorf("reading response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Generation(op, fmt.Errorf("generator returned status %d: %s", resp.StatusCode, truncate(body)))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperr.Generation(op, fmt.Errorf("decoding response: %w", err))
	}
	if result.Document == "" {
		return nil, apperr.Generation(op, fmt.Errorf("generator returned an empty document"))
	}
	if result.Diagrams == nil {
		result.Diagrams = map[string]Diagram{}
	}
	return &result, nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
