package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/rescuelabs/protocold/pkg/models"
)

// GatewayConfig holds settings for the LLM gateway client.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	// Models maps tiers to model identifiers. Free routes to the
	// fast/cheap model, paid tiers to the higher-fidelity ones.
	Models  map[models.Tier]string
	Timeout time.Duration
}

// GatewayClient calls an LLM gateway over HTTP, selecting the model by
// subscription tier. Upstream timeout and retry policy live behind the
// gateway; from here any failed call is a plain error.
type GatewayClient struct {
	cfg    GatewayConfig
	client *http.Client
	codec  tokenizer.Codec
}

// NewGatewayClient creates a gateway client.
func NewGatewayClient(cfg GatewayConfig) (*GatewayClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	// Used only when the gateway omits usage counts in its response.
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &GatewayClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		codec:  codec,
	}, nil
}

// ModelFor returns the model identifier routed for a tier.
func (c *GatewayClient) ModelFor(tier models.Tier) string {
	if m, ok := c.cfg.Models[tier]; ok && m != "" {
		return m
	}
	return c.cfg.Models[models.TierFree]
}

type gatewayRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

type gatewayResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Error        string `json:"error,omitempty"`
}

// Generate posts the assembled prompt to the gateway and returns the
// answer with token accounting.
func (c *GatewayClient) Generate(ctx context.Context, req Request) (*Result, error) {
	model := c.ModelFor(req.Tier)
	prompt := buildPrompt(req)

	body, err := json.Marshal(gatewayRequest{
		Model:  model,
		System: systemPrompt(req.AgencyName),
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var gw gatewayResponse
	if err := json.Unmarshal(respBody, &gw); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if gw.Error != "" {
		return nil, fmt.Errorf("gateway error: %s", gw.Error)
	}

	result := &Result{
		Content:      gw.Content,
		Model:        gw.Model,
		InputTokens:  gw.InputTokens,
		OutputTokens: gw.OutputTokens,
	}
	if result.Model == "" {
		result.Model = model
	}
	if result.InputTokens == 0 {
		result.InputTokens = c.countTokens(prompt)
	}
	if result.OutputTokens == 0 {
		result.OutputTokens = c.countTokens(gw.Content)
	}

	log.Debug().
		Str("model", result.Model).
		Int64("inputTokens", result.InputTokens).
		Int64("outputTokens", result.OutputTokens).
		Msg("Generation complete")

	return result, nil
}

// countTokens estimates a token count for text the gateway did not
// account for.
func (c *GatewayClient) countTokens(text string) int64 {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return int64(len(ids))
}

// systemPrompt frames the answer for field use.
func systemPrompt(agencyName string) string {
	base := "You are an EMS protocol reference assistant. Answer strictly from the provided protocol excerpts. Cite protocol numbers. If the excerpts do not cover the question, say so."
	if agencyName != "" {
		return base + " Jurisdiction: " + agencyName + "."
	}
	return base
}

// buildPrompt assembles the user prompt from the query and the retrieved
// passages in their retrieval-ranked order.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(req.Query)
	b.WriteString("\n\nProtocol excerpts:\n")
	for i, p := range req.Passages {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, p.Ref())
		if p.Section != "" {
			fmt.Fprintf(&b, " (%s)", p.Section)
		}
		b.WriteString("\n")
		b.WriteString(p.Content)
		b.WriteString("\n")
	}
	return b.String()
}
