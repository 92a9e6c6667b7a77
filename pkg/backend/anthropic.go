package backend

import (
	"context"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultModel is the Claude model used for node extraction.
const DefaultModel = "claude-haiku-4-5-20251001"

// defaultMaxTokens bounds a single node's extraction output.
const defaultMaxTokens = 2048

// Option configures the Claude client.
type Option func(*claudeClient)

// WithModel overrides the extraction model.
func WithModel(model string) Option {
	return func(c *claudeClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit caps backend requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *claudeClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMaxTokens bounds a single node's extraction output.
func WithMaxTokens(n int) Option {
	return func(c *claudeClient) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// WithTimeout bounds each Extract call. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *claudeClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// claudeClient implements Client using the official anthropic-sdk-go.
type claudeClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewClient creates a Claude-backed extraction client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &claudeClient{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: defaultMaxTokens,
		timeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *claudeClient) Extract(ctx context.Context, req NodeRequest) (*NodeResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "backend: rate limit wait")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(callCtx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildUserPrompt(req))),
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "backend: extract node %s", req.NodeID)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	resp, err := decodeNodeResponse(req.NodeID, text)
	if err != nil {
		return nil, err
	}
	resp.Usage = TokenUsage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	zap.L().Debug("backend: node extracted",
		zap.String("node_id", req.NodeID),
		zap.Int("actions", len(resp.Actions)),
		zap.Int("tables", len(resp.Tables)),
	)
	return resp, nil
}
