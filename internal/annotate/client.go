package annotate

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"myperf/internal/config"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// completionModel is sent in the request body; Azure routes by deployment.
const completionModel = openai.GPT3Dot5TurboInstruct

// Client calls an Azure OpenAI completions deployment.
type Client struct {
	cfg config.AnnotationConfig
	api *openai.Client
}

// NewClient builds a client. A nil httpClient uses the SDK default;
// per-call deadlines come from cfg.TimeoutSeconds.
func NewClient(cfg config.AnnotationConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("annotation endpoint is not configured")
	}
	deployment := strings.TrimSpace(cfg.Deployment)
	if deployment == "" {
		return nil, errors.New("annotation deployment is not configured")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, errors.Wrap(err, "parse annotation endpoint")
	}
	apiCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		apiCfg.APIVersion = cfg.APIVersion
	}
	apiCfg.AzureModelMapperFunc = func(string) string { return deployment }
	if httpClient != nil {
		apiCfg.HTTPClient = httpClient
	}
	return &Client{cfg: cfg, api: openai.NewClientWithConfig(apiCfg)}, nil
}

// SummarizeOutput implements Gateway.
func (c *Client) SummarizeOutput(ctx context.Context, text string) (string, error) {
	out, err := c.complete(ctx, SummaryPrompt(text), c.cfg.Summary)
	if err != nil {
		return "", &AnnotationError{Op: OpSummarize, Cause: err}
	}
	return out, nil
}

// ExplainQuery implements Gateway.
func (c *Client) ExplainQuery(ctx context.Context, sqlText string) (string, error) {
	out, err := c.complete(ctx, ExplainPrompt(sqlText), c.cfg.Explain)
	if err != nil {
		return "", &AnnotationError{Op: OpExplain, Cause: err}
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string, s config.Sampling) (string, error) {
	if timeout := c.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := c.api.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       completionModel,
		Prompt:      prompt,
		Temperature: float32(s.Temperature),
		MaxTokens:   s.MaxTokens,
		TopP:        float32(s.TopP),
	})
	if err != nil {
		return "", errors.Wrap(err, "create completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}
