package openai

import (
	"net/http"
	"net/url"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	jsonMode    bool
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithJSONMode asks the server to constrain chat replies to a JSON object.
// Not every OpenAI compatible endpoint supports it.
func WithJSONMode(enabled bool) Option {
	return func(c *Client) { c.jsonMode = enabled }
}

func NewClient(baseUrl, apiKey, proxyAddr string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseUrl != "" {
		cfg.BaseURL = baseUrl
	}

	transport := &http.Transport{}
	if proxyAddr != "" {
		if proxyURL, err := url.Parse(proxyAddr); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	// Request deadlines come from the caller's context; the client timeout
	// only guards against a hung connection.
	cfg.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Minute,
	}

	c := &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.GPT4TurboPreview,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
