package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// Image models supported on Azure.
const (
	DallE2 = "dall-e-2"
	DallE3 = "dall-e-3"
)

const (
	azureDallE2APIVersion = "2023-06-01-preview"
	azureDallE3APIVersion = "2024-02-15-preview"
	azureMaxPolls         = 4
)

// AzureConfig configures an Azure OpenAI backend.
type AzureConfig struct {
	APIKey       string
	BaseURL      string // resource endpoint, e.g. https://name.openai.azure.com/
	APIVersion   string
	DeploymentID string
	Model        string
	Proxy        string
	Timeout      time.Duration

	// Image generation
	TextToImage       string // dall-e-2 or dall-e-3; empty disables images
	DalleAPIBase      string // defaults to BaseURL
	DalleAPIKey       string // defaults to APIKey
	DalleDeploymentID string // dall-e-3 deployment; defaults to "text_to_image"
	DalleAPIVersion   string // dall-e-3 only; defaults to 2024-02-15-preview
	ImageSize         string
	ImageQuality      string
	PollInterval      time.Duration // dall-e-2 job polling; 0 = no wait between polls
}

// AzureClient is an OpenAIClient talking to an Azure deployment, with the
// Azure image generation endpoints.
type AzureClient struct {
	*OpenAIClient
	cfg        AzureConfig
	httpClient *http.Client
}

// NewAzureClient creates a new Azure OpenAI client.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("azure endpoint (open_ai_api_base) not set")
	}
	httpClient, err := newHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	newConfig := func(apiKey string) openai.ClientConfig {
		config := openai.DefaultAzureConfig(apiKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			config.APIVersion = cfg.APIVersion
		}
		if cfg.DeploymentID != "" {
			config.AzureModelMapperFunc = func(string) string { return cfg.DeploymentID }
		}
		if httpClient != nil {
			config.HTTPClient = httpClient
		}
		return config
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return &AzureClient{
		OpenAIClient: newOpenAIClient("azure", cfg.APIKey, cfg.Model, cfg.Timeout, newConfig),
		cfg:          cfg,
		httpClient:   httpClient,
	}, nil
}

// CreateImage implements ImageCreator against the Azure image endpoints.
// Every failure is an *ImageError.
func (c *AzureClient) CreateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.TextToImage
	}
	switch model {
	case DallE2:
		return c.createDallE2(ctx, prompt, opts)
	case DallE3:
		return c.createDallE3(ctx, prompt, opts)
	default:
		return "", &ImageError{Message: "图片生成失败，未配置text_to_image参数"}
	}
}

func (c *AzureClient) dalleEndpoint() string {
	endpoint := c.cfg.DalleAPIBase
	if endpoint == "" {
		endpoint = c.cfg.BaseURL
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return endpoint
}

func (c *AzureClient) dalleHeaders(apiKey string) map[string]string {
	key := apiKey
	if key == "" {
		key = c.cfg.DalleAPIKey
	}
	if key == "" {
		key = c.cfg.APIKey
	}
	return map[string]string{"api-key": key}
}

type azureImageData struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type azureError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// createDallE2 submits an asynchronous generation job and polls it.
func (c *AzureClient) createDallE2(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	size := firstNonEmpty(opts.Size, c.cfg.ImageSize, "256x256")
	url := fmt.Sprintf("%sopenai/images/generations:submit?api-version=%s", c.dalleEndpoint(), azureDallE2APIVersion)
	headers := c.dalleHeaders(opts.APIKey)

	resp, err := doJSON(ctx, c.httpClient, "azure", http.MethodPost, url, headers, map[string]any{
		"prompt": prompt,
		"size":   size,
		"n":      1,
	})
	if err != nil {
		return "", imageFailed(err)
	}
	if !resp.ok() {
		return "", imageFailed(statusError("azure", resp))
	}
	location := resp.Header.Get("operation-location")
	if location == "" {
		return "", imageFailed(errors.New("missing operation-location header"))
	}

	for poll := 0; poll < azureMaxPolls; poll++ {
		if poll > 0 && c.cfg.PollInterval > 0 {
			select {
			case <-ctx.Done():
				return "", imageFailed(ctx.Err())
			case <-time.After(c.cfg.PollInterval):
			}
		}

		resp, err := doJSON(ctx, c.httpClient, "azure", http.MethodGet, location, headers, nil)
		if err != nil {
			return "", imageFailed(err)
		}
		var job struct {
			Status string         `json:"status"`
			Result azureImageData `json:"result"`
		}
		if err := resp.decode("azure", &job); err != nil {
			return "", imageFailed(err)
		}

		switch job.Status {
		case "succeeded":
			if len(job.Result.Data) == 0 || job.Result.Data[0].URL == "" {
				return "", imageFailed(errors.New("job succeeded without an image url"))
			}
			return job.Result.Data[0].URL, nil
		case "failed", "canceled", "deleted":
			return "", imageFailed(fmt.Errorf("job ended with status %s", job.Status))
		}
	}

	return "", imageFailed(fmt.Errorf("job not finished after %d polls", azureMaxPolls))
}

// createDallE3 calls a dall-e-3 deployment synchronously.
func (c *AzureClient) createDallE3(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	deployment := firstNonEmpty(c.cfg.DalleDeploymentID, "text_to_image")
	version := firstNonEmpty(c.cfg.DalleAPIVersion, azureDallE3APIVersion)
	url := fmt.Sprintf("%sopenai/deployments/%s/images/generations?api-version=%s", c.dalleEndpoint(), deployment, version)

	resp, err := doJSON(ctx, c.httpClient, "azure", http.MethodPost, url, c.dalleHeaders(opts.APIKey), map[string]any{
		"prompt":  prompt,
		"size":    firstNonEmpty(opts.Size, c.cfg.ImageSize, "1024x1024"),
		"quality": firstNonEmpty(opts.Quality, c.cfg.ImageQuality, "standard"),
	})
	if err != nil {
		return "", imageFailed(err)
	}
	if !resp.ok() {
		// The service's own explanation is shown (e.g. content policy rejections).
		var apiErr azureError
		if resp.decode("azure", &apiErr) == nil && apiErr.Error.Message != "" {
			return "", &ImageError{Message: apiErr.Error.Message, Err: statusError("azure", resp)}
		}
		return "", imageFailed(statusError("azure", resp))
	}

	var data azureImageData
	if err := resp.decode("azure", &data); err != nil {
		return "", imageFailed(err)
	}
	if len(data.Data) == 0 || data.Data[0].URL == "" {
		return "", imageFailed(errors.New("响应中没有图像 URL"))
	}
	return data.Data[0].URL, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
