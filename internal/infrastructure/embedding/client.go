// Package embedding 提供嵌入服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archive-search-api/internal/config"
	"archive-search-api/pkg/metrics"
)

var (
	// ErrInputTooLarge 提供方拒绝批次：输入超过 token 上限（按状态码判定）
	ErrInputTooLarge = errors.New("embedding input too large")
)

// ProviderError 嵌入提供方返回的非 2xx 响应
type ProviderError struct {
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider returned status %d", e.StatusCode)
}

// Retryable 5xx 与限流可重试，其余 4xx 视为终态
func (e *ProviderError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client 嵌入服务客户端
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// NewClient 创建嵌入服务客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Embed 嵌入一个批次，批次划分由调用方负责
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	resp, err := c.doEmbed(ctx, texts)
	if err != nil {
		metrics.EmbeddingBatchTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EmbeddingBatchTotal.WithLabelValues("ok").Inc()
	metrics.EmbeddingBatchDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// EmbedQuery 对单条查询向量化
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vector")
	}
	return vectors[0], nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	reqBody, err := json.Marshal(&embedRequest{
		Texts: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	// 判定只看状态码，不解析错误消息文本
	if httpResp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, ErrInputTooLarge
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: httpResp.StatusCode}
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return &resp, nil
}
