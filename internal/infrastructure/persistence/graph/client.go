// Package graph 提供 FalkorDB 图数据库访问层实现
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"archive-search-api/internal/config"
)

var tracer = otel.Tracer("graph")

// Client FalkorDB 客户端，复用 Redis 协议
type Client struct {
	rdb       *redis.Client
	graphName string
}

// NewClient 创建 FalkorDB 客户端
func NewClient(cfg *config.GraphConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping falkordb: %w", err)
	}

	return &Client{
		rdb:       rdb,
		graphName: cfg.GraphName,
	}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping 探活
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "graph.Ping")
	defer span.End()

	return c.rdb.Ping(ctx).Err()
}

// Query 执行 Cypher 查询
func (c *Client) Query(ctx context.Context, cypher string) error {
	ctx, span := tracer.Start(ctx, "graph.Query")
	defer span.End()

	if err := c.rdb.Do(ctx, "GRAPH.QUERY", c.graphName, cypher).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to run graph query: %w", err)
	}
	return nil
}
