package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"surveytrack-data/internal/store"
)

const registryCacheKey = "registry:device_ids"

// registryDevicesResponse 注册中心设备列表响应
type registryDevicesResponse struct {
	Items []struct {
		DeviceID string `json:"device_id"`
	} `json:"items"`
	Total int `json:"total"`
}

// RegistryClient 外部资产注册中心客户端
// The registry owns device identity; the scheduler only consumes it to
// populate the device universe for the available-devices view. Responses are
// cached in the KV so list-heavy UIs do not hammer the registry.
type RegistryClient struct {
	httpClient *resty.Client
	kv         store.KV
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewRegistryClient 创建注册中心客户端
func NewRegistryClient(baseURL string, kv store.KV, cacheTTL time.Duration, logger *zap.Logger) *RegistryClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json")

	return &RegistryClient{
		httpClient: client,
		kv:         kv,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// ListDeviceIDs 获取设备全集（带缓存）
func (c *RegistryClient) ListDeviceIDs(ctx context.Context) ([]string, error) {
	if c.kv != nil {
		if cached, err := c.kv.Get(ctx, registryCacheKey); err == nil {
			var ids []string
			if err := json.Unmarshal([]byte(cached), &ids); err == nil {
				return ids, nil
			}
		} else if err != store.ErrMiss {
			c.logger.Warn("registry cache read failed", zap.Error(err))
		}
	}

	var body registryDevicesResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/registry/api/v1/devices")
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode())
	}

	ids := make([]string, 0, len(body.Items))
	for _, item := range body.Items {
		if item.DeviceID != "" {
			ids = append(ids, item.DeviceID)
		}
	}

	if c.kv != nil {
		if data, err := json.Marshal(ids); err == nil {
			if err := c.kv.Set(ctx, registryCacheKey, string(data), c.cacheTTL); err != nil {
				c.logger.Warn("registry cache write failed", zap.Error(err))
			}
		}
	}
	return ids, nil
}
