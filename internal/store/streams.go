package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamPublisher 发布生命周期事件到 Redis Streams
// 下游消费者（报表、通知）通过 XREADGROUP 消费；发布失败不回滚业务写入。
type StreamPublisher struct {
	c      *redis.Client
	stream string
}

func NewStreamPublisher(c *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{c: c, stream: stream}
}

// PublishJSON 序列化 data 为 JSON 并 XADD 到流，返回消息ID
func (p *StreamPublisher) PublishJSON(ctx context.Context, event string, data any) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return p.c.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event":     event,
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}
