package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/watchpost/internal/timeutil"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisStream is the stream alerts are appended to.
const DefaultRedisStream = "watchpost:alerts"

// RedisSink appends alerts to a Redis stream with XADD.
type RedisSink struct {
	client *redis.Client
	stream string
	clock  timeutil.Clock
}

func NewRedisSink(client *redis.Client, stream string, clock timeutil.Clock) *RedisSink {
	if stream == "" {
		stream = DefaultRedisStream
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RedisSink{client: client, stream: stream, clock: clock}
}

func (s *RedisSink) Name() string { return "redis:" + s.stream }

// Send writes report_id, summary, the JSON payload as data, and a unix
// timestamp.
func (s *RedisSink) Send(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"report_id": p.ReportID,
			"summary":   p.Summary,
			"data":      string(data),
			"timestamp": s.clock.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
