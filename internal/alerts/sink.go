package alerts

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/pautaradar/newsradar/infrastructure/logging"
)

// PubSubChannel is the Redis pub/sub channel a cleared alert is published
// on (SPEC_FULL.md §F.3). No package in this module subscribes to it;
// internal/pushstream polls the database on its own interval regardless.
const PubSubChannel = "newsradar:alerts"

// RedisSink logs every cleared alert and publishes it on PubSubChannel, the
// single in-process Sink implementation SPEC_FULL.md §F.3 calls for.
// Publish failures are logged and swallowed rather than failing the
// evaluation: the alert is already durably recorded via
// EventStore.RecordAlertSent by the time Send is called, so a failed
// publish loses only the pub/sub notification.
type RedisSink struct {
	client *redis.Client
	log    *logging.Logger
}

func NewRedisSink(client *redis.Client, log *logging.Logger) *RedisSink {
	return &RedisSink{client: client, log: log}
}

func (s *RedisSink) Send(ctx context.Context, a Alert) error {
	if s.log != nil {
		s.log.WithContext(ctx).WithField("event_id", a.EventID).WithField("alert_key", a.Key).
			Info("alerts: dispatched")
	}
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, PubSubChannel, data).Err(); err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).WithField("event_id", a.EventID).WithError(err).
				Warn("alerts: pub/sub wake-up publish failed")
		}
	}
	return nil
}
