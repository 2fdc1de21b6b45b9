// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events carries internal notifications between the sync side
// and the stats side over an in-process Pub/Sub. The only event today
// is stats invalidation: a successful sync publishes which users'
// cached stats are stale, and the stats engine clears them.
//
// Decoupling the cache clear from the sync write path keeps sync
// transactions short and gives a single seam for adding further
// consumers (webhooks, precomputation) later.
package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/wrapparr/wrapparr/internal/logging"
)

// TopicStatsInvalidate carries StatsInvalidated events.
const TopicStatsInvalidate = "stats.invalidate"

// StatsInvalidated says the cached stats for these users are stale.
// An empty UserIDs means every user's cache is stale (global sync).
type StatsInvalidated struct {
	UserIDs []int `json:"userIds"`
}

// Bus is the in-process event bus. Output channels are buffered so
// publishers rarely block on subscribers; invalidation events are
// idempotent, so ordering across publishers does not matter.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the in-process bus.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, newWatermillLogger())
	return &Bus{pubsub: pubsub}
}

// PublishStatsInvalidated announces that the given users' cached stats
// are stale. Pass no ids for a global invalidation.
func (b *Bus) PublishStatsInvalidated(userIDs []int) error {
	payload, err := json.Marshal(StatsInvalidated{UserIDs: userIDs})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(TopicStatsInvalidate, msg)
}

// SubscribeStatsInvalidated delivers invalidation events to handler
// until ctx is cancelled. Handler errors are logged and the message
// acked anyway; invalidation is idempotent and will be superseded by
// the next sync.
func (b *Bus) SubscribeStatsInvalidated(ctx context.Context, handler func(context.Context, StatsInvalidated) error) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicStatsInvalidate)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event StatsInvalidated
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode stats invalidation event")
				msg.Ack()
				continue
			}
			if err := handler(ctx, event); err != nil {
				logging.Error().Err(err).Ints("user_ids", event.UserIDs).Msg("Stats invalidation handler failed")
			}
			msg.Ack()
		}
	}()

	return nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger adapts watermill's logging onto zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) event(ev func() *zerolog.Event, msg string, err error, fields watermill.LogFields) {
	e := ev()
	if err != nil {
		e = e.Err(err)
	}
	for k, v := range l.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Error, msg, err, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Info, msg, nil, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug, msg, nil, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Debug, msg, nil, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &watermillLogger{fields: merged}
}
