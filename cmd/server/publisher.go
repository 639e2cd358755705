package main

import (
	"log/slog"

	"ordergate/cmd/server/config"
	"ordergate/internal/events"
)

// buildPublisher fans order events out to live subscribers and, when brokers
// are configured, to Kafka. The returned func closes the Kafka writer.
func buildPublisher(cfg config.KafkaConfig, live events.Broadcaster, log *slog.Logger) (events.Publisher, func()) {
	fanout := events.Fanout{events.NewBroadcastPublisher(live)}
	if len(cfg.Brokers) == 0 {
		return fanout, func() {}
	}

	writer := events.NewKafkaWriter(cfg.Brokers)
	fanout = append(fanout, events.NewKafkaPublisher(log, writer, cfg.Topic))
	log.Info("publishing order events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)

	return fanout, func() {
		if err := writer.Close(); err != nil {
			log.Warn("close kafka writer", "err", err)
		}
	}
}
