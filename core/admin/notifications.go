package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/meridian-tech/adminpanel/core"
)

// KafkaNotifier publishes one message per successful mutation to a
// Kafka topic. The message key is "{entity}/{operation}" so all
// mutations of one entity and kind land on the same partition; the
// value is the notification as JSON.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier for the given brokers and topic.
// Brokers is a comma separated list of addresses.
func NewKafkaNotifier(brokers string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(strings.Split(brokers, ",")...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Notify implements core.Notifier.
func (n *KafkaNotifier) Notify(ctx context.Context, notification core.Notification) error {
	value, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%s", notification.Entity, notification.Operation)
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
