package repository

import (
	"context"
	"fmt"

	"Aurelius/internal/domain/models"
	pkgkafka "Aurelius/pkg/kafka"
)

// Publisher is the part of pkg/kafka.Producer a sink needs.
type Publisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSink publishes the daily series of a result, one message per date,
// keyed by {table}/{strategy} so a result stays on one partition.
type KafkaSink struct {
	producer Publisher
	topic    string
}

func NewKafkaSink(producer Publisher, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

type dailyMessage struct {
	Table            string   `json:"table"`
	Strategy         string   `json:"strategy"`
	Date             string   `json:"date"`
	PortfolioValue   float64  `json:"portfolio_value"`
	DailyReturn      *float64 `json:"daily_return"`
	CumulativeReturn float64  `json:"cumulative_return"`
}

func (k *KafkaSink) Export(ctx context.Context, r *models.StrategyResult) error {
	if len(r.Daily) == 0 {
		return nil
	}
	key := []byte(r.Table + "/" + r.Strategy)
	msgs := make([]pkgkafka.Message, len(r.Daily))
	for i, d := range r.Daily {
		msgs[i] = pkgkafka.Message{
			Key: key,
			Value: dailyMessage{
				Table:            r.Table,
				Strategy:         r.Strategy,
				Date:             d.Date,
				PortfolioValue:   d.PortfolioValue,
				DailyReturn:      d.DailyReturn,
				CumulativeReturn: d.CumulativeReturn,
			},
		}
	}
	if err := k.producer.PublishBatch(ctx, k.topic, msgs); err != nil {
		return fmt.Errorf("publish %s/%s: %w", r.Table, r.Strategy, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
