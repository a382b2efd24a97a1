package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de liquidação após a persistência do
// crash. Chave = roundId, pra manter os eventos de um round na mesma
// partição, em ordem.
type KafkaPublisher struct {
	RoundWriter *kafka.Writer
	BetWriter   *kafka.Writer
}

func NewKafkaPublisher(roundWriter, betWriter *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{RoundWriter: roundWriter, BetWriter: betWriter}
}

func (p *KafkaPublisher) PublishRoundSettled(ctx context.Context, e events.RoundSettled) error {
	b, _ := json.Marshal(e)
	return p.RoundWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.RoundID),
		Value: b,
	})
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	b, _ := json.Marshal(e)
	return p.BetWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.RoundID),
		Value: b,
	})
}
