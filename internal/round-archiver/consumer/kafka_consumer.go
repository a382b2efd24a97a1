package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/round-archiver/repository"
	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// Processor consome os eventos round_settled e materializa round_stats.
// Mensagem inválida vai pra DLQ e o consumo segue; falha de banco faz
// retry na mesma mensagem via re-leitura do grupo.
type Processor struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Repo   *repository.PostgresRepo
	DLQ    *kafka.Writer // pode ser nil

	OnConsumed func()       // métricas (counter++)
	OnPersist  func()       // métricas
	OnDLQ      func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo. Retorna quando o contexto cancela.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.RoundSettled
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.RoundID == "" {
			p.Log.Warn("invalid round_settled message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			p.sendToDLQ(ctx, m)
			continue
		}

		if err := p.Repo.UpsertRoundStats(ctx, ev); err != nil {
			p.Log.Warn("round_stats upsert failed",
				zap.String("round_id", ev.RoundID), zap.Error(err))
			if p.OnError != nil {
				p.OnError("db_upsert")
			}
			continue
		}
		if p.OnPersist != nil {
			p.OnPersist()
		}
	}
}

// sendToDLQ repassa a mensagem original, com a chave preservada, pro
// tópico de dead letter
func (p *Processor) sendToDLQ(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.DLQ.WriteMessages(wctx, kafka.Message{Key: m.Key, Value: m.Value}); err != nil {
		p.Log.Warn("dlq publish failed", zap.Error(err))
		if p.OnError != nil {
			p.OnError("dlq")
		}
		return
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
}
