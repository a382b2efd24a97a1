package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

const ChannelGameBroadcast = "game_events_broadcast"

// RedisBroadcaster implementa o Broadcaster do engine publicando cada
// variante num canal Redis Pub/Sub; o hub WebSocket assina o canal e
// repassa aos clientes. Entrega best-effort: falha de publish é logada
// e não interrompe o round.
type RedisBroadcaster struct {
	r       *redis.Client
	log     *zap.Logger
	channel string
}

func NewRedisBroadcaster(r *redis.Client, log *zap.Logger, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = ChannelGameBroadcast
	}
	return &RedisBroadcaster{r: r, log: log, channel: channel}
}

func (b *RedisBroadcaster) publish(ctx context.Context, typ string, payload interface{}) {
	msg, _ := json.Marshal(events.Envelope{Type: typ, Payload: payload})

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := b.r.Publish(ctx, b.channel, msg).Err(); err != nil {
		b.log.Warn("broadcast publish failed", zap.String("type", typ), zap.Error(err))
	}
}

func (b *RedisBroadcaster) NewRound(ctx context.Context, ev events.NewRound) {
	b.publish(ctx, events.TypeNewRound, ev)
}

func (b *RedisBroadcaster) GameStarted(ctx context.Context, ev events.GameStarted) {
	b.publish(ctx, events.TypeGameStarted, ev)
}

func (b *RedisBroadcaster) MultiplierUpdate(ctx context.Context, ev events.MultiplierUpdate) {
	b.publish(ctx, events.TypeMultiplierUpdate, ev)
}

func (b *RedisBroadcaster) GameCrashed(ctx context.Context, ev events.GameCrashed) {
	b.publish(ctx, events.TypeGameCrashed, ev)
}

func (b *RedisBroadcaster) NewBet(ctx context.Context, ev events.NewBet) {
	b.publish(ctx, events.TypeNewBet, ev)
}

func (b *RedisBroadcaster) PlayerCashedOut(ctx context.Context, ev events.PlayerCashedOut) {
	b.publish(ctx, events.TypePlayerCashedOut, ev)
}
