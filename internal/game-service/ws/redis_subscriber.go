package ws

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber inicia uma goroutine que escuta o canal Redis
// Pub/Sub do jogo e repassa cada envelope recebido, já serializado,
// para todos os clientes WebSocket conectados via Hub.
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				// o payload já é o Envelope serializado pelo broadcaster
				hub.Broadcast([]byte(msg.Payload))
			}
		}
	}()
	log.Info("ws redis subscriber started", zap.String("channel", channel))
}
