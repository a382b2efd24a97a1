// Package oracle fornece o preço corrente das moedas apostáveis a partir
// de um feed CoinGecko-compatível, com cache de 10s e fallbacks. É chamado
// só no momento da aposta, nunca no caminho do tick.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheTTL     = 10 * time.Second
	fetchTimeout = 5 * time.Second
)

// Preços estáticos usados quando o feed falha e não há cache
var fallbackPrices = map[string]float64{
	"BTC": 45000,
	"ETH": 3000,
}

var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
}

// KV é o cache de preços. Implementações: Redis (produção) e mapa em
// memória (testes).
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisKV implementa KV sobre go-redis
type RedisKV struct{ R *redis.Client }

func (k RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.R.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.R.Set(ctx, key, value, ttl).Err()
}

type Service struct {
	log     *zap.Logger
	baseURL string
	http    *http.Client
	cache   KV
}

func New(log *zap.Logger, baseURL string, cache KV) *Service {
	return &Service{
		log:     log,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: fetchTimeout},
		cache:   cache,
	}
}

func keyCurrent(cur string) string { return "price:current:" + cur }
func keyLast(cur string) string    { return "price:last:" + cur }

// GetPrice retorna o preço USD da moeda. Ordem: cache (TTL 10s) ->
// feed externo (timeout 5s) -> último valor conhecido -> fallback
// estático. Nunca retorna erro por falha do feed: a aposta não pode
// depender da disponibilidade do CoinGecko.
func (s *Service) GetPrice(ctx context.Context, currency string) (float64, error) {
	cur := strings.ToUpper(currency)
	if _, ok := coinIDs[cur]; !ok {
		return 0, fmt.Errorf("unsupported currency %q", currency)
	}

	if v, ok, err := s.cache.Get(ctx, keyCurrent(cur)); err == nil && ok {
		var price float64
		if _, perr := fmt.Sscanf(v, "%f", &price); perr == nil {
			return price, nil
		}
	}

	price, err := s.fetch(ctx, cur)
	if err != nil {
		s.log.Warn("price feed fetch failed", zap.String("currency", cur), zap.Error(err))

		if v, ok, cerr := s.cache.Get(ctx, keyLast(cur)); cerr == nil && ok {
			var last float64
			if _, perr := fmt.Sscanf(v, "%f", &last); perr == nil {
				return last, nil
			}
		}
		return fallbackPrices[cur], nil
	}

	val := fmt.Sprintf("%f", price)
	if err := s.cache.Set(ctx, keyCurrent(cur), val, cacheTTL); err != nil {
		s.log.Warn("price cache set failed", zap.Error(err))
	}
	// último valor conhecido fica sem TTL, é o fallback pra queda do feed
	_ = s.cache.Set(ctx, keyLast(cur), val, 0)

	return price, nil
}

func (s *Service) fetch(ctx context.Context, cur string) (float64, error) {
	coinID := coinIDs[cur]
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.baseURL, coinID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	res, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return 0, fmt.Errorf("price feed http %d", res.StatusCode)
	}

	// formato CoinGecko: {"bitcoin":{"usd":45000.12}}
	var payload map[string]map[string]float64
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return 0, err
	}
	price, ok := payload[coinID]["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("price feed returned no usd price for %s", coinID)
	}
	return price, nil
}
