package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/platform/media"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/platform/transport"
	"github.com/yungbote/assistflow-backend/internal/platform/tts"
	"github.com/yungbote/assistflow-backend/internal/realtime/bus"
)

type Clients struct {
	Redis     goredis.UniversalClient
	Bus       bus.Bus
	Transport transport.Transport
	AI        openai.Assistants
	Speech    tts.Synthesizer
	Images    media.Fetcher

	closeTransport func() error
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		b, err := bus.NewRedisBus(log, rdb, cfg.RedisChannel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		c.Redis = rdb
		c.Bus = b
	} else {
		log.Warn("REDIS_ADDR not set; realtime events are dropped and delivery markers stay in memory")
	}

	// AMQP
	tr, closeTr, err := transport.NewAMQPTransport(log, transport.AMQPConfig{
		URL:       cfg.AMQPURL,
		Exchange:  cfg.AMQPExchange,
		SendRate:  cfg.AMQPSendRate,
		SendBurst: cfg.AMQPSendBurst,
	})
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init amqp transport: %w", err)
	}
	c.Transport = tr
	c.closeTransport = closeTr

	// Openai
	c.AI = openai.NewAssistants(log, openai.Config{BaseURL: cfg.OpenAIBaseURL, Timeout: cfg.OpenAITimeout})

	// Speech
	router := &tts.Router{
		ElevenLabs: tts.NewElevenLabs(log, tts.ElevenLabsConfig{BaseURL: cfg.ElevenLabsBaseURL}),
	}
	if cfg.AWSRegion != "" {
		router.Polly = tts.NewPolly(log, tts.PollyConfig{Region: cfg.AWSRegion, Engine: cfg.PollyEngine})
	}
	c.Speech = router

	c.Images = media.NewFetcher(cfg.MediaFetchTimeout)
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.closeTransport != nil {
		_ = c.closeTransport()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
