package app

import (
	"time"

	"github.com/yungbote/assistflow-backend/internal/platform/envutil"
)

type Config struct {
	LogMode     string
	Environment string
	HTTPAddr    string
	CORSOrigins []string

	PostgresDSN string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	AMQPURL       string
	AMQPExchange  string
	AMQPSendRate  float64
	AMQPSendBurst int

	OpenAIBaseURL     string
	OpenAITimeout     time.Duration
	ElevenLabsBaseURL string
	AWSRegion         string
	PollyEngine       string
	MediaFetchTimeout time.Duration

	Timezone              string
	SchedulingLinkBaseURL string
	AssistantFunctions    []string
	RoutingKeywordsFile   string
	FallbackMessage       string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	PromptDelay        time.Duration
	RunPollInterval    time.Duration
	RunPollMax         int
	JobBackoff         time.Duration
	DeliveryMarkerTTL  time.Duration

	SweeperEnabled  bool
	SweeperInterval time.Duration
	SweeperWindow   time.Duration

	InboundJWTSecret string

	OtelEnabled     bool
	OtelEndpoint    string
	OtelHeaders     string
	OtelInsecure    bool
	OtelSampleRatio float64
	ServiceName     string
	Version         string
}

func LoadConfig() Config {
	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		HTTPAddr:    envutil.String("HTTP_ADDR", ":8080"),
		CORSOrigins: envutil.StringSlice("CORS_ORIGINS"),

		PostgresDSN: envutil.String("POSTGRES_DSN", ""),
		SQLitePath:  envutil.String("SQLITE_PATH", ""),

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisChannel:  envutil.String("REDIS_CHANNEL", "realtime"),

		AMQPURL:       envutil.String("AMQP_URL", ""),
		AMQPExchange:  envutil.String("AMQP_EXCHANGE", "whatsapp.commands"),
		AMQPSendRate:  float64(envutil.Int("AMQP_SEND_RATE", 5)),
		AMQPSendBurst: envutil.Int("AMQP_SEND_BURST", 10),

		OpenAIBaseURL:     envutil.String("OPENAI_BASE_URL", ""),
		OpenAITimeout:     envutil.Duration("OPENAI_TIMEOUT", 60*time.Second),
		ElevenLabsBaseURL: envutil.String("ELEVENLABS_BASE_URL", ""),
		AWSRegion:         envutil.String("AWS_REGION", ""),
		PollyEngine:       envutil.String("POLLY_ENGINE", "neural"),
		MediaFetchTimeout: envutil.Duration("MEDIA_FETCH_TIMEOUT", 30*time.Second),

		Timezone:              envutil.String("TIMEZONE", "America/Sao_Paulo"),
		SchedulingLinkBaseURL: envutil.String("SCHEDULING_LINK_BASE_URL", ""),
		AssistantFunctions:    envutil.StringSlice("ASSISTANT_FUNCTIONS"),
		RoutingKeywordsFile:   envutil.String("ROUTING_KEYWORDS_FILE", ""),
		FallbackMessage:       envutil.String("FALLBACK_MESSAGE", ""),

		WorkerConcurrency:  envutil.Int("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		PromptDelay:        envutil.Duration("PROMPT_DELAY", 4*time.Second),
		RunPollInterval:    envutil.Duration("RUN_POLL_INTERVAL", 5*time.Second),
		RunPollMax:         envutil.Int("RUN_POLL_MAX", 120),
		JobBackoff:         envutil.Duration("JOB_BACKOFF", 5*time.Second),
		DeliveryMarkerTTL:  envutil.Duration("DELIVERY_MARKER_TTL", 24*time.Hour),

		SweeperEnabled:  envutil.Bool("SWEEPER_ENABLED", true),
		SweeperInterval: envutil.Duration("SWEEPER_INTERVAL", time.Minute),
		SweeperWindow:   envutil.Duration("SWEEPER_WINDOW", 5*time.Minute),

		InboundJWTSecret: envutil.String("INBOUND_JWT_SECRET", ""),

		OtelEnabled:     envutil.Bool("OTEL_ENABLED", false),
		OtelEndpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelHeaders:     envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OtelInsecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		OtelSampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 1),
		ServiceName:     envutil.String("OTEL_SERVICE_NAME", "assistflow-backend"),
		Version:         envutil.String("APP_VERSION", "dev"),
	}
}
