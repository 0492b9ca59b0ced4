package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/assistflow-backend/internal/pkg/httpx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	elevenLabsModel          = "eleven_multilingual_v2"
	maxAudioBytes            = 16 << 20
)

type ElevenLabsConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Attempts int
}

type elevenLabs struct {
	log  *logger.Logger
	cfg  ElevenLabsConfig
	http *http.Client
}

func NewElevenLabs(baseLog *logger.Logger, cfg ElevenLabsConfig) Synthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultElevenLabsBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	return &elevenLabs{
		log:  baseLog.With("client", "ElevenLabs"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (e *elevenLabs) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, fmt.Errorf("elevenlabs: empty text")
	}
	if req.Voice == "" {
		return Audio{}, fmt.Errorf("elevenlabs: missing voice")
	}
	if req.APIKey == "" {
		return Audio{}, fmt.Errorf("elevenlabs: missing api key")
	}
	body, err := json.Marshal(map[string]any{
		"text":     req.Text,
		"model_id": elevenLabsModel,
	})
	if err != nil {
		return Audio{}, err
	}
	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(req.Voice)

	data, contentType, err := httpx.Do(ctx, e.http, e.cfg.Attempts, maxAudioBytes, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "audio/mpeg")
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("xi-api-key", req.APIKey)
		return r, nil
	})
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs synthesize: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("elevenlabs synthesize: empty audio")
	}
	mime := "audio/mpeg"
	if strings.HasPrefix(contentType, "audio/") {
		mime = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	e.log.Debug("Synthesized speech", "voice", req.Voice, "bytes", len(data))
	return Audio{Data: data, MIME: mime}, nil
}
