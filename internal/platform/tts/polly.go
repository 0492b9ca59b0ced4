package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type PollyConfig struct {
	Region string
	Engine string
}

type pollySynth struct {
	log    *logger.Logger
	cfg    PollyConfig
	mu     sync.Mutex
	client pollyClient
}

func NewPolly(baseLog *logger.Logger, cfg PollyConfig) Synthesizer {
	return &pollySynth{log: baseLog.With("client", "Polly"), cfg: cfg}
}

func (p *pollySynth) resolveClient(ctx context.Context) (pollyClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

func (p *pollySynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, fmt.Errorf("polly: empty text")
	}
	if req.Voice == "" {
		return Audio{}, fmt.Errorf("polly: missing voice")
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return Audio{}, err
	}
	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(req.Text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(req.Voice),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return Audio{}, fmt.Errorf("polly synthesize: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return Audio{}, fmt.Errorf("polly synthesize: %w", err)
	}
	if out == nil || out.AudioStream == nil {
		return Audio{}, fmt.Errorf("polly synthesize: empty audio")
	}
	defer out.AudioStream.Close()
	data, err := io.ReadAll(io.LimitReader(out.AudioStream, maxAudioBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("polly read audio: %w", err)
	}
	return Audio{Data: data, MIME: "audio/mpeg"}, nil
}
