package tts

import (
	"context"
	"fmt"
	"strings"
)

type Request struct {
	Text   string
	Voice  string
	APIKey string
}

type Audio struct {
	Data []byte
	MIME string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// PollyPrefix marks voices served by AWS Polly, e.g. "polly:Camila".
const PollyPrefix = "polly:"

// Router sends polly:-prefixed voices to Polly and everything else to
// ElevenLabs. Either backend may be nil when not configured.
type Router struct {
	ElevenLabs Synthesizer
	Polly      Synthesizer
}

func (r *Router) Synthesize(ctx context.Context, req Request) (Audio, error) {
	voice := strings.TrimSpace(req.Voice)
	if strings.HasPrefix(strings.ToLower(voice), PollyPrefix) {
		if r.Polly == nil {
			return Audio{}, fmt.Errorf("polly voice %q requested but polly is not configured", voice)
		}
		req.Voice = strings.TrimSpace(voice[len(PollyPrefix):])
		return r.Polly.Synthesize(ctx, req)
	}
	if r.ElevenLabs == nil {
		return Audio{}, fmt.Errorf("elevenlabs is not configured")
	}
	req.Voice = voice
	return r.ElevenLabs.Synthesize(ctx, req)
}
