package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"

	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

func TestElevenLabsRetriesAndReturnsAudio(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "el-key" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model_id"] != "eleven_multilingual_v2" {
			t.Errorf("model_id: got=%v", body["model_id"])
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	s := NewElevenLabs(logger.Nop(), ElevenLabsConfig{BaseURL: srv.URL, Attempts: 2})
	a, err := s.Synthesize(context.Background(), Request{Text: "Olá", Voice: "voice-1", APIKey: "el-key"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(a.Data) != "ID3fake" || a.MIME != "audio/mpeg" {
		t.Fatalf("audio: got=%q mime=%s", a.Data, a.MIME)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestElevenLabsDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewElevenLabs(logger.Nop(), ElevenLabsConfig{BaseURL: srv.URL, Attempts: 3})
	if _, err := s.Synthesize(context.Background(), Request{Text: "x", Voice: "v", APIKey: "bad"}); err == nil {
		t.Fatalf("want error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

type fakePollyClient struct {
	voice string
}

func (f *fakePollyClient) SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.voice = string(in.VoiceId)
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader([]byte("mp3")))}, nil
}

type recordingSynth struct{ voice string }

func (r *recordingSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	r.voice = req.Voice
	return Audio{Data: []byte("el"), MIME: "audio/mpeg"}, nil
}

func TestRouterPicksBackendByVoicePrefix(t *testing.T) {
	fc := &fakePollyClient{}
	p := &pollySynth{log: logger.Nop(), client: fc}
	el := &recordingSynth{}
	r := &Router{ElevenLabs: el, Polly: p}

	a, err := r.Synthesize(context.Background(), Request{Text: "oi", Voice: "polly:Camila"})
	if err != nil {
		t.Fatalf("polly route: %v", err)
	}
	if fc.voice != "Camila" || string(a.Data) != "mp3" {
		t.Fatalf("polly: voice=%s data=%q", fc.voice, a.Data)
	}

	if _, err := r.Synthesize(context.Background(), Request{Text: "oi", Voice: "pNInz6", APIKey: "k"}); err != nil {
		t.Fatalf("elevenlabs route: %v", err)
	}
	if el.voice != "pNInz6" {
		t.Fatalf("elevenlabs voice: got=%s", el.voice)
	}

	if _, err := (&Router{}).Synthesize(context.Background(), Request{Text: "x", Voice: "polly:Camila"}); err == nil {
		t.Fatalf("want error without polly")
	}
}
