// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/assistflow-backend/internal/platform/transport"
)

// Call is one recorded transport command.
type Call struct {
	Kind     string
	To       transport.Target
	Text     string
	Caption  string
	Media    []byte
	MIME     string
	PTT      bool
	Presence string
}

// Recorder records every command. FailSends makes the next N sends fail.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	seq       int
	FailSends int
}

func (r *Recorder) send(c Call) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSends > 0 {
		r.FailSends--
		return "", fmt.Errorf("transport unavailable")
	}
	r.seq++
	r.calls = append(r.calls, c)
	return fmt.Sprintf("out-%d", r.seq), nil
}

func (r *Recorder) SendText(_ context.Context, to transport.Target, text string) (string, error) {
	return r.send(Call{Kind: "text", To: to, Text: text})
}

func (r *Recorder) SendImage(_ context.Context, to transport.Target, image []byte, mime, caption string) (string, error) {
	return r.send(Call{Kind: "image", To: to, Media: image, MIME: mime, Caption: caption})
}

func (r *Recorder) SendAudio(_ context.Context, to transport.Target, audio []byte, mime string, ptt bool) (string, error) {
	return r.send(Call{Kind: "audio", To: to, Media: audio, MIME: mime, PTT: ptt})
}

func (r *Recorder) SetPresence(_ context.Context, to transport.Target, presence string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Kind: "presence", To: to, Presence: presence})
	return nil
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Sends returns the recorded calls of the given kind.
func (r *Recorder) Sends(kind string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
