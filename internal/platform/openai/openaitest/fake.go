// Package openaitest provides an in-memory Assistants provider for tests.
package openaitest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/assistflow-backend/internal/platform/openai"
)

// RunCall records one CreateRun.
type RunCall struct {
	APIKey      string
	ThreadID    string
	AssistantID string
}

// Submission records one SubmitToolOutputs.
type Submission struct {
	APIKey   string
	ThreadID string
	RunID    string
	Outputs  []openai.ToolOutput
}

/*
Fake keeps threads in memory. RetrieveRun answers from Statuses in order and
keeps repeating the last one; a completed status appends Reply to the thread
once per run.
*/
type Fake struct {
	mu sync.Mutex

	Statuses []openai.Run
	Reply    string
	// Errs fails the named method (e.g. "CreateRun") while set.
	Errs map[string]error

	threads     map[string][]openai.ThreadMessage
	deleted     []string
	runs        []RunCall
	submissions []Submission
	userParts   map[string][][]openai.MessagePart
	replied     map[string]bool
	polls       int
	seq         int
	clock       int64
}

func (f *Fake) init() {
	if f.threads == nil {
		f.threads = map[string][]openai.ThreadMessage{}
		f.replied = map[string]bool{}
		f.userParts = map[string][][]openai.MessagePart{}
	}
}

func (f *Fake) fail(method string) error {
	if f.Errs == nil {
		return nil
	}
	return f.Errs[method]
}

func (f *Fake) CreateThread(_ context.Context, apiKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.fail("CreateThread"); err != nil {
		return "", err
	}
	f.seq++
	id := fmt.Sprintf("thread_%d", f.seq)
	f.threads[id] = nil
	return id, nil
}

func (f *Fake) DeleteThread(_ context.Context, apiKey, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.deleted = append(f.deleted, threadID)
	delete(f.threads, threadID)
	return nil
}

// AddUserMessage stores the text parts joined by newlines as the message
// text; UserParts keeps the parts as sent.
func (f *Fake) AddUserMessage(_ context.Context, apiKey, threadID string, parts []openai.MessagePart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.fail("AddUserMessage"); err != nil {
		return err
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == openai.PartText {
			texts = append(texts, p.Text)
		}
	}
	f.userParts[threadID] = append(f.userParts[threadID], append([]openai.MessagePart(nil), parts...))
	f.appendLocked(threadID, "user", strings.Join(texts, "\n"))
	return nil
}

func (f *Fake) UserParts(threadID string) [][]openai.MessagePart {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return append([][]openai.MessagePart(nil), f.userParts[threadID]...)
}

func (f *Fake) appendLocked(threadID, role, text string) {
	f.clock++
	f.seq++
	f.threads[threadID] = append(f.threads[threadID], openai.ThreadMessage{
		ID:        fmt.Sprintf("msg_%d", f.seq),
		Role:      role,
		CreatedAt: f.clock,
		Text:      text,
	})
}

func (f *Fake) CreateRun(_ context.Context, apiKey, threadID, assistantID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.fail("CreateRun"); err != nil {
		return openai.Run{}, err
	}
	f.seq++
	f.runs = append(f.runs, RunCall{APIKey: apiKey, ThreadID: threadID, AssistantID: assistantID})
	return openai.Run{ID: fmt.Sprintf("run_%d", f.seq), Status: openai.RunQueued}, nil
}

func (f *Fake) RetrieveRun(_ context.Context, apiKey, threadID, runID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.fail("RetrieveRun"); err != nil {
		return openai.Run{}, err
	}
	run := openai.Run{Status: openai.RunCompleted}
	if len(f.Statuses) > 0 {
		i := f.polls
		if i >= len(f.Statuses) {
			i = len(f.Statuses) - 1
		}
		run = f.Statuses[i]
	}
	f.polls++
	run.ID = runID
	if run.Status == openai.RunCompleted && f.Reply != "" && !f.replied[runID] {
		f.replied[runID] = true
		f.appendLocked(threadID, "assistant", f.Reply)
	}
	return run, nil
}

func (f *Fake) SubmitToolOutputs(_ context.Context, apiKey, threadID, runID string, outputs []openai.ToolOutput) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.fail("SubmitToolOutputs"); err != nil {
		return openai.Run{}, err
	}
	f.submissions = append(f.submissions, Submission{APIKey: apiKey, ThreadID: threadID, RunID: runID, Outputs: outputs})
	return openai.Run{ID: runID, Status: openai.RunQueued}, nil
}

func (f *Fake) ListMessages(_ context.Context, apiKey, threadID string) ([]openai.ThreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if err := f.fail("ListMessages"); err != nil {
		return nil, err
	}
	out := make([]openai.ThreadMessage, len(f.threads[threadID]))
	copy(out, f.threads[threadID])
	return out, nil
}

// AddAssistantMessage seeds a thread with an assistant answer.
func (f *Fake) AddAssistantMessage(threadID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.appendLocked(threadID, "assistant", text)
}

func (f *Fake) Messages(threadID string) []openai.ThreadMessage {
	out, _ := f.ListMessages(context.Background(), "", threadID)
	return out
}

func (f *Fake) Runs() []RunCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RunCall(nil), f.runs...)
}

func (f *Fake) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *Fake) Threads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.threads)
}

var _ openai.Assistants = (*Fake)(nil)
