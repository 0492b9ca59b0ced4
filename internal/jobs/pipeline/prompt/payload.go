package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	JobTypeDelay    = "prompt_delay"
	JobTypeDispatch = "prompt_dispatch"
	JobTypePoll     = "run_poll"
	JobTypeTools    = "tool_calls"
	JobTypeDelivery = "reply_delivery"
)

// JobTypes lists every stage of the assistant pipeline in flow order.
func JobTypes() []string {
	return []string{JobTypeDispatch, JobTypeDelay, JobTypePoll, JobTypeTools, JobTypeDelivery}
}

// Payload is the envelope carried between stages. Stages derive the next
// envelope with the With* helpers and never mutate one after enqueue.
type Payload struct {
	TicketID       int64      `json:"ticket_id"`
	CompanyID      int64      `json:"company_id"`
	ContactID      int64      `json:"contact_id,omitempty"`
	ConfigID       int64      `json:"config_id,omitempty"`
	// AssistantKey is set only when the inbound request carried a credential.
	AssistantKey   string     `json:"assistant_key,omitempty"`
	Content        Content    `json:"content,omitempty"`
	RemoteJID      string     `json:"remote_jid,omitempty"`
	QueueID        *int64     `json:"queue_id,omitempty"`
	ThreadID       string     `json:"thread_id,omitempty"`
	RunID          string     `json:"run_id,omitempty"`
	DelaySatisfied bool       `json:"delay_satisfied,omitempty"`
	PollCount      int        `json:"poll_count,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	TraceID        string     `json:"trace_id,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (p Payload) Validate() error {
	if p.TicketID <= 0 {
		return fmt.Errorf("missing ticket_id")
	}
	if p.CompanyID <= 0 {
		return fmt.Errorf("missing company_id")
	}
	return nil
}

func (p Payload) WithThread(threadID string) Payload {
	p.ThreadID = threadID
	return p
}

func (p Payload) WithRun(runID string) Payload {
	p.RunID = runID
	p.PollCount = 0
	p.ToolCalls = nil
	return p
}

func (p Payload) WithPollCount(n int) Payload {
	p.PollCount = n
	p.ToolCalls = nil
	return p
}

func (p Payload) WithToolCalls(calls []ToolCall) Payload {
	out := make([]ToolCall, len(calls))
	copy(out, calls)
	p.ToolCalls = out
	return p
}

// DelayElapsed marks the envelope as past the debounce window. Content is
// dropped because the first dispatch already appended it to the thread.
func (p Payload) DelayElapsed() Payload {
	p.DelaySatisfied = true
	p.Content = Content{}
	p.ToolCalls = nil
	return p
}

// ContentPart is one element of a multi-part user turn.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Content is either plain text or a list of parts. It accepts both shapes
// on the wire.
type Content struct {
	Text  string
	Parts []ContentPart
}

func TextContent(s string) Content { return Content{Text: s} }

func (c Content) IsEmpty() bool {
	if strings.TrimSpace(c.Text) != "" {
		return false
	}
	for _, p := range c.Parts {
		if strings.TrimSpace(p.Text) != "" || (p.ImageURL != nil && p.ImageURL.URL != "") {
			return false
		}
	}
	return true
}

// Flatten renders the content as one text message, one line per part.
func (c Content) Flatten() string {
	if len(c.Parts) == 0 {
		return strings.TrimSpace(c.Text)
	}
	lines := make([]string, 0, len(c.Parts)+1)
	if t := strings.TrimSpace(c.Text); t != "" {
		lines = append(lines, t)
	}
	for _, p := range c.Parts {
		switch {
		case p.ImageURL != nil && strings.TrimSpace(p.ImageURL.URL) != "":
			lines = append(lines, "image: "+strings.TrimSpace(p.ImageURL.URL))
		case strings.TrimSpace(p.Text) != "":
			lines = append(lines, strings.TrimSpace(p.Text))
		}
	}
	return strings.Join(lines, "\n")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}
