package openai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/yungbote/assistflow-backend/internal/pkg/httpx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

const (
	RunQueued         = "queued"
	RunInProgress     = "in_progress"
	RunRequiresAction = "requires_action"
	RunCancelling     = "cancelling"
	RunCompleted      = "completed"
	RunFailed         = "failed"
	RunCancelled      = "cancelled"
	RunExpired        = "expired"
	RunIncomplete     = "incomplete"

	ErrCodeInvalidImageURL   = "invalid_image_url"
	ErrCodeRateLimitExceeded = "rate_limit_exceeded"

	PartText     = "text"
	PartImageURL = "image_url"

	defaultBaseURL = "https://api.openai.com/v1"
)

// Run is the slice of a provider run the pipeline acts on.
type Run struct {
	ID               string
	Status           string
	LastErrorCode    string
	LastErrorMessage string
	ToolCalls        []ToolCall
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ToolOutput struct {
	ToolCallID string
	Output     string
}

// ThreadMessage is one message of a thread reduced to its first text part.
type ThreadMessage struct {
	ID        string
	Role      string
	CreatedAt int64
	Text      string
}

// MessagePart is one element of a user message: text or an image by URL.
type MessagePart struct {
	Type     string
	Text     string
	ImageURL string
}

func TextPart(s string) MessagePart { return MessagePart{Type: PartText, Text: s} }

func ImagePart(url string) MessagePart { return MessagePart{Type: PartImageURL, ImageURL: url} }

// Assistants drives the thread/run protocol. Every call takes the tenant's
// credential; one process serves many companies.
type Assistants interface {
	CreateThread(ctx context.Context, apiKey string) (string, error)
	DeleteThread(ctx context.Context, apiKey string, threadID string) error
	AddUserMessage(ctx context.Context, apiKey string, threadID string, parts []MessagePart) error
	CreateRun(ctx context.Context, apiKey string, threadID string, assistantID string) (Run, error)
	RetrieveRun(ctx context.Context, apiKey string, threadID string, runID string) (Run, error)
	SubmitToolOutputs(ctx context.Context, apiKey string, threadID string, runID string, outputs []ToolOutput) (Run, error)
	ListMessages(ctx context.Context, apiKey string, threadID string) ([]ThreadMessage, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type client struct {
	log     *logger.Logger
	cfg     Config
	http    *http.Client
	mu      sync.Mutex
	clients map[string]*goopenai.Client
}

func NewAssistants(baseLog *logger.Logger, cfg Config) Assistants {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &client{
		log:     baseLog.With("client", "OpenAIAssistants"),
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		clients: map[string]*goopenai.Client{},
	}
}

func keyFingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

func (c *client) forKey(apiKey string) (*goopenai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing assistant credential")
	}
	fp := keyFingerprint(apiKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[fp]; ok {
		return cl, nil
	}
	conf := goopenai.DefaultConfig(apiKey)
	if c.cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	}
	conf.HTTPClient = c.http
	cl := goopenai.NewClientWithConfig(conf)
	c.clients[fp] = cl
	return cl, nil
}

func (c *client) CreateThread(ctx context.Context, apiKey string) (string, error) {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return "", err
	}
	th, err := cl.CreateThread(ctx, goopenai.ThreadRequest{})
	if err != nil {
		return "", wrap("create thread", err)
	}
	return th.ID, nil
}

func (c *client) DeleteThread(ctx context.Context, apiKey string, threadID string) error {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return err
	}
	if _, err := cl.DeleteThread(ctx, threadID); err != nil {
		return wrap("delete thread", err)
	}
	return nil
}

/*
AddUserMessage appends one user turn. Text-only turns go through the SDK,
whose message request carries a plain string; turns with images are posted
as a content array so the assistant receives the image itself.
*/
func (c *client) AddUserMessage(ctx context.Context, apiKey string, threadID string, parts []MessagePart) error {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return err
	}
	if !hasImage(parts) {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
		_, err = cl.CreateMessage(ctx, threadID, goopenai.MessageRequest{
			Role:    string(goopenai.ThreadMessageRoleUser),
			Content: strings.Join(texts, "\n"),
		})
		if err != nil {
			return wrap("create message", err)
		}
		return nil
	}
	if err := c.postContentMessage(ctx, apiKey, threadID, parts); err != nil {
		return fmt.Errorf("openai create message: %w", err)
	}
	return nil
}

func hasImage(parts []MessagePart) bool {
	for _, p := range parts {
		if p.Type == PartImageURL && strings.TrimSpace(p.ImageURL) != "" {
			return true
		}
	}
	return false
}

type contentPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *contentImageURL `json:"image_url,omitempty"`
}

type contentImageURL struct {
	URL string `json:"url"`
}

func (c *client) postContentMessage(ctx context.Context, apiKey, threadID string, parts []MessagePart) error {
	content := make([]contentPart, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Type == PartImageURL && strings.TrimSpace(p.ImageURL) != "":
			content = append(content, contentPart{Type: PartImageURL, ImageURL: &contentImageURL{URL: strings.TrimSpace(p.ImageURL)}})
		case strings.TrimSpace(p.Text) != "":
			content = append(content, contentPart{Type: PartText, Text: strings.TrimSpace(p.Text)})
		}
	}
	body, err := json.Marshal(map[string]any{"role": "user", "content": content})
	if err != nil {
		return err
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	url := base + "/threads/" + threadID + "/messages"
	_, _, err = httpx.Do(ctx, c.http, 1, 1<<20, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("OpenAI-Beta", "assistants=v2")
		return req, nil
	})
	return err
}

func (c *client) CreateRun(ctx context.Context, apiKey string, threadID string, assistantID string) (Run, error) {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return Run{}, err
	}
	if strings.TrimSpace(assistantID) == "" {
		return Run{}, fmt.Errorf("create run: missing assistant id")
	}
	r, err := cl.CreateRun(ctx, threadID, goopenai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Run{}, wrap("create run", err)
	}
	return fromRun(r), nil
}

func (c *client) RetrieveRun(ctx context.Context, apiKey string, threadID string, runID string) (Run, error) {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return Run{}, err
	}
	r, err := cl.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, wrap("retrieve run", err)
	}
	return fromRun(r), nil
}

func (c *client) SubmitToolOutputs(ctx context.Context, apiKey string, threadID string, runID string, outputs []ToolOutput) (Run, error) {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return Run{}, err
	}
	req := goopenai.SubmitToolOutputsRequest{ToolOutputs: make([]goopenai.ToolOutput, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, goopenai.ToolOutput{ToolCallID: o.ToolCallID, Output: o.Output})
	}
	r, err := cl.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return Run{}, wrap("submit tool outputs", err)
	}
	return fromRun(r), nil
}

// ListMessages returns the newest page of the thread, oldest first.
func (c *client) ListMessages(ctx context.Context, apiKey string, threadID string) ([]ThreadMessage, error) {
	cl, err := c.forKey(apiKey)
	if err != nil {
		return nil, err
	}
	limit := 20
	order := "desc"
	list, err := cl.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	out := make([]ThreadMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		tm := ThreadMessage{ID: m.ID, Role: m.Role, CreatedAt: int64(m.CreatedAt)}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text != nil {
				tm.Text = part.Text.Value
				break
			}
		}
		out = append(out, tm)
	}
	SortMessages(out)
	return out, nil
}

// SortMessages orders messages by creation time, oldest first.
func SortMessages(msgs []ThreadMessage) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })
}

func fromRun(r goopenai.Run) Run {
	out := Run{ID: r.ID, Status: string(r.Status)}
	if r.LastError != nil {
		out.LastErrorCode = string(r.LastError.Code)
		out.LastErrorMessage = r.LastError.Message
	}
	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return out
}

// StatusCode extracts the provider HTTP status from err, 0 when unknown.
func StatusCode(err error) int {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func wrap(op string, err error) error {
	if code := StatusCode(err); code != 0 {
		return fmt.Errorf("openai %s (status %d): %w", op, code, err)
	}
	return fmt.Errorf("openai %s: %w", op, err)
}
