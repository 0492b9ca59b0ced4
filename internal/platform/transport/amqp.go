package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"

	"github.com/yungbote/assistflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

const (
	kindText     = "send_text"
	kindImage    = "send_image"
	kindAudio    = "send_audio"
	kindPresence = "presence"
)

// Envelope is the JSON body of every command published to the gateway.
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data CommandData `json:"data"`
}

type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CompanyID     int64     `json:"company_id"`
	SessionID     int64     `json:"session_id"`
	TicketID      int64     `json:"ticket_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type CommandData struct {
	JID      string `json:"jid"`
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Media    string `json:"media,omitempty"`
	MIME     string `json:"mime,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
	Presence string `json:"presence,omitempty"`
}

type AMQPConfig struct {
	URL      string
	Exchange string
	// SendRate and SendBurst bound commands per session.
	SendRate       float64
	SendBurst      int
	ConfirmTimeout time.Duration
}

// publishChannel is the subset of *amqp.Channel the transport uses.
type publishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

type amqpTransport struct {
	log  *logger.Logger
	cfg  AMQPConfig
	conn *amqp.Connection
	open func() (publishChannel, error)

	mu sync.Mutex
	ch publishChannel

	limMu    sync.Mutex
	limiters map[int64]*rate.Limiter
}

// NewAMQPTransport dials the broker, declares the durable topic exchange and
// puts the publishing channel in confirm mode.
func NewAMQPTransport(baseLog *logger.Logger, cfg AMQPConfig) (Transport, func() error, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil, fmt.Errorf("missing AMQP_URL")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "whatsapp.commands"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	setup, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := setup.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	_ = setup.Close()

	open := func() (publishChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("confirm mode: %w", err)
		}
		return ch, nil
	}
	t := newAMQPTransport(baseLog, cfg, open)
	t.conn = conn
	return t, t.Close, nil
}

func newAMQPTransport(baseLog *logger.Logger, cfg AMQPConfig, open func() (publishChannel, error)) *amqpTransport {
	if cfg.SendRate <= 0 {
		cfg.SendRate = 5
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 10
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 10 * time.Second
	}
	return &amqpTransport{
		log:      baseLog.With("component", "AMQPTransport"),
		cfg:      cfg,
		open:     open,
		limiters: map[int64]*rate.Limiter{},
	}
}

func (t *amqpTransport) Close() error {
	t.mu.Lock()
	if t.ch != nil {
		_ = t.ch.Close()
		t.ch = nil
	}
	t.mu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *amqpTransport) limiter(sessionID int64) *rate.Limiter {
	t.limMu.Lock()
	defer t.limMu.Unlock()
	l, ok := t.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.cfg.SendRate), t.cfg.SendBurst)
		t.limiters[sessionID] = l
	}
	return l
}

func (t *amqpTransport) channel() (publishChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch != nil {
		return t.ch, nil
	}
	ch, err := t.open()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	t.ch = ch
	return ch, nil
}

func (t *amqpTransport) dropChannel(ch publishChannel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == ch {
		_ = ch.Close()
		t.ch = nil
	}
}

// RoutingKey is wa.<session>.<kind>; gateways bind per session.
func RoutingKey(sessionID int64, kind string) string {
	return fmt.Sprintf("wa.%d.%s", sessionID, kind)
}

func (t *amqpTransport) publish(ctx context.Context, to Target, kind string, data CommandData) (string, error) {
	if to.SessionID <= 0 {
		return "", fmt.Errorf("missing whatsapp session for ticket %d", to.TicketID)
	}
	if strings.TrimSpace(to.JID) == "" {
		return "", fmt.Errorf("missing destination jid for ticket %d", to.TicketID)
	}
	if err := t.limiter(to.SessionID).Wait(ctx); err != nil {
		return "", fmt.Errorf("send rate wait: %w", err)
	}

	data.JID = to.JID
	env := Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       kind,
			CompanyID:  to.CompanyID,
			SessionID:  to.SessionID,
			TicketID:   to.TicketID,
			OccurredAt: time.Now().UTC(),
		},
		Data: data,
	}
	if td := ctxutil.GetTraceData(ctxutil.Default(ctx)); td != nil && td.TraceID != "" {
		env.Meta.CorrelationID = td.TraceID
	}
	if env.Meta.CorrelationID == "" {
		env.Meta.CorrelationID = env.Meta.ID
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          kind,
		Timestamp:     env.Meta.OccurredAt,
		AppId:         "assistflow",
	}
	key := RoutingKey(to.SessionID, kind)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := t.channel()
		if err != nil {
			return "", err
		}
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, t.cfg.Exchange, key, false, false, msg)
		if err != nil {
			lastErr = err
			if errors.Is(err, amqp.ErrClosed) {
				t.dropChannel(ch)
				continue
			}
			return "", fmt.Errorf("amqp publish %s: %w", kind, err)
		}
		if dc == nil {
			return env.Meta.ID, nil
		}
		wctx, cancel := context.WithTimeout(ctx, t.cfg.ConfirmTimeout)
		acked, err := dc.WaitContext(wctx)
		cancel()
		if err != nil {
			return "", fmt.Errorf("amqp confirm %s: %w", kind, err)
		}
		if !acked {
			return "", fmt.Errorf("amqp publish %s: broker nacked", kind)
		}
		return env.Meta.ID, nil
	}
	return "", fmt.Errorf("amqp publish %s: %w", kind, lastErr)
}

func (t *amqpTransport) SendText(ctx context.Context, to Target, text string) (string, error) {
	return t.publish(ctx, to, kindText, CommandData{Text: text})
}

func (t *amqpTransport) SendImage(ctx context.Context, to Target, image []byte, mime string, caption string) (string, error) {
	return t.publish(ctx, to, kindImage, CommandData{
		Media:   base64.StdEncoding.EncodeToString(image),
		MIME:    mime,
		Caption: caption,
	})
}

func (t *amqpTransport) SendAudio(ctx context.Context, to Target, audio []byte, mime string, ptt bool) (string, error) {
	return t.publish(ctx, to, kindAudio, CommandData{
		Media: base64.StdEncoding.EncodeToString(audio),
		MIME:  mime,
		PTT:   ptt,
	})
}

func (t *amqpTransport) SetPresence(ctx context.Context, to Target, presence string) error {
	_, err := t.publish(ctx, to, kindPresence, CommandData{Presence: presence})
	return err
}
