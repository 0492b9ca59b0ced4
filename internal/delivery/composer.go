package delivery

import (
	"context"
	"fmt"
	"time"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/pkg/pointers"
	"github.com/yungbote/assistflow-backend/internal/platform/media"
	"github.com/yungbote/assistflow-backend/internal/platform/transport"
	"github.com/yungbote/assistflow-backend/internal/platform/tts"
	"github.com/yungbote/assistflow-backend/internal/routing"
	"github.com/yungbote/assistflow-backend/internal/services"
)

const (
	mediaTypeChat  = "chat"
	mediaTypeImage = "image"
	mediaTypeAudio = "audio"
)

// Reply is one assistant answer ready to go out on a ticket.
type Reply struct {
	Ticket    *types.Ticket
	Prompt    *types.Prompt
	RemoteJID string
	Text      string
	// Heartbeat is called before each paced part. Optional.
	Heartbeat func()
}

func (r Reply) beat() {
	if r.Heartbeat != nil {
		r.Heartbeat()
	}
}

// Result summarizes what Deliver did.
type Result struct {
	Mode            string
	Sent            int
	TransferredTo   int64
	SwitchedSession bool
}

// Composer turns an assistant reply into WhatsApp messages.
type Composer interface {
	Deliver(ctx context.Context, r Reply) (Result, error)
}

type Deps struct {
	Log       *logger.Logger
	Transport transport.Transport
	Speech    tts.Synthesizer
	Images    media.Fetcher
	Tickets   services.TicketService
	Whatsapps ticketrepo.WhatsappRepo
	Messages  ticketrepo.MessageRepo
	Notify    services.Notifier
	// Keywords hand the ticket back to the prompt's queue when the prompt
	// defines no relations. Nil uses routing.DefaultKeywords.
	Keywords []string

	// Sleep and Jitter pace multi-part replies. Both default to real time.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(n time.Duration) time.Duration
}

type composer struct {
	Deps
	log *logger.Logger
}

func NewComposer(d Deps) Composer {
	if d.Keywords == nil {
		d.Keywords = routing.DefaultKeywords()
	}
	if d.Sleep == nil {
		d.Sleep = sleepCtx
	}
	return &composer{Deps: d, log: d.Log.With("service", "Composer")}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *composer) Deliver(ctx context.Context, r Reply) (Result, error) {
	if r.Ticket == nil {
		return Result{}, fmt.Errorf("deliver: nil ticket")
	}
	var cfg *routing.Config
	if r.Prompt != nil {
		cfg = routing.Parse(r.Prompt.Prompt)
	}
	res := Result{Mode: cfg.ResponseMode()}

	// Captured before routing: a transfer may rebind the ticket to another
	// session, but this reply still leaves through the one the contact wrote to.
	to := transport.TicketTarget(r.Ticket, r.RemoteJID)

	if err := c.route(ctx, r, cfg, &res); err != nil {
		return res, err
	}

	var err error
	switch res.Mode {
	case routing.ModeVoice:
		err = c.sendVoice(ctx, to, r, cfg, AudioSegments(r.Text), &res)
	case routing.ModeBoth:
		if img, ok := ParseImageDirective(r.Text); ok {
			err = c.sendImage(ctx, to, r, img, &res)
		} else if HasAudioPrefix(r.Text) {
			err = c.sendVoice(ctx, to, r, cfg, AudioSegments(r.Text), &res)
		} else {
			err = c.sendText(ctx, to, r, cfg, &res)
		}
	default:
		if img, ok := ParseImageDirective(r.Text); ok {
			err = c.sendImage(ctx, to, r, img, &res)
		} else {
			err = c.sendText(ctx, to, r, cfg, &res)
		}
	}
	if err != nil {
		return res, err
	}

	if mentionsCalculating(r.Text) {
		c.presence(ctx, to, transport.PresenceComposing)
	}
	return res, nil
}

// route applies keyword routing. At most one transfer happens per reply.
func (c *composer) route(ctx context.Context, r Reply, cfg *routing.Config, res *Result) error {
	dbc := dbctx.Context{Ctx: ctx}
	t := r.Ticket
	if cfg.HasRelations() {
		rel, ok := cfg.Match(r.Text)
		if !ok {
			return nil
		}
		var whatsappID *int64
		wa, err := c.Whatsapps.FindServingQueue(dbc, t.CompanyID, rel.QueueID)
		if err != nil {
			return fmt.Errorf("find session for queue %d: %w", rel.QueueID, err)
		}
		if wa != nil && wa.ID != pointers.Int64Value(t.WhatsappID) {
			whatsappID = pointers.Int64(wa.ID)
		}
		if err := c.Tickets.Transfer(dbc, t, rel.QueueID, whatsappID); err != nil {
			return err
		}
		res.TransferredTo = rel.QueueID
		res.SwitchedSession = whatsappID != nil
		c.log.Info("Reply matched routing keyword",
			"ticket_id", t.ID, "keyword", rel.Keyword, "queue_id", rel.QueueID, "switched_session", res.SwitchedSession)
		return nil
	}
	kw, ok := routing.MatchKeyword(r.Text, c.Keywords)
	if !ok || r.Prompt == nil || r.Prompt.QueueID <= 0 {
		return nil
	}
	if err := c.Tickets.Transfer(dbc, t, r.Prompt.QueueID, nil); err != nil {
		return err
	}
	res.TransferredTo = r.Prompt.QueueID
	c.log.Info("Reply matched default keyword", "ticket_id", t.ID, "keyword", kw, "queue_id", r.Prompt.QueueID)
	return nil
}

func (c *composer) sendText(ctx context.Context, to transport.Target, r Reply, cfg *routing.Config, res *Result) error {
	useDelay := cfg != nil && cfg.UseDelay
	for _, part := range SplitParts(StripText(r.Text)) {
		r.beat()
		c.presence(ctx, to, transport.PresenceComposing)
		if useDelay {
			if err := c.Sleep(ctx, PartDelay(part, c.Jitter)); err != nil {
				return err
			}
		}
		id, err := c.Transport.SendText(ctx, to, part)
		if err != nil {
			return fmt.Errorf("send text part %d: %w", res.Sent+1, err)
		}
		res.Sent++
		c.record(ctx, r, id, part, mediaTypeChat)
	}
	return nil
}

// sendImage forwards the referenced image. A URL that cannot be fetched is
// logged and the reply ends there.
func (c *composer) sendImage(ctx context.Context, to transport.Target, r Reply, img ImageDirective, res *Result) error {
	if c.Images == nil {
		c.log.Warn("Image directive without an image fetcher", "ticket_id", r.Ticket.ID)
		return nil
	}
	data, err := c.Images.FetchImage(ctx, img.URL)
	if err != nil {
		c.log.Warn("Image fetch failed", "ticket_id", r.Ticket.ID, "url", img.URL, "error", err)
		return nil
	}
	id, err := c.Transport.SendImage(ctx, to, data.Data, data.MIME, img.Caption)
	if err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	res.Sent++
	body := img.Caption
	if body == "" {
		body = img.URL
	}
	c.record(ctx, r, id, body, mediaTypeImage)
	return nil
}

// sendVoice synthesizes and sends one voice note per segment. A segment that
// fails is logged and skipped.
func (c *composer) sendVoice(ctx context.Context, to transport.Target, r Reply, cfg *routing.Config, segments []string, res *Result) error {
	voice := ""
	if cfg != nil {
		voice = cfg.Voice
	}
	var apiKey string
	if r.Prompt != nil {
		if voice == "" {
			voice = r.Prompt.Voice
		}
		apiKey = r.Prompt.VoiceKey
	}
	for i, seg := range segments {
		r.beat()
		c.presence(ctx, to, transport.PresenceRecording)
		text := SanitizeSpeech(seg)
		if text == "" {
			continue
		}
		if c.Speech == nil {
			c.log.Warn("Voice reply without a synthesizer", "ticket_id", r.Ticket.ID)
			return nil
		}
		audio, err := c.Speech.Synthesize(ctx, tts.Request{Text: text, Voice: voice, APIKey: apiKey})
		if err != nil {
			c.log.Warn("Speech synthesis failed", "ticket_id", r.Ticket.ID, "segment", i, "error", err)
			continue
		}
		id, err := c.Transport.SendAudio(ctx, to, audio.Data, audio.MIME, true)
		if err != nil {
			c.log.Warn("Voice note send failed", "ticket_id", r.Ticket.ID, "segment", i, "error", err)
			continue
		}
		res.Sent++
		c.record(ctx, r, id, seg, mediaTypeAudio)
	}
	return nil
}

func (c *composer) presence(ctx context.Context, to transport.Target, p string) {
	if err := c.Transport.SetPresence(ctx, to, p); err != nil {
		c.log.Debug("Presence update failed", "ticket_id", to.TicketID, "presence", p, "error", err)
	}
}

// record persists a sent message and announces it. Failures here never undo
// a send that already happened.
func (c *composer) record(ctx context.Context, r Reply, id, body, mediaType string) {
	if c.Messages == nil {
		return
	}
	msg := &types.Message{
		ID:        id,
		CompanyID: r.Ticket.CompanyID,
		TicketID:  r.Ticket.ID,
		Body:      body,
		FromMe:    true,
		MediaType: mediaType,
		RemoteJID: r.RemoteJID,
	}
	if err := c.Messages.Create(dbctx.Context{Ctx: ctx}, msg); err != nil {
		c.log.Warn("Persist outbound message failed", "ticket_id", r.Ticket.ID, "message_id", id, "error", err)
		return
	}
	if c.Notify != nil {
		c.Notify.MessageCreated(ctx, r.Ticket, msg)
	}
}
