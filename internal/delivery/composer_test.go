package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/assistflow-backend/internal/data/repos/testutil"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/pointers"
	"github.com/yungbote/assistflow-backend/internal/platform/media"
	"github.com/yungbote/assistflow-backend/internal/platform/transport"
	"github.com/yungbote/assistflow-backend/internal/platform/transport/transporttest"
	"github.com/yungbote/assistflow-backend/internal/platform/tts"
	"github.com/yungbote/assistflow-backend/internal/realtime/bus"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type fakeSpeech struct {
	requests []tts.Request
	failOn   string
}

func (f *fakeSpeech) Synthesize(_ context.Context, req tts.Request) (tts.Audio, error) {
	f.requests = append(f.requests, req)
	if f.failOn != "" && strings.Contains(req.Text, f.failOn) {
		return tts.Audio{}, errors.New("quota exceeded")
	}
	return tts.Audio{Data: []byte("mp3:" + req.Text), MIME: "audio/mpeg"}, nil
}

type fakeImages struct {
	urls []string
	err  error
}

func (f *fakeImages) FetchImage(_ context.Context, url string) (media.Image, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return media.Image{}, f.err
	}
	return media.Image{Data: []byte("png"), MIME: "image/png"}, nil
}

type harness struct {
	db       *gorm.DB
	bus      *bus.MemoryBus
	tr       *transporttest.Recorder
	speech   *fakeSpeech
	images   *fakeImages
	slept    []time.Duration
	composer Composer
	ticket   *types.Ticket
}

// newHarness seeds ticket 10 on session 1 (serving queue 2); session 2
// serves queue 5.
func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	require.NoError(t, db.Create(&types.Whatsapp{ID: 1, CompanyID: 1, Name: "Recepção",
		Queues: []types.Queue{{ID: 2, CompanyID: 1, Name: "IA"}}}).Error)
	require.NoError(t, db.Create(&types.Whatsapp{ID: 2, CompanyID: 1, Name: "Vendas",
		Queues: []types.Queue{{ID: 5, CompanyID: 1, Name: "Vendas"}}}).Error)
	contact := &types.Contact{ID: 3, CompanyID: 1, Name: "Ana", Number: "5511988887777"}
	require.NoError(t, db.Create(contact).Error)
	ticket := &types.Ticket{
		ID:             10,
		CompanyID:      1,
		ContactID:      3,
		QueueID:        pointers.Int64(2),
		WhatsappID:     pointers.Int64(1),
		PromptID:       pointers.Int64(4),
		Status:         "pending",
		UseIntegration: true,
	}
	require.NoError(t, db.Create(ticket).Error)
	ticket.Contact = contact

	h := &harness{
		db:     db,
		bus:    bus.NewMemoryBus(),
		tr:     &transporttest.Recorder{},
		speech: &fakeSpeech{},
		images: &fakeImages{},
		ticket: ticket,
	}
	notify := services.NewNotifier(log, h.bus)
	tickets := ticketrepo.NewTicketRepo(db, log)
	h.composer = NewComposer(Deps{
		Log:       log,
		Transport: h.tr,
		Speech:    h.speech,
		Images:    h.images,
		Tickets:   services.NewTicketService(log, tickets, notify),
		Whatsapps: ticketrepo.NewWhatsappRepo(db, log),
		Messages:  ticketrepo.NewMessageRepo(db, log),
		Notify:    notify,
		Sleep: func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		},
		Jitter: func(time.Duration) time.Duration { return 0 },
	})
	return h
}

func (h *harness) deliver(t *testing.T, config, text string) Result {
	t.Helper()
	res, err := h.composer.Deliver(context.Background(), Reply{
		Ticket:    h.ticket,
		Prompt:    &types.Prompt{ID: 4, CompanyID: 1, QueueID: 3, Prompt: config, Voice: "voz-padrao", VoiceKey: "xi-key"},
		RemoteJID: "5511988887777@s.whatsapp.net",
		Text:      text,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) reloadTicket(t *testing.T) types.Ticket {
	t.Helper()
	var got types.Ticket
	require.NoError(t, h.db.First(&got, h.ticket.ID).Error)
	return got
}

func (h *harness) countEvents(channel, action string) int {
	n := 0
	for _, ev := range h.bus.Events() {
		if ev.Channel == channel && ev.Data["action"] == action {
			n++
		}
	}
	return n
}

func TestKeywordRelationTransfersOnce(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, "assistant:asst_1||--||queue-key1:5-confirmado||--||queue-key2:7-confirmado", "Pedido confirmado!")

	assert.Equal(t, int64(5), res.TransferredTo)
	assert.True(t, res.SwitchedSession)
	got := h.reloadTicket(t)
	assert.Equal(t, int64(5), pointers.Int64Value(got.QueueID))
	assert.Equal(t, int64(2), pointers.Int64Value(got.WhatsappID))
	assert.Equal(t, "open", got.Status)
	assert.False(t, got.UseIntegration)
	assert.Nil(t, got.PromptID)
	assert.Equal(t, 1, h.countEvents("company-1-ticket", "update"))

	// The reply itself still leaves through the session the contact used.
	sends := h.tr.Sends("text")
	require.Len(t, sends, 1)
	assert.Equal(t, "Pedido confirmado!", sends[0].Text)
	assert.Equal(t, int64(1), sends[0].To.SessionID)
}

func TestKeywordRelationSameSessionKeepsBinding(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, "assistant:asst_1||--||queue-key1:2-humano", "Vou chamar um HUMANO para você")
	assert.Equal(t, int64(2), res.TransferredTo)
	assert.False(t, res.SwitchedSession)
	assert.Equal(t, int64(1), pointers.Int64Value(h.reloadTicket(t).WhatsappID))
}

func TestNoRelationNoTransfer(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, "assistant:asst_1||--||queue-key1:5-confirmado", "Posso ajudar em algo mais?")
	assert.Zero(t, res.TransferredTo)
	assert.Equal(t, int64(2), pointers.Int64Value(h.reloadTicket(t).QueueID))
}

func TestDefaultKeywordsWithoutRelations(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, "asst_legacy", "Sua compra aprovada, obrigado!")
	assert.Equal(t, int64(3), res.TransferredTo)
	assert.Equal(t, int64(3), pointers.Int64Value(h.reloadTicket(t).QueueID))
}

func TestTextModeSplitsPacesAndPersists(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, "assistant:asst_1||--||use-delay:true", "texto: Olá, Ana!\n\nTemos:\n\n- Corte\n- Barba\n\nQual prefere?")

	assert.Equal(t, 3, res.Sent)
	var texts []string
	for _, c := range h.tr.Sends("text") {
		texts = append(texts, c.Text)
		assert.Equal(t, "5511988887777@s.whatsapp.net", c.To.JID)
	}
	assert.Equal(t, []string{"Olá, Ana!", "Temos:\n- Corte\n- Barba", "Qual prefere?"}, texts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, h.slept)
	assert.Len(t, h.tr.Sends("presence"), 3)

	var msgs []types.Message
	require.NoError(t, h.db.Where("ticket_id = ?", 10).Order("id").Find(&msgs).Error)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.True(t, m.FromMe)
		assert.Equal(t, "chat", m.MediaType)
	}
	assert.Equal(t, 3, h.countEvents("company-1-appMessage", "create"))
}

func TestPacedPartsKeepJobAlive(t *testing.T) {
	h := newHarness(t)
	beats := 0
	res, err := h.composer.Deliver(context.Background(), Reply{
		Ticket:    h.ticket,
		Prompt:    &types.Prompt{ID: 4, CompanyID: 1, QueueID: 3, Prompt: "assistant:asst_1||--||use-delay:true"},
		RemoteJID: "5511988887777@s.whatsapp.net",
		Text:      "Um\n\nDois\n\nTrês",
		Heartbeat: func() { beats++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 3, beats)
}

func TestTextModeWithoutDelayDoesNotSleep(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, "assistant:asst_1", "Um\n\nDois")
	assert.Empty(t, h.slept)
	assert.Len(t, h.tr.Sends("text"), 2)
}

func TestTextModeSendFailureIsError(t *testing.T) {
	h := newHarness(t)
	h.tr.FailSends = 1
	_, err := h.composer.Deliver(context.Background(), Reply{Ticket: h.ticket, RemoteJID: "x@s.whatsapp.net", Text: "Oi"})
	assert.Error(t, err)
}

func TestImageDirective(t *testing.T) {
	h := newHarness(t)
	res := h.deliver(t, "assistant:asst_1", `image: "https://cdn.example.com/menu.png" Cardápio do dia`)

	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"https://cdn.example.com/menu.png"}, h.images.urls)
	imgs := h.tr.Sends("image")
	require.Len(t, imgs, 1)
	assert.Equal(t, "Cardápio do dia", imgs[0].Caption)
	assert.Equal(t, "image/png", imgs[0].MIME)
	assert.Empty(t, h.tr.Sends("text"))
}

func TestImageFetchFailureEndsQuietly(t *testing.T) {
	h := newHarness(t)
	h.images.err = errors.New("404")
	res := h.deliver(t, "assistant:asst_1", "image: https://cdn.example.com/missing.png")
	assert.Zero(t, res.Sent)
	assert.Empty(t, h.tr.Sends("image"))
	assert.Empty(t, h.tr.Sends("text"))
}

func TestVoiceModeSegmentsAndSkipsFailures(t *testing.T) {
	h := newHarness(t)
	h.speech.failOn = "segunda"
	res := h.deliver(t, "assistant:asst_1||--||voice:pNInz6||--||assistant-mode:voice",
		"audio: *Olá*, Ana! 😀 audio: segunda parte audio: Até logo")

	assert.Equal(t, 2, res.Sent)
	require.Len(t, h.speech.requests, 3)
	assert.Equal(t, tts.Request{Text: "Olá, Ana!", Voice: "pNInz6", APIKey: "xi-key"}, h.speech.requests[0])
	audios := h.tr.Sends("audio")
	require.Len(t, audios, 2)
	assert.True(t, audios[0].PTT)
	assert.Equal(t, "audio/mpeg", audios[0].MIME)

	var recording int
	for _, c := range h.tr.Sends("presence") {
		if c.Presence == transport.PresenceRecording {
			recording++
		}
	}
	assert.Equal(t, 3, recording)
}

func TestVoiceFallsBackToPromptVoice(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, "assistant:asst_1||--||assistant-mode:voice", "Tudo certo")
	require.Len(t, h.speech.requests, 1)
	assert.Equal(t, "voz-padrao", h.speech.requests[0].Voice)
}

func TestBothModeDispatch(t *testing.T) {
	cfg := "assistant:asst_1||--||assistant-mode:both"

	h := newHarness(t)
	h.deliver(t, cfg, "*audio:* Seu horário está confirmado")
	assert.Len(t, h.tr.Sends("audio"), 1)
	assert.Empty(t, h.tr.Sends("text"))

	h = newHarness(t)
	h.deliver(t, cfg, "texto: Seu horário está confirmado")
	assert.Len(t, h.tr.Sends("text"), 1)
	assert.Empty(t, h.tr.Sends("audio"))

	h = newHarness(t)
	h.deliver(t, cfg, "image: https://cdn.example.com/a.png")
	assert.Len(t, h.tr.Sends("image"), 1)

	h = newHarness(t)
	h.deliver(t, cfg, "Sem prefixo nenhum")
	assert.Len(t, h.tr.Sends("text"), 1)
}

func TestCalculatingKeepsTyping(t *testing.T) {
	h := newHarness(t)
	h.deliver(t, "assistant:asst_1", "Calculando o valor, um instante")
	calls := h.tr.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "presence", last.Kind)
	assert.Equal(t, transport.PresenceComposing, last.Presence)
}
