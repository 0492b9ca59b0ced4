package transport

import (
	"context"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/pointers"
)

const (
	PresenceComposing = "composing"
	PresenceRecording = "recording"
	PresencePaused    = "paused"
)

// Target addresses one chat on one company's WhatsApp session.
type Target struct {
	CompanyID int64
	SessionID int64
	TicketID  int64
	JID       string
}

// TicketTarget addresses the ticket's chat on its current session. remoteJID
// wins over the address derived from the contact's number.
func TicketTarget(t *types.Ticket, remoteJID string) Target {
	if t == nil {
		return Target{JID: remoteJID}
	}
	jid := remoteJID
	if jid == "" && t.Contact != nil {
		jid = t.Contact.JID()
	}
	return Target{
		CompanyID: t.CompanyID,
		SessionID: pointers.Int64Value(t.WhatsappID),
		TicketID:  t.ID,
		JID:       jid,
	}
}

// Transport sends outbound WhatsApp commands. Send methods return the id the
// command was published under, used as the persisted message id.
type Transport interface {
	SendText(ctx context.Context, to Target, text string) (string, error)
	SendImage(ctx context.Context, to Target, image []byte, mime string, caption string) (string, error)
	SendAudio(ctx context.Context, to Target, audio []byte, mime string, ptt bool) (string, error)
	SetPresence(ctx context.Context, to Target, presence string) error
}
