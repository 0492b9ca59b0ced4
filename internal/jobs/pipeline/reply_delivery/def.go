package reply_delivery

import (
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/delivery"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type Pipeline struct {
	log *logger.Logger

	ai       openai.Assistants
	tickets  ticketrepo.TicketRepo
	markers  services.DeliveryMarkers
	composer delivery.Composer
	fallback *prompt.Fallback
}

func New(
	baseLog *logger.Logger,
	ai openai.Assistants,
	tickets ticketrepo.TicketRepo,
	markers services.DeliveryMarkers,
	composer delivery.Composer,
	fallback *prompt.Fallback,
) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", prompt.JobTypeDelivery),
		ai:       ai,
		tickets:  tickets,
		markers:  markers,
		composer: composer,
		fallback: fallback,
	}
}

func (p *Pipeline) Type() string { return prompt.JobTypeDelivery }
