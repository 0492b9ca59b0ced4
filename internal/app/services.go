package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/assistflow-backend/internal/delivery"
	"github.com/yungbote/assistflow-backend/internal/functions"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt_delay"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt_dispatch"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/reply_delivery"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/run_poll"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/tool_calls"
	jobruntime "github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/jobs/sweeper"
	"github.com/yungbote/assistflow-backend/internal/jobs/worker"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/routing"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type Services struct {
	Notify    services.Notifier
	Jobs      services.JobService
	Tickets   services.TicketService
	Markers   services.DeliveryMarkers
	Functions *functions.Registry
	Composer  delivery.Composer
	Fallback  *prompt.Fallback

	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
	Sweeper     *sweeper.Sweeper
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	notify := services.NewNotifier(log, clients.Bus)
	jobs := services.NewJobService(db, log, repos.JobRun, services.DefaultRetryPolicies(cfg.JobBackoff))
	ticketSvc := services.NewTicketService(log, repos.Ticket, notify)

	var markers services.DeliveryMarkers
	if clients.Redis != nil {
		markers = services.NewRedisDeliveryMarkers(clients.Redis, cfg.DeliveryMarkerTTL)
	} else {
		markers = services.NewMemoryDeliveryMarkers(cfg.DeliveryMarkerTTL)
	}

	clock, err := functions.NewClock(cfg.Timezone)
	if err != nil {
		return Services{}, err
	}
	registry, err := functions.NewBuiltinRegistry(&functions.Deps{
		DB:                    db,
		Log:                   log,
		Tickets:               repos.Ticket,
		Contacts:              repos.Contact,
		Professionals:         repos.Professional,
		Services:              repos.Service,
		Appointments:          repos.Appointment,
		Schedules:             repos.Schedule,
		Notify:                notify,
		Clock:                 clock,
		SchedulingLinkBaseURL: cfg.SchedulingLinkBaseURL,
	}, cfg.AssistantFunctions...)
	if err != nil {
		return Services{}, fmt.Errorf("init function registry: %w", err)
	}
	log.Info("Assistant functions registered", "functions", registry.Names())

	keywords, err := routing.LoadKeywords(cfg.RoutingKeywordsFile)
	if err != nil {
		return Services{}, fmt.Errorf("load routing keywords: %w", err)
	}
	composer := delivery.NewComposer(delivery.Deps{
		Log:       log,
		Transport: clients.Transport,
		Speech:    clients.Speech,
		Images:    clients.Images,
		Tickets:   ticketSvc,
		Whatsapps: repos.Whatsapp,
		Messages:  repos.Message,
		Notify:    notify,
		Keywords:  keywords,
	})

	fallback := prompt.NewFallback(log, repos.Ticket, clients.Transport, cfg.FallbackMessage)

	jobRegistry := jobruntime.NewRegistry()
	stages := []jobruntime.Handler{
		prompt_delay.New(db, log, repos.JobRun, jobs, fallback),
		prompt_dispatch.New(db, log, clients.AI, repos.Ticket, ticketSvc, repos.JobRun, jobs, fallback, prompt_dispatch.Timing{
			Delay:        cfg.PromptDelay,
			PollInterval: cfg.RunPollInterval,
		}),
		run_poll.New(log, clients.AI, repos.Ticket, ticketSvc, jobs, fallback, cfg.RunPollInterval, cfg.RunPollMax),
		tool_calls.New(log, clients.AI, repos.Ticket, registry, jobs, fallback, cfg.RunPollInterval),
		reply_delivery.New(log, clients.AI, repos.Ticket, markers, composer, fallback),
	}
	for _, h := range stages {
		if err := jobRegistry.Register(h); err != nil {
			return Services{}, err
		}
	}

	jobWorker := worker.NewWorker(db, log, repos.JobRun, jobRegistry, notify, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	})

	var sw *sweeper.Sweeper
	if cfg.SweeperEnabled {
		sw = sweeper.New(log, repos.Ticket, repos.Message, repos.JobRun, jobs, sweeper.Config{
			Interval: cfg.SweeperInterval,
			Window:   cfg.SweeperWindow,
		})
	}

	return Services{
		Notify:      notify,
		Jobs:        jobs,
		Tickets:     ticketSvc,
		Markers:     markers,
		Functions:   registry,
		Composer:    composer,
		Fallback:    fallback,
		JobRegistry: jobRegistry,
		JobWorker:   jobWorker,
		Sweeper:     sw,
	}, nil
}
