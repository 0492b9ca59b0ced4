package app

import (
	"gorm.io/gorm"

	httpapi "github.com/yungbote/assistflow-backend/internal/http"
	httpH "github.com/yungbote/assistflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/assistflow-backend/internal/http/middleware"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health  *httpH.HealthHandler
	Inbound *httpH.InboundHandler
	Job     *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, repos Repos, services Services) (Handlers, error) {
	log.Info("Wiring handlers...")
	sqlDB, err := db.DB()
	if err != nil {
		return Handlers{}, err
	}
	return Handlers{
		Health:  httpH.NewHealthHandler(sqlDB),
		Inbound: httpH.NewInboundHandler(log, services.Jobs, repos.Message),
		Job:     httpH.NewJobHandler(services.Jobs),
	}, nil
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.InboundJWTSecret == "" {
		log.Warn("INBOUND_JWT_SECRET not set; inbound requests will be rejected")
	}
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.InboundJWTSecret),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *httpapi.Server {
	return httpapi.NewServer(cfg.HTTPAddr, httpapi.RouterConfig{
		Log:            log,
		ServiceName:    otelServiceName(cfg),
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: middleware.Auth,
		InboundHandler: handlers.Inbound,
		JobHandler:     handlers.Job,
		HealthHandler:  handlers.Health,
	})
}

// otelServiceName enables the gin tracing middleware only when tracing is on.
func otelServiceName(cfg Config) string {
	if !cfg.OtelEnabled {
		return ""
	}
	return cfg.ServiceName
}
