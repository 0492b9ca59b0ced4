package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/assistflow-backend/internal/app"
)

// Worker-only process: drains the job queue and runs the sweeper, no HTTP.
func main() {
	_ = godotenv.Load()

	a, err := app.New("worker")
	if err != nil {
		fmt.Printf("failed to initialize worker: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Start()
	a.Log.Info("Worker started", "stages", a.Services.JobRegistry.Types())
	<-ctx.Done()
	a.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.Close(shutdownCtx)
}
