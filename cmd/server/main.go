package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-pdf-assistant/internal/bootstrap"
	httptransport "whatsapp-pdf-assistant/internal/transport/http"
	"whatsapp-pdf-assistant/internal/transport/http/handler"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("close resources failed: %v", err)
		}
	}()

	router, webhooks := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		app.Logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal("server failed", "err", err)
		}
	}()

	waitForShutdown(app, server, webhooks)
}

func waitForShutdown(app *bootstrap.App, server *http.Server, webhooks *handler.WebhookHandler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("server shutdown failed", "err", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), app.Config.Timeouts.Webhook())
	defer drainCancel()
	if err := webhooks.Wait(drainCtx); err != nil {
		app.Logger.Warn("in-flight replies abandoned", "err", err)
	}
}
