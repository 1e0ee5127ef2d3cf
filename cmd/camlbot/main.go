package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"camlbot/internal/bot"
	"camlbot/internal/config"
	"camlbot/internal/monitor"
	"camlbot/internal/sanitize"
	"camlbot/internal/session"
	"camlbot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	filter := sanitize.New()
	var reloader *sanitize.Reloader
	if cfg.DenyFile != "" {
		reloader, err = sanitize.NewReloader(filter, cfg.DenyFile)
		if err != nil {
			log.Fatalf("deny file: %v", err)
		}
	}

	client := telegram.New(telegram.DefaultBaseURL, cfg.Token)

	// The monitor is the registry's event sink but also needs the registry
	// for its session listing, so the sink indirects through a pointer set
	// right after.
	var mon *monitor.Server
	registry := session.NewRegistry(session.Config{
		Command:       cfg.Command(),
		HistoryDepth:  cfg.HistoryDepth,
		FlushInterval: cfg.FlushInterval,
	}, client, session.EventSinkFunc(func(e session.Event) {
		if mon != nil {
			mon.SessionEvent(e)
		}
	}))
	mon = monitor.New(registry)

	reaper, err := session.NewReaper(registry, cfg.IdleTimeout, cfg.SweepInterval)
	if err != nil {
		log.Fatalf("reaper: %v", err)
	}
	reaper.Start()

	var monitorServer *http.Server
	if cfg.MonitorAddr != "" {
		monitorServer = &http.Server{Addr: cfg.MonitorAddr, Handler: mon.Handler()}
		go func() {
			log.Printf("monitor listening on %s", cfg.MonitorAddr)
			if err := monitorServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("monitor server error: %v", err)
			}
		}()
	}

	router := bot.NewRouter(registry, filter, client)
	poller := bot.NewPoller(client, router)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		reaper.Stop()
		registry.Shutdown()
		if monitorServer != nil {
			monitorServer.Close()
		}
		if reloader != nil {
			reloader.Close()
		}
	}()

	log.Printf("camlbot polling for updates")
	poller.Run(ctx)
}
