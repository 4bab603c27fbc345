package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"video2audio/api"
	"video2audio/config"
	"video2audio/events"
	"video2audio/ffmpeg"
	"video2audio/task"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Make sure both binaries are reachable before accepting work
	for _, bin := range []string{cfg.FFBin, cfg.FFProbeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			log.Fatalf("%s not found in PATH: %v", bin, err)
		}
	}
	globalArgs, err := ffmpeg.ParseGlobalArgs(cfg.FFGlobalArgs)
	if err != nil {
		log.Fatalf("Invalid FF_GLOBAL_ARGS: %v", err)
	}

	// 3. Wire the execution stack
	runner := ffmpeg.NewExecRunner(cfg.FFDrainTimeout)
	prober := ffmpeg.NewProber(runner, cfg.FFProbeBin, cfg.FFProbeTimeout)
	engine := ffmpeg.NewEngine(runner, cfg.FFBin, globalArgs)
	var eventOpts []events.Option
	if !cfg.EventBacklog {
		eventOpts = append(eventOpts, events.WithoutBacklog())
	}
	eventCh := events.NewChannel(eventOpts...)

	var opts []task.Option
	if guard := ffmpeg.NewResourceGuard(cfg); guard.Enabled() {
		opts = append(opts, task.WithResourceChecker(guard))
	}
	taskManager, err := task.NewManager(cfg, prober, engine, eventCh, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize task manager: %v", err)
	}

	unsubscribe := eventCh.Subscribe(func(e events.Event) {
		if e.Kind != events.KindProgress {
			log.Printf("Event #%d task %s %s: %v", e.Seq, e.TaskID, e.Kind, e.Value)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Set up router and server. Requests inherit ctx so open event
	// streams end when shutdown begins.
	router := api.SetupRouter(taskManager, eventCh, cfg)
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// 5. Start background services and HTTP server
	taskManager.Start(ctx)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 6. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Server forced to shutdown: ", err)
	}

	// Running ffmpeg processes were killed with ctx; wait for their workers
	taskManager.Wait()
	unsubscribe()
	eventCh.Close()

	log.Println("Server exiting")
}
