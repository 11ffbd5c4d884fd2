package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evelang/eve-core/internal/api"
	"github.com/evelang/eve-core/internal/persist"
	"github.com/evelang/eve-core/internal/router"
	"github.com/evelang/eve-core/internal/runtime"
	"github.com/evelang/eve-core/internal/watch"
)

func main() {
	log.Println("Starting eve-core engine...")

	rtr := router.New()
	program := runtime.NewProgram(getEnvOrDefault("PROGRAM_NAME", "main"), rtr)

	// ─── Optional persistence ────────────────────────────────────────
	// DATABASE_URL is optional; without it the engine runs entirely
	// in-memory with no replay-on-start, matching spec.md §7's "persistence
	// I/O errors are fatal to the persistence thread only" policy.
	var store *persist.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		ctx := context.Background()
		s, err := persist.Connect(ctx, dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without persisting the change log: %v", err)
		} else {
			store = s
			defer store.Close()
			if err := store.InitSchema(ctx); err != nil {
				log.Printf("Warning: change log schema init failed: %v", err)
			} else if replayed, err := store.Replay(ctx); err != nil {
				log.Printf("Warning: failed to replay change log: %v", err)
			} else if len(replayed) > 0 {
				log.Printf("Replaying %d persisted changes at round 0", len(replayed))
				program.Send(runtime.RunLoopMessage{Kind: runtime.MsgTransaction, Changes: replayed})
			}
		}
	}

	// ─── Watchers ─────────────────────────────────────────────────────
	hub := watch.NewHub()
	go hub.Run()

	program.AddWatcher("console", watch.NewConsoleWatcher())
	program.AddWatcher("file", watch.NewFileWatcher(program))
	program.AddWatcher("json", watch.NewJSONWatcher(program))
	program.AddWatcher("system/timer", watch.NewTimerWatcher(program))
	program.AddWatcher("websocket", watch.NewWebSocketWatcher(hub))

	go program.Run()

	r := api.SetupRouter(program, hub)

	port := getEnvOrDefault("PORT", "5339")
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Engine listening on :%s\n", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown did not complete cleanly: %v", err)
	}
	program.Send(runtime.RunLoopMessage{Kind: runtime.MsgStop})
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
