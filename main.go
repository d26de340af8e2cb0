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

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	maps, err := LoadMapDir(cfg.MapsDir, cfg.GridWidth, cfg.GridHeight)
	if err != nil {
		log.Fatalf("maps: %v", err)
	}

	db, err := OpenResultsDB(cfg.ResultsDSN)
	if err != nil {
		log.Fatalf("results db: %v", err)
	}
	defer db.Close()
	recorder := NewRecorder(db)
	defer recorder.Stop()

	game := NewGame(cfg, maps)
	game.SetResults(recorder)
	hub := NewHub(game)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub, cfg, db)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return game.Run(ctx, hub) })
	g.Go(func() error {
		log.Printf("server starting on %s with %d maps", cfg.Addr, maps.Len())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
}
