package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/brensch/meanfield/game"
	"github.com/brensch/meanfield/logging"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	dataDirs := fs.String("data-dirs", strings.Join(defaultDataDirs(), ","), "Comma-separated list of directories containing episode parquet shards (step_row_v1)")
	refresh := fs.Duration("refresh", 30*time.Second, "Episode index refresh interval")
	live := fs.Bool("live", false, "Stream live mean-field frames on /ws/watch from an in-process flow")
	liveInterval := fs.Duration("live-interval", 500*time.Millisecond, "Delay between live frames")
	size := fs.Int("size", game.DefaultSize, "Grid size for the live flow")
	horizon := fs.Int("horizon", game.DefaultHorizon, "Horizon for the live flow")
	populations := fs.Int("populations", game.DefaultPopulations, "Population count for the live flow")
	geometry := fs.String("geometry", "square", "Grid geometry for the live flow: square or torus")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parse: %v", err)
	}

	slog.SetDefault(slog.New(logging.NewPrettyJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	roots := parseDataRoots(*dataDirs)
	slog.Info("viewer data roots", "roots", roots)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hub *Hub
	if *live {
		geom, err := game.ParseGeometry(*geometry)
		if err != nil {
			log.Fatalf("parse geometry: %v", err)
		}
		cfg := game.DefaultConfig()
		cfg.Size = *size
		cfg.Horizon = *horizon
		cfg.Populations = *populations
		cfg.Geometry = geom
		g, err := game.NewGame(cfg)
		if err != nil {
			log.Fatalf("configure live flow: %v", err)
		}
		hub = NewHub()
		go runLiveLoop(ctx, g, hub, *liveInterval)
	}

	server := NewServer(roots, *refresh, hub)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("viewer API listening", "addr", *listen, "live", *live)
	log.Fatal(srv.ListenAndServe())
}

func defaultDataDirs() []string {
	return []string{filepath.Join("data", "episodes")}
}
