package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/azybler/ch_router/pkg/api"
	"github.com/azybler/ch_router/pkg/graph"
	"github.com/azybler/ch_router/pkg/routing"
)

func main() {
	graphPath := flag.String("graph", "graph.bin", "Path to preprocessed graph binary")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	cacheSize := flag.Int("cache-size", 4096, "Coordinate resolution cache entries")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	start := time.Now()

	// Load graph.
	g, tags, err := graph.ReadBinary(*graphPath)
	if err != nil {
		logger.Fatal("failed to load graph", zap.String("path", *graphPath), zap.Error(err))
	}

	// Build routing engine, including the arc index for coordinate lookups.
	engine := routing.NewEngine(g, tags, logger)
	logger.Info("ready", zap.Duration("load_time", time.Since(start).Round(time.Millisecond)))

	// Setup HTTP server.
	cfg := api.DefaultConfig(fmt.Sprintf(":%d", *port))
	cfg.CORSOrigin = *corsOrigin
	cfg.CacheSize = *cacheSize

	stats := api.StatsResponse{
		NumVertices:    g.NumVertices(),
		NumArcs:        g.NumArcs(),
		NumShortcuts:   g.NumShortcuts(),
		NumIndexedArcs: engine.Resolver().Len(),
		NumTagSets:     tags.Len(),
	}

	handlers, err := api.NewHandlers(engine, stats, cfg.CacheSize, logger)
	if err != nil {
		logger.Fatal("failed to create handlers", zap.Error(err))
	}
	srv := api.NewServer(cfg, handlers, logger)

	if err := api.ListenAndServe(srv, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
