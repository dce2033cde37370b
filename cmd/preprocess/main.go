package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/azybler/ch_router/pkg/ch"
	"github.com/azybler/ch_router/pkg/graph"
	osmparser "github.com/azybler/ch_router/pkg/osm"
)

type config struct {
	input, output string
	bound         orb.Bound
	maxSettled    int
	maxHops       int
	coreCutoff    int
	workers       int
}

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "graph.bin", "Output binary graph file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	singapore := flag.Bool("singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	kl := flag.Bool("kl", false, "Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)")
	maxSettled := flag.Int("witness-settled", 500, "Settled-vertex limit of each witness search")
	maxHops := flag.Int("witness-hops", 5, "Hop limit of each witness search")
	coreCutoff := flag.Int("core-shortcuts", 1000, "Stop contracting once a vertex would need this many shortcuts (0 = never)")
	workers := flag.Int("workers", 0, "Workers for initial priorities (0 = GOMAXPROCS)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--output graph.bin] [--singapore | --kl | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config{
		input:      *input,
		output:     *output,
		maxSettled: *maxSettled,
		maxHops:    *maxHops,
		coreCutoff: *coreCutoff,
		workers:    *workers,
	}

	// Parse bbox option.
	switch {
	case *kl:
		cfg.bound = bound(2.75, 101.2, 3.5, 102.0)
	case *singapore:
		cfg.bound = bound(1.15, 103.6, 1.48, 104.1)
	case *bbox != "":
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			logger.Fatal("invalid bbox format (expected minLat,minLng,maxLat,maxLng)", zap.Error(err))
		}
		cfg.bound = bound(minLat, minLng, maxLat, maxLng)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("preprocessing failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	opts := osmparser.ParseOptions{Logger: logger, Bound: cfg.bound}
	if opts.Bound != (orb.Bound{}) {
		logger.Info("using bounding box filter",
			zap.Float64s("min", opts.Bound.Min[:]),
			zap.Float64s("max", opts.Bound.Max[:]),
		)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	f, err := os.Open(cfg.input)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	parseResult, err := osmparser.Parse(ctx, f, opts)
	if err != nil {
		return fmt.Errorf("parse OSM data: %w", err)
	}
	logger.Info("parsed", zap.Int("edges", len(parseResult.Edges)), zap.Int("nodes", len(parseResult.Coords)))

	// Step 2: Build graph.
	g, tags := graph.Build(parseResult)
	logger.Info("graph built",
		zap.Uint32("vertices", g.NumVertices()),
		zap.Int("arcs", g.NumArcs()),
		zap.Int("tag_sets", tags.Len()),
	)

	// Step 3: Extract largest connected component.
	members := graph.LargestComponent(g)
	if g.NumVertices() > 0 {
		logger.Info("largest component",
			zap.Uint64("vertices", members.GetCardinality()),
			zap.Float64("percent", float64(members.GetCardinality())/float64(g.NumVertices())*100),
		)
	}
	g = graph.FilterToComponent(g, members)

	// Step 4: Contract.
	chOpts := ch.DefaultOptions()
	chOpts.MaxSettled = cfg.maxSettled
	chOpts.MaxHops = cfg.maxHops
	chOpts.MaxShortcutsPerVertex = cfg.coreCutoff
	chOpts.Workers = cfg.workers
	chOpts.Logger = logger
	stats, err := ch.Contract(ctx, g, chOpts)
	if err != nil {
		return fmt.Errorf("contract: %w", err)
	}
	logger.Info("contraction complete",
		zap.Int("contracted", stats.Contracted),
		zap.Int("core", stats.Core),
		zap.Int("shortcuts", stats.Shortcuts),
		zap.Int("lazy_updates", stats.Lazy),
	)

	// Step 5: Serialize to binary.
	if err := graph.WriteBinary(cfg.output, g, tags); err != nil {
		return fmt.Errorf("write binary: %w", err)
	}

	info, err := os.Stat(cfg.output)
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	logger.Info("done",
		zap.Duration("elapsed", time.Since(start).Round(time.Second)),
		zap.String("output", cfg.output),
		zap.Int("edges", len(g.Edges())),
		zap.Float64("size_mb", float64(info.Size())/(1024*1024)),
	)
	return nil
}

func bound(minLat, minLng, maxLat, maxLng float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}
}
