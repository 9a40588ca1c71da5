package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoquery/internal/api"
	"geoquery/pkg/agent"
	"geoquery/pkg/cache"
	"geoquery/pkg/config"
	"geoquery/pkg/db"
	"geoquery/pkg/dispatch"
	"geoquery/pkg/engine"
	"geoquery/pkg/geo"
	"geoquery/pkg/geocode"
	"geoquery/pkg/imagery"
	"geoquery/pkg/intent"
	"geoquery/pkg/llm"
	"geoquery/pkg/llm/failover"
	"geoquery/pkg/llm/gemini"
	"geoquery/pkg/llm/openai"
	"geoquery/pkg/location"
	"geoquery/pkg/logging"
	"geoquery/pkg/probe"
	"geoquery/pkg/rag"
	"geoquery/pkg/request"
	"geoquery/pkg/search"
	"geoquery/pkg/tracker"
	"geoquery/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/geoquery.yaml", "Path to config file")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("geoquery started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.PruneCache(cfg.Cache.GeocodeTTL.Std()); err != nil {
		slog.Warn("Cache pruning failed", "error", err)
	}

	tr := tracker.New()
	responseCache := cache.NewSQLiteCache(dbConn, cfg.Cache.GeocodeTTL.Std())
	rc := request.New(responseCache, tr,
		cfg.Request.Timeout.Std(), cfg.Request.Retries,
		request.NewProviderBackoff(cfg.Request.Backoff.BaseDelay.Std(), cfg.Request.Backoff.MaxDelay.Std()))

	provider, err := buildLLM(cfg, rc)
	if err != nil {
		slog.Warn("No LLM provider available; NER and intent run on fallbacks", "error", err)
		provider = nil
	}

	gaz, err := geo.NewGazetteer(gazetteerPaths()...)
	if err != nil {
		slog.Warn("Gazetteer unavailable", "error", err)
		gaz, _ = geo.NewGazetteer()
	} else if gaz.Len() > 0 {
		slog.Info("Gazetteer loaded", "places", gaz.Len())
	}

	geocoder := geocode.New(cfg.Geocoder, rc)
	parser := location.New(provider, geocoder, gaz, cfg.Geocoder.CountryBias)
	classifier := intent.New(provider)

	backend, err := imagery.NewEarthEngine(cfg.Imagery, rc)
	var eng *engine.Engine
	if err != nil {
		slog.Warn("Imagery backend unavailable; satellite analyses will fail over to search", "error", err)
	} else {
		eng = engine.New(backend, cfg.Engine, cache.NewSQLiteCache(dbConn, cfg.Cache.SampleTTL.Std()))
	}

	synth := search.NewSynthesizer(searchBackend(cfg, rc), cfg.Search)
	dispatcher := dispatch.New(engineOrNil(eng), synth, ragOrNil(cfg, rc), cfg.Dispatch)

	app := agent.New(parser, classifier, dispatcher, cfg.Engine.Deadline.Std())

	var probes []probe.Probe
	if provider != nil {
		probes = append(probes, probe.Probe{Name: "llm", Check: provider.HealthCheck, Timeout: 10 * time.Second})
	}
	if backend != nil && eng != nil {
		probes = append(probes, probe.Probe{Name: "imagery", Check: backend.Healthy, Timeout: 10 * time.Second})
	}
	if err := probe.Run(ctx, probes); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, cfg, app, tr)
}

func buildLLM(cfg *config.Config, rc *request.Client) (llm.Provider, error) {
	factories := make(map[string]llm.Factory)
	var order []string
	for _, pc := range cfg.LLM.Providers {
		pc := pc
		order = append(order, pc.Type)
		switch pc.Type {
		case "openrouter", "openai":
			factories[pc.Type] = func() (llm.Provider, error) { return openai.NewClient(pc, rc) }
		case "gemini":
			factories[pc.Type] = func() (llm.Provider, error) { return gemini.NewClient(pc) }
		default:
			slog.Warn("Unknown LLM provider type", "type", pc.Type)
		}
	}

	providers, names, err := llm.BuildChain(factories, order)
	if err != nil {
		return nil, err
	}
	chain, err := failover.New(providers, names)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// gazetteerPaths lists the bundled GeoJSON layers produced by
// cmd/shp2geojson. Missing files are fine; the gazetteer loader skips
// nothing silently, so filter here.
func gazetteerPaths() []string {
	var out []string
	for _, p := range []string{"data/places.geojson", "data/admin.geojson"} {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func searchBackend(cfg *config.Config, rc *request.Client) search.WebSearch {
	if t := search.NewTavily(cfg.Search, rc); t != nil {
		return t
	}
	return nil
}

func ragOrNil(cfg *config.Config, rc *request.Client) dispatch.RAG {
	if c := rag.New(cfg.RAG, rc); c != nil {
		return c
	}
	return nil
}

func engineOrNil(eng *engine.Engine) dispatch.AnalysisEngine {
	if eng != nil {
		return eng
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, app *agent.Agent, tr *tracker.Tracker) error {
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(app, tr).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
