// Command personacore is the CLI for the persona turn pipeline, adapted
// from the teacher's cmd/hector/main.go (alecthomas/kong command tree,
// signal-driven shutdown, config-path-then-env loading) and wired to
// pkg/turn.Orchestrator instead of the A2A server.
//
// Usage:
//
//	personacore chat --config config.yaml --user alice --bot mei
//	personacore admin clear-memory --user alice --bot mei --token $PERSONA_ADMIN_TOKEN
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/persona-core/pkg/audit"
	"github.com/kadirpekel/persona-core/pkg/config"
	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/logger"
	"github.com/kadirpekel/persona-core/pkg/metrics"
	"github.com/kadirpekel/persona-core/pkg/patchcache"
	"github.com/kadirpekel/persona-core/pkg/store"
	"github.com/kadirpekel/persona-core/pkg/telemetry"
	"github.com/kadirpekel/persona-core/pkg/turn"
)

// CLI is the top-level command tree.
type CLI struct {
	Chat  ChatCmd  `cmd:"" help:"Run an interactive chat loop against one (user,bot) pair."`
	Admin AdminCmd `cmd:"" help:"Administrative operations."`

	Config string `short:"c" help:"Path to config YAML file." type:"path"`
}

// ChatCmd reads lines from stdin, feeds each through HandleTurn, and prints
// the resulting segments with their delays.
type ChatCmd struct {
	User string `required:"" help:"External user id."`
	Bot  string `required:"" help:"Bot id."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	deps, err := buildDeps(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer deps.Close()

	orch := &turn.Orchestrator{
		Store:      deps.Store,
		Router:     deps.Router,
		Config:     deps.Config,
		Metrics:    deps.Metrics,
		PatchCache: deps.PatchCache,
		Audit:      deps.Audit,
	}

	fmt.Fprintf(os.Stderr, "personacore chat — user=%s bot=%s (Ctrl-D to quit)\n", c.User, c.Bot)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		text := scanner.Text()
		result, err := orch.HandleTurn(ctx, c.User, c.Bot, text, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}

		for i, seg := range result.FinalSegments {
			delay := 0.0
			if i < len(result.Delays) {
				delay = result.Delays[i]
			}
			fmt.Printf("[+%.1fs] %s\n", delay, seg)
		}
	}
	return scanner.Err()
}

// AdminCmd groups operator-only subcommands gated by config.AdminToken.
type AdminCmd struct {
	ClearMemory ClearMemoryCmd `cmd:"" help:"Wipe all stored memory for one (user,bot) pair."`
}

// ClearMemoryCmd implements the destructive reset path, requiring the
// configured admin token as an explicit guard against accidental use.
type ClearMemoryCmd struct {
	User         string `required:"" help:"External user id."`
	Bot          string `required:"" help:"Bot id."`
	Token        string `required:"" help:"Admin token (must match the configured admin_token)."`
	ResetProfile bool   `help:"Also regenerate the user's baseline profile from its deterministic seed."`
}

func (c *ClearMemoryCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	deps, err := buildDeps(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer deps.Close()

	if deps.Config.AdminToken == "" || c.Token != deps.Config.AdminToken {
		return fmt.Errorf("admin: token mismatch")
	}

	if err := deps.Store.ClearAllMemoryFor(ctx, c.User, c.Bot, c.ResetProfile); err != nil {
		return fmt.Errorf("admin: clearing memory: %w", err)
	}
	if deps.PatchCache != nil {
		deps.PatchCache.Invalidate(ctx, c.User)
	}
	fmt.Fprintf(os.Stderr, "cleared memory for user=%s bot=%s reset_profile=%v\n", c.User, c.Bot, c.ResetProfile)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()
	return ctx, cancel
}

// deps bundles every wired collaborator the CLI subcommands need, closed
// together on exit.
type deps struct {
	Config     *config.Config
	Store      store.Store
	Router     *llm.Router
	Metrics    *metrics.Metrics
	PatchCache *patchcache.Cache
	Audit      *audit.Publisher
	closers    []func() error
}

func (d *deps) Close() {
	for _, c := range d.closers {
		_ = c()
	}
}

func buildDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	d := &deps{Config: cfg}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	d.Store = st
	if closeStore != nil {
		d.closers = append(d.closers, closeStore)
	}

	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.Router = router

	m, err := metrics.New(metrics.Config{Namespace: cfg.MetricsNamespace, Enabled: cfg.MetricsEnabled})
	if err != nil {
		return nil, fmt.Errorf("building metrics: %w", err)
	}
	d.Metrics = m

	if _, err := telemetry.InitGlobalTracer(ctx, telemetry.Config{
		Enabled:      cfg.TracingEnabled,
		EndpointURL:  cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampling,
		ServiceName:  "personacore",
	}); err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	pc, err := patchcache.New(ctx, patchcache.Config{Addr: cfg.RedisAddr})
	if err != nil {
		slog.Warn("patch cache unavailable, falling back to store-only reads", "error", err)
	} else {
		d.PatchCache = pc
	}

	a, err := audit.New(cfg.KafkaAddr, cfg.KafkaTopic, logger.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("building audit publisher: %w", err)
	}
	d.Audit = a
	d.closers = append(d.closers, a.Close)

	return d, nil
}

func buildStore(cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.StorageDriver {
	case "fs", "":
		dsn := cfg.StorageDSN
		if dsn == "" {
			dsn = ".personacore/data"
		}
		fs, err := store.NewFSStore(dsn)
		return fs, nil, err
	case "postgres", "sqlite":
		driverName := cfg.StorageDriver
		if driverName == "sqlite" {
			driverName = "sqlite3"
		}
		db, err := sql.Open(driverName, cfg.StorageDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", cfg.StorageDriver, err)
		}
		sqlStore, err := store.NewSQLStore(db, cfg.StorageDriver)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return sqlStore, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage_driver %q", cfg.StorageDriver)
	}
}

func buildRouter(ctx context.Context, cfg *config.Config) (*llm.Router, error) {
	reg := llm.NewRegistry()

	main, err := buildInvoker(ctx, cfg, cfg.MainModel)
	if err != nil {
		return nil, fmt.Errorf("building main invoker: %w", err)
	}
	if err := reg.RegisterInvoker("main", main); err != nil {
		return nil, fmt.Errorf("registering main invoker: %w", err)
	}

	var fast, judge llm.Invoker
	if cfg.FastModel != "" {
		fast, err = buildInvoker(ctx, cfg, cfg.FastModel)
		if err != nil {
			return nil, fmt.Errorf("building fast invoker: %w", err)
		}
		if err := reg.RegisterInvoker("fast", fast); err != nil {
			return nil, fmt.Errorf("registering fast invoker: %w", err)
		}
	}
	if cfg.JudgeModel != "" {
		judge, err = buildInvoker(ctx, cfg, cfg.JudgeModel)
		if err != nil {
			return nil, fmt.Errorf("building judge invoker: %w", err)
		}
		if err := reg.RegisterInvoker("judge", judge); err != nil {
			return nil, fmt.Errorf("registering judge invoker: %w", err)
		}
	}

	slog.Info("llm invoker roles registered", "roles", reg.Names())
	return llm.NewRouter(main, fast, judge), nil
}

// buildInvoker picks a provider by the model name's prefix ("claude-..."
// routes to Anthropic; everything else, including the gemini-* default,
// routes to Gemini), matching the teacher's provider-dispatch convention
// in pkg/llms/registry.go.
func buildInvoker(ctx context.Context, cfg *config.Config, model string) (llm.Invoker, error) {
	if len(model) >= 6 && model[:6] == "claude" {
		return llm.NewAnthropicInvoker(llm.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  model,
		})
	}
	return llm.NewGeminiInvoker(ctx, llm.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  model,
	})
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("personacore"),
		kong.Description("Per-turn orchestration pipeline for a persona roleplay agent."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
