// =============================================================================
// agentloop CLI entry point
// =============================================================================
//
//	agentloop run "task text"                 # run one task to completion
//	agentloop run --style code "task text"    # run the code agent instead
//	agentloop serve --config agentloop.yaml   # long-running, tasks via stdin, config hot-reloads
//	agentloop version                         # print version info
//	agentloop health                          # probe the configured provider
//
// =============================================================================
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentloop/agentloop/agent/codeagent"
	"github.com/agentloop/agentloop/agent/driver"
	"github.com/agentloop/agentloop/agent/toolcalling"
	"github.com/agentloop/agentloop/builtintools"
	"github.com/agentloop/agentloop/config"
	"github.com/agentloop/agentloop/memory"
	"github.com/agentloop/agentloop/monitor"
	"github.com/agentloop/agentloop/observability"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/provider/anthropic"
	"github.com/agentloop/agentloop/provider/cache"
	"github.com/agentloop/agentloop/provider/gemini"
	"github.com/agentloop/agentloop/provider/openai"
	"github.com/agentloop/agentloop/provider/openaicompat"
	"github.com/agentloop/agentloop/tokencount"
	"github.com/agentloop/agentloop/toolkit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runTask(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		err = runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "agentloop: %v\n", err)
		os.Exit(1)
	}
}

// runTask implements the `run` subcommand: spec.md §6's CLI surface is a
// positional task argument plus flags selecting the provider, the model,
// the agent style (code|tool_calling), the code agent's authorized
// imports, the registered tool list, and verbosity.
func runTask(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	style := fs.String("style", "", "agent style: tool_calling or code (overrides config)")
	providerKind := fs.String("provider", "", "provider: anthropic, openai, gemini, or openaicompat (overrides config)")
	model := fs.String("model", "", "model id (overrides config)")
	apiKey := fs.String("api-key", "", "provider API key (overrides config and env)")
	baseURL := fs.String("base-url", "", "provider base URL (overrides config)")
	authorizedImports := fs.String("authorized-imports", "", "comma-separated extra Lua globals for the code agent (os,io)")
	toolList := fs.String("tools", "final_answer,user_input,web_search,visit_webpage", "comma-separated builtin tools to register")
	verbosity := fs.Int("verbosity", 1, "log verbosity: 0 (warn), 1 (info), 2 (debug)")
	maxSteps := fs.Int("max-steps", 0, "override agent.max_steps")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("run: missing task argument\nusage: agentloop run [flags] \"<task>\"")
	}
	task := strings.Join(fs.Args(), " ")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunOverrides(cfg, *style, *providerKind, *model, *apiKey, *baseURL, *authorizedImports, *maxSteps)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.New().String()
	logger, _ := initLogger(cfg.Log, *verbosity)
	logger = logger.With(zap.String("run_id", runID))
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracing, err := observability.InitTracing(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	collector := observability.NewCollector("agentloop", logger)

	prov, err := buildProvider(ctx, cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}
	prov = provider.NewMetered(prov, collector)
	prov = provider.NewRetrying(prov, provider.RetryPolicy{MaxRetries: cfg.Provider.MaxRetries}, logger)
	prov, err = wrapCache(ctx, cfg.Cache, prov, collector, logger)
	if err != nil {
		return fmt.Errorf("build response cache: %w", err)
	}

	registry, err := buildRegistry(*toolList)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	registry.SetMetrics(collector)

	warnOnOversizedTask(logger, cfg, task)

	mem := memory.New(cfg.Agent.SystemPrompt)
	state := driver.NewAgentState()
	mon := monitor.New()

	d := driver.New(driver.Config{
		MaxSteps:         cfg.Agent.MaxSteps,
		PlanningInterval: cfg.Agent.PlanningInterval,
		Provider:         prov,
		Model:            cfg.Agent.Model,
		Monitor:          mon,
		Logger:           logger,
		AgentStyle:       cfg.Agent.Style,
		Metrics:          collector,
	})

	var runner driver.StepRunner
	switch cfg.Agent.Style {
	case "code":
		runner = codeagent.New(codeagent.Config{
			Provider: prov,
			Model:    cfg.Agent.Model,
			Registry: registry,
			State:    state,
			Executor: codeagent.ExecutorConfig{AuthorizedGlobals: cfg.Agent.AuthorizedImports},
			Logger:   logger,
		})
	default:
		runner = toolcalling.New(toolcalling.Config{
			Provider:       prov,
			Model:          cfg.Agent.Model,
			Registry:       registry,
			State:          state,
			Streaming:      cfg.Agent.StreamEnabled,
			MaxToolThreads: cfg.Agent.MaxToolThreads,
			Logger:         logger,
		})
	}

	result, runErr := d.Run(ctx, mem, task, nil, runner)
	collector.RecordRun(cfg.Agent.Style, outcomeLabel(result.State, runErr))

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	printResult(result)
	if result.State == driver.StateMaxStepsError {
		return fmt.Errorf("agent hit max steps without a final answer")
	}
	return nil
}

// runServe implements the `serve` subcommand: a long-running process that
// reads one task per line from stdin, running each to completion through a
// shared provider chain and tool registry, while a config.HotReloadManager
// watches -config on disk and re-applies Agent.MaxSteps,
// Agent.PlanningInterval, Provider.RequestsPerMinute, and the log level
// without restarting the process. Agent.Style and Agent.Model are read from
// the current config at the start of each task. The provider kind and
// credentials are fixed for the process's lifetime. This is
// the one production path that actually constructs
// config.NewHotReloadManager/config.NewFileWatcher -- `run` is a one-shot
// invocation with nothing to hot-reload into.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file (required; this is what serve watches for changes)")
	providerKind := fs.String("provider", "", "provider: anthropic, openai, gemini, or openaicompat (overrides config)")
	model := fs.String("model", "", "model id (overrides config)")
	apiKey := fs.String("api-key", "", "provider API key (overrides config and env)")
	baseURL := fs.String("base-url", "", "provider base URL (overrides config)")
	style := fs.String("style", "", "agent style: tool_calling or code (overrides config)")
	authorizedImports := fs.String("authorized-imports", "", "comma-separated extra Lua globals for the code agent (os,io)")
	toolList := fs.String("tools", "final_answer,user_input,web_search,visit_webpage", "comma-separated builtin tools to register")
	verbosity := fs.Int("verbosity", 1, "log verbosity: 0 (warn), 1 (info), 2 (debug)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("serve: -config is required (nothing to hot-reload without a file to watch)")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunOverrides(cfg, *style, *providerKind, *model, *apiKey, *baseURL, *authorizedImports, 0)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, atomicLevel := initLogger(cfg.Log, *verbosity)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracing, err := observability.InitTracing(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	collector := observability.NewCollector("agentloop", logger)

	basePro, err := buildProvider(ctx, cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}
	rateLimited, ok := basePro.(*provider.RateLimited)
	if !ok {
		return fmt.Errorf("serve: buildProvider did not return a *provider.RateLimited")
	}
	var prov provider.Provider = provider.NewMetered(basePro, collector)
	prov = provider.NewRetrying(prov, provider.RetryPolicy{MaxRetries: cfg.Provider.MaxRetries}, logger)
	prov, err = wrapCache(ctx, cfg.Cache, prov, collector, logger)
	if err != nil {
		return fmt.Errorf("build response cache: %w", err)
	}

	registry, err := buildRegistry(*toolList)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	registry.SetMetrics(collector)

	hotReload := config.NewHotReloadManager(cfg,
		config.WithConfigPath(*configPath),
		config.WithHotReloadLogger(logger))
	hotReload.OnReload(func(oldConfig, newConfig *config.Config) {
		if newConfig.Provider.RequestsPerMinute != oldConfig.Provider.RequestsPerMinute {
			rateLimited.SetRPM(newConfig.Provider.RequestsPerMinute)
			logger.Info("applied hot-reloaded requests_per_minute",
				zap.Float64("requests_per_minute", newConfig.Provider.RequestsPerMinute))
		}
		if newConfig.Log.Level != oldConfig.Log.Level {
			atomicLevel.SetLevel(parseLevel(newConfig.Log.Level))
			logger.Info("applied hot-reloaded log level", zap.String("level", newConfig.Log.Level))
		}
	})
	if err := hotReload.Start(ctx); err != nil {
		return fmt.Errorf("start hot reload: %w", err)
	}
	defer hotReload.Stop()

	logger.Info("serve: ready, reading one task per line from stdin")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && ctx.Err() == nil {
		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			continue
		}
		runOneServeTask(ctx, hotReload, prov, registry, collector, logger, task)
	}
	return scanner.Err()
}

// runOneServeTask runs a single task to completion against the live config
// snapshot: MaxSteps, PlanningInterval, Style, and Model may have changed
// since the previous task via hotReload's file watcher.
func runOneServeTask(ctx context.Context, hotReload *config.HotReloadManager, prov provider.Provider, registry *toolkit.Registry, collector *observability.Collector, logger *zap.Logger, task string) {
	cfg := hotReload.GetConfig()

	mem := memory.New(cfg.Agent.SystemPrompt)
	state := driver.NewAgentState()
	mon := monitor.New()

	d := driver.New(driver.Config{
		MaxSteps:         cfg.Agent.MaxSteps,
		PlanningInterval: cfg.Agent.PlanningInterval,
		Provider:         prov,
		Model:            cfg.Agent.Model,
		Monitor:          mon,
		Logger:           logger,
		AgentStyle:       cfg.Agent.Style,
		Metrics:          collector,
	})

	var runner driver.StepRunner
	switch cfg.Agent.Style {
	case "code":
		runner = codeagent.New(codeagent.Config{
			Provider: prov,
			Model:    cfg.Agent.Model,
			Registry: registry,
			State:    state,
			Executor: codeagent.ExecutorConfig{AuthorizedGlobals: cfg.Agent.AuthorizedImports},
			Logger:   logger,
		})
	default:
		runner = toolcalling.New(toolcalling.Config{
			Provider:       prov,
			Model:          cfg.Agent.Model,
			Registry:       registry,
			State:          state,
			Streaming:      cfg.Agent.StreamEnabled,
			MaxToolThreads: cfg.Agent.MaxToolThreads,
			Logger:         logger,
		})
	}

	result, runErr := d.Run(ctx, mem, task, nil, runner)
	collector.RecordRun(cfg.Agent.Style, outcomeLabel(result.State, runErr))
	if runErr != nil {
		logger.Error("serve: task failed", zap.Error(runErr))
		return
	}
	printResult(result)
}

// warnOnOversizedTask estimates the initial prompt size (system prompt plus
// the task text) with the model-aware tiktoken counter, degrading to
// character-based estimation for model ids it doesn't recognize, and logs a
// warning if it already exceeds the configured per-call token budget --
// before spending a request finding that out from the provider instead.
func warnOnOversizedTask(logger *zap.Logger, cfg *config.Config, task string) {
	if cfg.Agent.MaxTokens <= 0 {
		return
	}
	counter := tokencount.NewTiktokenCounter()
	estimated := counter.CountTextForModel(cfg.Agent.Model, cfg.Agent.SystemPrompt) + counter.CountTextForModel(cfg.Agent.Model, task)
	if estimated > cfg.Agent.MaxTokens {
		logger.Warn("estimated initial prompt exceeds configured max_tokens",
			zap.Int("estimated_tokens", estimated),
			zap.Int("max_tokens", cfg.Agent.MaxTokens),
		)
	}
}

func outcomeLabel(state string, err error) string {
	if err != nil {
		return "fatal_error"
	}
	if state == "" {
		return "unknown"
	}
	return state
}

// applyRunOverrides layers CLI flags on top of the loaded Config, matching
// the Default -> YAML -> Env -> CLI precedence spec.md §6 implies by
// listing flags as the outermost way to select provider/model/style.
func applyRunOverrides(cfg *config.Config, style, providerKind, model, apiKey, baseURL, authorizedImports string, maxSteps int) {
	if style != "" {
		cfg.Agent.Style = style
	}
	if providerKind != "" {
		cfg.Provider.Kind = providerKind
	}
	if model != "" {
		cfg.Agent.Model = model
	}
	if apiKey != "" {
		cfg.Provider.APIKey = apiKey
	}
	if baseURL != "" {
		cfg.Provider.BaseURL = baseURL
	}
	if authorizedImports != "" {
		cfg.Agent.AuthorizedImports = strings.Split(authorizedImports, ",")
	}
	if maxSteps > 0 {
		cfg.Agent.MaxSteps = maxSteps
	}
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// buildProvider constructs the vendor client selected by cfg.Kind and
// wraps it in the shared rate limiter, matching spec.md §5's per-model
// minimum-interval throttle. The retry wrapper is added by the caller,
// once, around whatever this returns.
func buildProvider(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (provider.Provider, error) {
	var p provider.Provider
	switch cfg.Kind {
	case "anthropic":
		p = anthropic.New(anthropic.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, logger)
	case "openai":
		p = openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}, logger)
	case "gemini":
		client, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey}, logger)
		if err != nil {
			return nil, err
		}
		p = client
	case "openaicompat", "deepseek", "glm", "kimi", "qwen", "moonshot":
		vendor := openaicompat.Vendor(cfg.Kind)
		if cfg.Kind == "openaicompat" {
			vendor = ""
		}
		p = openaicompat.New(openaicompat.Config{Vendor: vendor, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}, "", logger)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
	return provider.NewRateLimited(p, cfg.RequestsPerMinute), nil
}

// wrapCache wraps prov in a Redis-backed response cache when cfg.Enabled,
// matching spec.md's DOMAIN STACK wiring of the previously-unconstructed
// provider/cache package. A disabled config returns prov unchanged.
func wrapCache(ctx context.Context, cfg config.CacheConfig, prov provider.Provider, collector *observability.Collector, logger *zap.Logger) (provider.Provider, error) {
	if !cfg.Enabled {
		return prov, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to response cache redis at %s: %w", cfg.Addr, err)
	}
	responseCache := cache.New(rdb, cache.Config{TTL: cfg.TTL, Recorder: collector}, logger)
	return cache.NewCachingProvider(prov, responseCache), nil
}

// buildRegistry registers the requested builtin tools, rejecting names the
// CLI doesn't know how to construct (a task-specific tool server is out of
// scope for this binary per spec.md §6 -- those are wired by an embedder,
// not by the `agentloop` command itself).
func buildRegistry(toolList string) (*toolkit.Registry, error) {
	registry := toolkit.NewRegistry()
	for _, name := range strings.Split(toolList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var t toolkit.Tool
		switch name {
		case "final_answer":
			t = builtintools.FinalAnswer()
		case "user_input":
			t = builtintools.UserInput(os.Stdin, os.Stdout)
		case "web_search":
			t = builtintools.WebSearch(nil)
		case "visit_webpage":
			t = builtintools.VisitWebpage(nil, 0)
		default:
			return nil, fmt.Errorf("unknown builtin tool %q", name)
		}
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// runHealthCheck probes the configured provider directly, replacing the
// teacher's HTTP /health GET -- this binary has no server to ping.
func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prov, err := buildProvider(ctx, cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	status, err := prov.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !status.Healthy {
		return fmt.Errorf("provider %s reports unhealthy (latency %s)", cfg.Provider.Kind, status.Latency)
	}

	fmt.Printf("OK provider=%s latency=%s\n", cfg.Provider.Kind, status.Latency)
	return nil
}

func printVersion() {
	fmt.Printf("agentloop %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
}

func printResult(result driver.RunResult) {
	out := map[string]any{
		"output":            result.Output,
		"state":             result.State,
		"steps":             result.Steps,
		"prompt_tokens":     result.PromptTokens,
		"completion_tokens": result.CompletionTokens,
		"tokens_complete":   result.TokensComplete,
		"wall_time":         result.WallTime.String(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Println(result.Output)
		return
	}
	fmt.Println(string(data))
}

func printUsage() {
	fmt.Print(`agentloop - run a reason-act-observe LLM agent to completion

Usage:
  agentloop run [flags] "<task>"
  agentloop serve [flags]
  agentloop version
  agentloop health [flags]
  agentloop help

Serve reads one task per line from stdin and runs each to completion,
re-applying agent.max_steps, agent.planning_interval,
provider.requests_per_minute, and log.level from -config on every edit to
the file without restarting. -config is required.

Run flags:
  -config string              path to a YAML config file
  -style string                tool_calling or code (overrides config)
  -provider string              anthropic, openai, gemini, or openaicompat
  -model string                  model id
  -api-key string                provider API key
  -base-url string                provider base URL
  -authorized-imports string       extra Lua globals for the code agent, comma-separated (os,io)
  -tools string                    builtin tools to register, comma-separated
  -max-steps int                      override agent.max_steps
  -verbosity int                        0 (warn), 1 (info), 2 (debug)

Examples:
  agentloop run "summarize the README in this repository"
  agentloop run --style code --authorized-imports os "list files under /tmp"
  agentloop health --config config.yaml
`)
}

// initLogger builds a zap.Logger from cfg, with verbosity (0/1/2) lowering
// the effective level below whatever cfg.Level says when it asks for more
// detail than the config file does. The returned AtomicLevel is the same
// object installed into the logger's core, so serve's hot-reload callback
// can call SetLevel on it later without rebuilding the logger.
func initLogger(cfg config.LogConfig, verbosity int) (*zap.Logger, zap.AtomicLevel) {
	level := parseLevel(cfg.Level)
	switch verbosity {
	case 0:
		if level > zapcore.WarnLevel {
			level = zapcore.WarnLevel
		}
	case 2:
		level = zapcore.DebugLevel
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            atomicLevel,
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if zapConfig.Encoding != "console" {
		zapConfig.Encoding = "json"
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger, atomicLevel
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
