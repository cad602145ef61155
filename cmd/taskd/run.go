package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/admission"
	"github.com/fyrsmithlabs/taskd/internal/config"
	taskdhttp "github.com/fyrsmithlabs/taskd/internal/http"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/mode"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/provider/anthropic"
	"github.com/fyrsmithlabs/taskd/internal/provider/mcptool"
	"github.com/fyrsmithlabs/taskd/internal/provider/openai"
	"github.com/fyrsmithlabs/taskd/internal/telemetry"
	"github.com/fyrsmithlabs/taskd/internal/todo"
)

var tasksFile string

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Execute a request through the orchestration engine",
	Long: `Execute a request: decompose it into a todo list, run the items
against the configured MCP tool servers, verify each outcome, and
print the run summary.

With --tasks, a pre-built task list is loaded from a JSON file and
executed directly, skipping decomposition.

Examples:
  # Decompose and execute a request
  taskd run "download the sales report and summarize it"

  # Execute a pre-built task list
  taskd run --tasks tasks.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEngine,
}

func init() {
	runCmd.Flags().StringVar(&tasksFile, "tasks", "", "pre-built task list JSON file to execute")
}

func runEngine(cmd *cobra.Command, args []string) error {
	if tasksFile == "" && len(args) == 0 {
		return fmt.Errorf("a request argument or --tasks is required")
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	logger.Info(ctx, "starting run",
		zap.String("run_id", runID),
		zap.String("reasoner", cfg.Providers.Reasoner),
		zap.Int("mcp_servers", len(cfg.Providers.MCPServers)),
	)

	tel, err := telemetry.New(ctx, telemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	if !tel.Healthy() {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", tel.DegradedReason()))
	}

	capability, err := connectCapability(ctx, cfg, logger.Zap())
	if err != nil {
		return fmt.Errorf("connect capability servers: %w", err)
	}
	defer capability.Close()

	reasoner, err := buildReasoner(cfg, capability, logger.Zap())
	if err != nil {
		return fmt.Errorf("initialize reasoner: %w", err)
	}

	admitted, err := provider.NewAdmitted(admissionConfig(cfg.Admission), reasoner, logger.Zap())
	if err != nil {
		return fmt.Errorf("initialize admission gate: %w", err)
	}
	defer admitted.Close()

	engine, err := orchestrator.New(admitted, capability, engineConfig(cfg), logger.Zap(),
		orchestrator.WithEvents(eventLogger(ctx, logger)),
	)
	if err != nil {
		return fmt.Errorf("initialize orchestrator: %w", err)
	}

	if cfg.Server.Addr != "" {
		srv := taskdhttp.NewServer(admitted, logger.Zap(), taskdhttp.Config{
			Addr:        cfg.Server.Addr,
			ReadTimeout: time.Duration(cfg.Server.ReadTimeout),
		})
		go func() {
			if err := srv.Start(); err != nil {
				logger.Warn(ctx, "ops server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	summary, err := dispatch(ctx, engine, logger, args)
	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), summary.SummaryText)
		fmt.Fprintf(cmd.OutOrStdout(), "completed %d/%d (%.0f%%)\n",
			summary.CompletedCount, summary.TotalCount, summary.SuccessRate*100)
	}
	return err
}

// dispatch routes the run through the mode machine. --tasks enters DEV
// with the file path and hands the loaded list to TASK; otherwise the
// request goes straight to TASK for decomposition.
func dispatch(ctx context.Context, engine *orchestrator.Orchestrator, logger *logging.Logger, args []string) (*orchestrator.Summary, error) {
	machine := mode.NewMachine(logger.Zap())

	machine.Bind(mode.StateDev, mode.HandlerFunc(func(ctx context.Context, input string) (*mode.Result, error) {
		list, err := loadTaskFile(input)
		if err != nil {
			return nil, err
		}
		return &mode.Result{TaskList: list}, nil
	}))

	machine.Bind(mode.StateTask, mode.HandlerFunc(func(ctx context.Context, input string) (*mode.Result, error) {
		list, ok := machine.TakeTaskList()
		if !ok {
			var err error
			list, err = engine.Decompose(ctx, input)
			if err != nil {
				return nil, fmt.Errorf("decompose request: %w", err)
			}
			logger.Info(ctx, "request decomposed", zap.Int("items", len(list.Items())))
		}
		summary, err := engine.Run(ctx, list)
		return &mode.Result{Output: summary}, err
	}))

	if tasksFile != "" {
		if err := machine.Transition(mode.StateDev); err != nil {
			return nil, err
		}
		if _, err := machine.ExecuteHandler(logging.WithMode(ctx, string(mode.StateDev)), tasksFile); err != nil {
			return nil, fmt.Errorf("load task list: %w", err)
		}
	}

	if err := machine.Transition(mode.StateTask); err != nil {
		return nil, err
	}
	var request string
	if len(args) > 0 {
		request = args[0]
	}
	result, err := machine.ExecuteHandler(logging.WithMode(ctx, string(mode.StateTask)), request)

	var summary *orchestrator.Summary
	if result != nil {
		summary, _ = result.Output.(*orchestrator.Summary)
	}
	return summary, err
}

// connectCapability spawns the configured MCP servers and caches their
// tool catalogs.
func connectCapability(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*mcptool.Capability, error) {
	if len(cfg.Providers.MCPServers) == 0 {
		return nil, fmt.Errorf("no MCP servers configured")
	}
	servers := make([]mcptool.ServerConfig, 0, len(cfg.Providers.MCPServers))
	for _, s := range cfg.Providers.MCPServers {
		servers = append(servers, mcptool.ServerConfig{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
		})
	}
	capability := mcptool.New(logger)
	if err := capability.Connect(ctx, servers); err != nil {
		return nil, err
	}
	return capability, nil
}

// buildReasoner creates the configured reasoning backend.
func buildReasoner(cfg *config.Config, capability provider.Capability, logger *zap.Logger) (provider.Reasoner, error) {
	switch cfg.Providers.Reasoner {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:    cfg.Providers.Anthropic.APIKey.Value(),
			BaseURL:   cfg.Providers.Anthropic.BaseURL,
			Model:     cfg.Providers.Anthropic.Model,
			MaxTokens: cfg.Providers.Anthropic.MaxTokens,
		}, capability, logger)
	case "openai":
		return openai.New(openai.Config{
			APIKey:          cfg.Providers.OpenAI.APIKey.Value(),
			BaseURL:         cfg.Providers.OpenAI.BaseURL,
			Model:           cfg.Providers.OpenAI.Model,
			MaxOutputTokens: cfg.Providers.OpenAI.MaxOutputTokens,
		}, capability, logger)
	default:
		return nil, fmt.Errorf("unknown reasoner %q", cfg.Providers.Reasoner)
	}
}

// admissionConfig maps the file configuration onto admission defaults,
// keeping defaults for fields left zero.
func admissionConfig(cfg config.AdmissionConfig) admission.Config {
	out := admission.DefaultConfig()
	if cfg.QueueCeiling > 0 {
		out.QueueCeiling = cfg.QueueCeiling
	}
	if cfg.BatchWindow > 0 {
		out.BatchWindow = time.Duration(cfg.BatchWindow)
	}
	if cfg.MaxBatchSize > 0 {
		out.MaxBatchSize = cfg.MaxBatchSize
	}
	if cfg.MinDelay > 0 {
		out.MinDelay = time.Duration(cfg.MinDelay)
	}
	if cfg.MaxDelay > 0 {
		out.MaxDelay = time.Duration(cfg.MaxDelay)
	}
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBaseDelay > 0 {
		out.RetryBaseDelay = time.Duration(cfg.RetryBaseDelay)
	}
	if cfg.DispatchTimeout > 0 {
		out.DispatchTimeout = time.Duration(cfg.DispatchTimeout)
	}
	if cfg.RatePerSecond > 0 {
		out.RatePerSecond = cfg.RatePerSecond
	}
	if cfg.Burst > 0 {
		out.Burst = cfg.Burst
	}
	if cfg.UnhealthyErrorRate > 0 {
		out.UnhealthyErrorRate = cfg.UnhealthyErrorRate
	}
	return out
}

// telemetryConfig maps the file configuration onto telemetry defaults.
// The insecure flag is only honored for explicitly configured
// endpoints; the local default stays insecure.
func telemetryConfig(cfg config.TelemetryConfig) *telemetry.Config {
	out := telemetry.NewDefaultConfig()
	out.Enabled = cfg.Enabled
	if cfg.Endpoint != "" {
		out.Endpoint = cfg.Endpoint
		out.Insecure = cfg.Insecure
	}
	if cfg.Protocol != "" {
		out.Protocol = cfg.Protocol
	}
	if cfg.ServiceName != "" {
		out.ServiceName = cfg.ServiceName
	}
	if cfg.SampleRate > 0 {
		out.SampleRate = cfg.SampleRate
	}
	if cfg.MetricInterval > 0 {
		out.MetricInterval = time.Duration(cfg.MetricInterval)
	}
	return out
}

// engineConfig maps the file configuration onto the orchestrator.
func engineConfig(cfg *config.Config) orchestrator.Config {
	out := orchestrator.DefaultConfig()
	if cfg.Orchestrator.Concurrency > 0 {
		out.Concurrency = cfg.Orchestrator.Concurrency
	}
	if len(cfg.Validation.Chain) > 0 {
		out.Validation.Chain = cfg.Validation.Chain
	}
	out.Validation.EarlyRejection = !cfg.Validation.DisableEarlyRejection
	if cfg.Verification.CacheTTL > 0 {
		out.Verification.CacheTTL = time.Duration(cfg.Verification.CacheTTL)
	}
	if cfg.Verification.CacheSize > 0 {
		out.Verification.CacheSize = cfg.Verification.CacheSize
	}
	return out
}

// eventLogger logs per-stage run events. Failures log at warn, the
// rest at debug.
func eventLogger(ctx context.Context, logger *logging.Logger) orchestrator.EventFunc {
	return func(ev orchestrator.Event) {
		fields := []zap.Field{
			zap.String("item_id", ev.ItemID),
			zap.String("stage", string(ev.Stage)),
			zap.String("outcome", string(ev.Outcome)),
		}
		if ev.Detail != "" {
			fields = append(fields, zap.String("detail", ev.Detail))
		}
		if ev.Outcome == orchestrator.OutcomeFailed {
			logger.Warn(ctx, "stage failed", fields...)
			return
		}
		logger.Debug(ctx, "stage event", fields...)
	}
}

// taskFile is the --tasks JSON document.
type taskFile struct {
	Request string       `json:"request"`
	Items   []*todo.Item `json:"items"`
}

// loadTaskFile reads a pre-built task list. Missing statuses and
// attempt budgets get the same defaults decomposition applies.
func loadTaskFile(path string) (*todo.List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf taskFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}
	if len(tf.Items) == 0 {
		return nil, fmt.Errorf("task file has no items")
	}

	list := todo.NewList(tf.Request)
	for i, item := range tf.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("task file item %d has no id", i)
		}
		if item.Status == "" {
			item.Status = todo.StatusPending
		}
		if item.Priority == "" {
			item.Priority = todo.PriorityNormal
		}
		if item.MaxAttempts <= 0 {
			item.MaxAttempts = todo.DefaultMaxAttempts
		}
		if err := list.Add(item); err != nil {
			return nil, fmt.Errorf("task file item %q: %w", item.ID, err)
		}
	}
	return list, nil
}
