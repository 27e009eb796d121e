package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcourtman/workbench-core/internal/agentsup"
	"github.com/rcourtman/workbench-core/internal/checkpoint"
	"github.com/rcourtman/workbench-core/internal/config"
	"github.com/rcourtman/workbench-core/internal/eventbus"
	"github.com/rcourtman/workbench-core/internal/procreg"
	projectregistry "github.com/rcourtman/workbench-core/internal/registry"
	routerclient "github.com/rcourtman/workbench-core/internal/router/client"
	routerconfig "github.com/rcourtman/workbench-core/internal/router/config"
	"github.com/rcourtman/workbench-core/internal/router/health"
	routersupervisor "github.com/rcourtman/workbench-core/internal/router/supervisor"
	"github.com/rcourtman/workbench-core/internal/wkblog"
	"github.com/rcourtman/workbench-core/internal/wsrelay"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var debugFlag bool
var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:     "workbench-core",
	Short:   "Supervisory core for the desktop workbench's Agent CLI, checkpoints, and router sidecar",
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("workbench-core %s\n", version)
		fmt.Printf("Built: %s\n", buildTime)
		fmt.Printf("Commit: %s\n", gitCommit)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the persisted settings and execution config",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := config.New(dataDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		settings, err := store.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("apiKeyHelper: %q\n", settings.APIKeyHelper)
		fmt.Printf("env keys: %d\n", len(settings.Env))

		execCfg, err := store.LoadExecutionConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("default_model: %q\n", execCfg.DefaultModel)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "override <home>/.claude data root")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}

func runServer() {
	wkblog.Init(debugFlag)
	logger := wkblog.For("main")

	root := dataDir()
	logger.Info().Str("data_dir", root).Msg("starting workbench-core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgStore, err := config.New(root)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize config store")
	}

	projectsRoot := filepath.Join(root, "projects")
	if err := os.MkdirAll(projectsRoot, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create projects directory")
	}

	reg, err := projectregistry.New(projectsRoot, filepath.Join(root, "hidden_projects.json"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize project registry")
	}

	hub := eventbus.NewHub()
	procs := procreg.New()

	usageLog := wkblog.For("usage")
	sup := agentsup.New(wkblog.For("agentsup"), procs, hub, func(rec agentsup.UsageRecord) {
		usageLog.Debug().
			Str("session_id", rec.SessionID).
			Str("model", rec.Model).
			Int("input_tokens", rec.InputTokens).
			Int("output_tokens", rec.OutputTokens).
			Msg("usage recorded")
	})

	checkpoints := checkpoint.NewManagerRegistry()

	relay := wsrelay.New(hub, wkblog.For("wsrelay"), nil)

	routerCfgPath := filepath.Join(root, "router", "integrated_config.json")
	routerCfg, err := routerconfig.Load(routerCfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load router config")
	}

	routerHTTP := routerclient.New("http://127.0.0.1:3456", 0)
	routerSup := routersupervisor.New()

	promRegistry := prometheus.NewRegistry()
	monitor := health.New(health.DefaultConfig(), func(pollCtx context.Context) (time.Duration, error) {
		start := time.Now()
		err := routerHTTP.Health(pollCtx)
		return time.Since(start), err
	}, func(level string, stats health.Stats) {
		logger.Warn().Str("level", level).Int("consecutive_failures", stats.ConsecutiveFailures).Msg("router health threshold crossed")
	})
	for _, c := range monitor.Collectors() {
		promRegistry.MustRegister(c)
	}
	go monitor.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		sessionID := filepath.Base(r.URL.Path)
		relay.ServeSession(w, r, sessionID)
	})

	srv := &http.Server{Addr: "127.0.0.1:9847", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("relay/metrics server exited")
		}
	}()

	watcher, err := config.NewWatcher(root, wkblog.For("config-watch"))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to start settings file watcher")
	} else {
		go watcher.Run(ctx, func(name string) {
			logger.Debug().Str("file", name).Msg("settings file changed on disk")
		})
	}

	// The registry/supervisor/checkpoint/router handles are constructed
	// (and their files loaded) at startup, but the HTTP server above only
	// serves /metrics and /sessions/; nothing in this binary calls into
	// these handles.
	_ = reg
	_ = cfgStore
	_ = sup
	_ = checkpoints
	_ = routerCfg
	_ = routerSup

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	_ = srv.Close()
}
