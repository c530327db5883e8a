// Command roomload turns DXF floor plans into room electrical-load reports.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/roomload-go/internal/domain/usecases"
	"github.com/0xcro3dile/roomload-go/internal/infrastructure/config"
	httpserver "github.com/0xcro3dile/roomload-go/internal/infrastructure/http"
	"github.com/0xcro3dile/roomload-go/internal/infrastructure/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "roomload",
	Short: "Room electrical-load reports from DXF floor plans",
	Long: `roomload reads a DXF floor plan, finds the labelled rooms, classifies
each room type against reference rates and reports connected and demand
loads per room, per category and for the whole building.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.dxf>",
	Short: "Analyze one drawing and print its report",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Analyze drawings as they are written to a directory",
	Long: `Watches a directory for .dxf files. Each new or modified drawing is
analyzed and its report written next to it as <name>.report.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <paths...>",
	Short: "Add reference documents to the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DefaultConfig().Save(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

var (
	climateFlag bool
	outputFlag  string
	addrFlag    string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "roomload.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	analyzeCmd.Flags().BoolVar(&climateFlag, "climate", false, "include climate-control loads")
	analyzeCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "write the report to a file instead of stdout")
	watchCmd.Flags().BoolVar(&climateFlag, "climate", false, "include climate-control loads")
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(analyzeCmd, serveCmd, watchCmd, ingestCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func climate(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("climate") {
		return climateFlag
	}
	return cfg.Pipeline.IncludeClimateControl
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	content, err := a.drawings.ReadFile(args[0])
	if err != nil {
		return err
	}
	report, err := a.analyze.Analyze(ctx, content, usecases.AnalyzeOptions{IncludeClimateControl: climate(cmd)})
	if err != nil {
		return err
	}

	if outputFlag != "" {
		return usecases.WriteReport(outputFlag, report)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	addr := cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}
	srv := httpserver.NewServer(a.analyze, a.ingest, a.drawings, a.documents, a.metrics, httpserver.Options{
		Addr:           addr,
		ReadTimeout:    config.Duration(cfg.Server.ReadTimeout, 0),
		WriteTimeout:   config.Duration(cfg.Server.WriteTimeout, 0),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ClimateDefault: cfg.Pipeline.IncludeClimateControl,
	}, logger)
	return srv.Start(ctx)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.Watch.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no directory given (pass one or set watch.dir)")
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := filewatcher.NewFSNotifyWatcher(nil, logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Stop()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	uc := usecases.NewWatchUseCase(watcher, a.drawings, a.analyze,
		usecases.AnalyzeOptions{IncludeClimateControl: climate(cmd)},
		config.Duration(cfg.Watch.Debounce, 0), logger)
	logger.Info("watching for drawings", zap.String("dir", dir))
	return uc.Run(ctx, dir)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && a.documents.Supports(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported documents found (extensions: %v)", a.documents.SupportedExtensions())
	}

	total := 0
	for _, path := range files {
		n, err := a.ingest.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		total += n
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", path, n)
	}
	logger.Info("ingest complete", zap.Int("documents", len(files)), zap.Int("chunks", total))
	return nil
}
