package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/docrect-mcp/internal/codes"
	"github.com/ironsheep/docrect-mcp/internal/config"
	"github.com/ironsheep/docrect-mcp/internal/detection"
	"github.com/ironsheep/docrect-mcp/internal/inference"
	"github.com/ironsheep/docrect-mcp/internal/pipeline"
	"github.com/ironsheep/docrect-mcp/internal/rectify"
	"github.com/ironsheep/docrect-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("docrect-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "docrect-mcp: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'docrect-mcp --help' for usage.")
		os.Exit(2)
	}

	// Log to stderr (stdout is for MCP protocol)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Debug("starting docrect-mcp", "version", Version, "built", BuildTime, "commit", GitCommit, "env_file", cfg.EnvFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, closeModels := startDetection(cfg, logger)
	defer closeModels()

	svc := pipeline.New(pipeline.Deps{
		Detector:  detector,
		Rectifier: rectify.New(cfg.Rectify(), logger),
		Extractor: codes.NewExtractor(logger),
	}, pipeline.Options{
		OutputDir:  cfg.OutputDir,
		InsetStyle: cfg.InsetStyle,
		Logger:     logger,
	})

	srv := server.New(svc, Version, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		closeModels()
		os.Exit(1)
	}
}

// startDetection installs bundled models and begins loading them in the
// background. Model problems never stop the server: detection reports them
// per request and sessions fall back to the default outline.
func startDetection(cfg config.Config, logger *slog.Logger) (pipeline.Detector, func()) {
	if cfg.BundleDir != "" {
		written, err := inference.InstallModels(os.DirFS(cfg.BundleDir), cfg.ModelsDir)
		if err != nil {
			logger.Warn("failed to install bundled models", "from", cfg.BundleDir, "to", cfg.ModelsDir, "error", err)
		} else if len(written) > 0 {
			logger.Info("installed bundled models", "dir", cfg.ModelsDir, "files", written)
		}
	}

	engine, err := inference.NewONNXEngine(cfg.ONNXLibrary)
	if err != nil {
		logger.Error("corner detection disabled", "error", err)
		return nil, func() {}
	}

	registry := inference.NewRegistry(engine, cfg.ModelsDir, logger)
	registry.Start(inference.AllModels...)

	closed := false
	return detection.NewDetector(registry, cfg.Detection(), logger), func() {
		if closed {
			return
		}
		closed = true
		if err := registry.Close(); err != nil {
			logger.Warn("failed to release models", "error", err)
		}
	}
}

func printHelp() {
	fmt.Println("docrect-mcp - MCP server for document corner detection and perspective correction")
	fmt.Println()
	fmt.Println("Usage: docrect-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v              Print version information")
	fmt.Println("  --help, -h                 Print this help message")
	fmt.Println("  -models-dir DIR            Directory holding model_heat / model_point (.onnx or .ort)")
	fmt.Println("  -bundle-dir DIR            Bundled models to install into -models-dir (\"none\" to skip)")
	fmt.Println("  -onnx-lib PATH             onnxruntime shared library")
	fmt.Println("  -output-dir DIR            Where rectified PNGs are written")
	fmt.Println("  -log-level LEVEL           debug, info, warn or error")
	fmt.Println("  -aspect RATIO              Output aspect ratio (default 16:9)")
	fmt.Println("  -heatmap-threshold N       Heatmap binarization threshold (default 0.3)")
	fmt.Println("  -presence-threshold N      Point model presence threshold (default 0.4)")
	fmt.Println("  -inset STYLE               Fallback outline: uniform or slide")
	fmt.Println("  -env-file PATH             Read settings from a .env file (default ./.env)")
	fmt.Println()
	fmt.Println("Every option can also be set as an environment variable with the")
	fmt.Println("DOCRECT_ prefix, e.g. DOCRECT_LOG_LEVEL=debug or DOCRECT_MODELS_DIR=/opt/models.")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
