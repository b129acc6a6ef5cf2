// Package config resolves server settings from command line flags, the
// environment and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ironsheep/docrect-mcp/internal/detection"
	"github.com/ironsheep/docrect-mcp/internal/inference"
	"github.com/ironsheep/docrect-mcp/internal/rectify"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DOCRECT_"

// Config holds everything main needs to build the server.
type Config struct {
	// ModelsDir is where model_heat / model_point are loaded from.
	ModelsDir string

	// BundleDir holds models shipped next to the binary; they are copied
	// into ModelsDir on startup. Empty disables the copy.
	BundleDir string

	// ONNXLibrary is the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	ONNXLibrary string

	// OutputDir receives rectified PNGs.
	OutputDir string

	LogLevel slog.Level

	AspectRatio       float64
	HeatmapThreshold  float64
	PresenceThreshold float64
	InsetStyle        detection.InsetStyle

	// EnvFile is the .env file that was read, if any.
	EnvFile string
}

// Detection returns the detector settings.
func (c Config) Detection() detection.Config {
	return detection.Config{
		HeatmapThreshold:  c.HeatmapThreshold,
		PresenceThreshold: c.PresenceThreshold,
	}
}

// Rectify returns the rectifier settings.
func (c Config) Rectify() rectify.Config {
	return rectify.Config{AspectRatio: c.AspectRatio}
}

type rawFlags struct {
	envFile    string
	modelsDir  string
	bundleDir  string
	onnxLib    string
	outputDir  string
	logLevel   string
	aspect     string
	heatmap    string
	presence   string
	insetStyle string
}

// Parse reads flags from args (without the program name), then fills unset
// values from DOCRECT_* environment variables and finally defaults.
//
// A .env file is loaded before the environment is consulted. Variables that
// are already set win over the file. A missing default .env is ignored; a
// missing file named with -env-file is an error.
func Parse(args []string) (Config, error) {
	var raw rawFlags

	fs := flag.NewFlagSet("docrect-mcp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&raw.envFile, "env-file", "", "Path to a .env file (default .env if present)")
	fs.StringVar(&raw.modelsDir, "models-dir", "", "Directory holding model_heat and model_point")
	fs.StringVar(&raw.bundleDir, "bundle-dir", "", "Directory of bundled models to install; \"none\" disables")
	fs.StringVar(&raw.onnxLib, "onnx-lib", "", "Path to the onnxruntime shared library")
	fs.StringVar(&raw.outputDir, "output-dir", "", "Directory for rectified images")
	fs.StringVar(&raw.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&raw.aspect, "aspect", "", "Output aspect ratio, e.g. 16:9 or 1.7778")
	fs.StringVar(&raw.heatmap, "heatmap-threshold", "", "Heatmap binarization threshold in (0,1)")
	fs.StringVar(&raw.presence, "presence-threshold", "", "Point model presence threshold in (0,1)")
	fs.StringVar(&raw.insetStyle, "inset", "", "Default polygon on a detection miss: uniform or slide")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	var cfg Config

	envFile := firstNonEmpty(raw.envFile, os.Getenv(EnvPrefix+"ENV_FILE"))
	explicit := envFile != ""
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		cfg.EnvFile = envFile
	} else if explicit {
		return Config{}, fmt.Errorf("env file: %w", err)
	}

	cfg.ModelsDir = firstNonEmpty(raw.modelsDir, getEnv("MODELS_DIR", ""))
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = defaultModelsDir()
	}

	switch bundle := firstNonEmpty(raw.bundleDir, getEnv("BUNDLE_DIR", "")); bundle {
	case "none":
	case "":
		// Best effort: a binary without bundled models simply skips the copy.
		if dir, err := defaultBundleDir(); err == nil {
			cfg.BundleDir = dir
		}
	default:
		cfg.BundleDir = bundle
	}

	cfg.ONNXLibrary = firstNonEmpty(raw.onnxLib, getEnv("ONNX_LIB", ""))
	cfg.OutputDir = firstNonEmpty(raw.outputDir, getEnv("OUTPUT_DIR", filepath.Join(os.TempDir(), "docrect-mcp")))

	var errs []error

	level := firstNonEmpty(raw.logLevel, getEnv("LOG_LEVEL", "info"))
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	aspect, err := ParseAspectRatio(firstNonEmpty(raw.aspect, getEnv("ASPECT", "16:9")))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.AspectRatio = aspect

	defaults := detection.DefaultConfig()
	cfg.HeatmapThreshold, err = parseUnit("heatmap threshold", firstNonEmpty(raw.heatmap, getEnv("HEATMAP_THRESHOLD", "")), defaults.HeatmapThreshold)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PresenceThreshold, err = parseUnit("presence threshold", firstNonEmpty(raw.presence, getEnv("PRESENCE_THRESHOLD", "")), defaults.PresenceThreshold)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.InsetStyle, err = detection.ParseInsetStyle(firstNonEmpty(raw.insetStyle, getEnv("INSET", "")))
	if err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseAspectRatio accepts "W:H", "W/H" or a plain positive number.
func ParseAspectRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return rectify.DefaultAspectRatio, nil
	}

	var r float64
	if i := strings.IndexAny(s, ":/"); i >= 0 {
		w, err1 := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
		h, err2 := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
		if err1 != nil || err2 != nil || h == 0 {
			return 0, fmt.Errorf("invalid aspect ratio: %q", s)
		}
		r = w / h
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid aspect ratio: %q", s)
		}
		r = v
	}
	if !(r > 0) || r > 100 {
		return 0, fmt.Errorf("aspect ratio out of range: %q", s)
	}
	return r, nil
}

func parseUnit(name, s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0 && v < 1) {
		return 0, fmt.Errorf("%s must be a number in (0,1), got %q", name, s)
	}
	return v, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultModelsDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "docrect-mcp", "models")
	}
	return "models"
}

// defaultBundleDir is a variable so tests do not depend on where the test
// binary lives.
var defaultBundleDir = func() (string, error) {
	dir, err := inference.DefaultBundleDir()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		return "", err
	}
	return dir, nil
}
