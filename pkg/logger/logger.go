// Package logger provides a standardized, high-performance logging setup
// for the page cache engine, built on top of Zap.
//
// The engine logs at Debug on every hit, miss, eviction, promotion, and
// demotion, which under sustained load can be orders of magnitude more
// frequent than the request/transaction-level logging most consumers of
// this package are used to. Sampling is therefore a first-class part of
// this Config, not an afterthought bolted on by callers.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SamplingConfig caps how many identical log lines per second get
// through before Zap starts dropping the rest (keeping a fixed
// fraction of the overage). Left nil, no sampling is applied and every
// call site logs unconditionally — fine for low cache-pressure
// workloads, but likely to flood an "info"-heavy or debug-enabled
// deployment sitting under a hot working set.
type SamplingConfig struct {
	// Initial is the number of identical log lines let through per
	// second before sampling kicks in.
	Initial int `yaml:"initial"`
	// Thereafter is the sampling rate applied once Initial is
	// exceeded: 1-in-Thereafter lines are kept.
	Thereafter int `yaml:"thereafter"`
}

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level (e.g., "debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// Format specifies the log output format ("json" or "console").
	Format string `yaml:"format"`
	// OutputFile specifies the file to write logs to. "stdout" or "stderr"
	// can be used to log to the console.
	OutputFile string `yaml:"output_file"`
	// Service names the "service" field stamped on every log line.
	// Defaults to "pagecache" when empty, so an embedder that runs
	// several BufferPool instances in one process can still tell them
	// apart in aggregated logs without this package hardcoding a name
	// that only fits one deployment.
	Service string `yaml:"service"`
	// Sampling, if set, rate-limits repetitive per-page-operation log
	// lines (hit/miss/eviction/promotion/demotion) instead of letting
	// every one of them through.
	Sampling *SamplingConfig `yaml:"sampling"`
}

// New creates a new zap.Logger based on the provided configuration.
// It's designed to be called once per BufferPool, since Open tags the
// returned logger with a per-instance pool id via With.
func New(config Config) (*zap.Logger, error) {
	// Parse and set the log level. Defaults to "info".
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(config.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	// Configure the output writer (WriteSyncer).
	writeSyncer, err := getWriteSyncer(config.OutputFile)
	if err != nil {
		return nil, err
	}

	// Configure the encoder (how logs are formatted).
	encoder := getEncoder(config.Format)

	// Create the logger core which combines level, encoder, and writer,
	// wrapped in a sampler when the cache's per-page logging volume
	// warrants one.
	var core zapcore.Core = zapcore.NewCore(encoder, writeSyncer, logLevel)
	if s := config.Sampling; s != nil {
		core = zapcore.NewSamplerWithOptions(core, time.Second, s.Initial, s.Thereafter)
	}

	service := config.Service
	if service == "" {
		service = "pagecache"
	}

	// Create the final logger, adding the initial "service" field.
	logger := zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", service)))

	return logger, nil
}

// getEncoder selects the log encoder based on the configured format.
func getEncoder(format string) zapcore.Encoder {
	// Use a production-ready encoder configuration.
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	// Return a JSON encoder for production or a human-friendly console encoder.
	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// getWriteSyncer selects the output destination for the logs.
func getWriteSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		// Append to the file if it exists, or create it.
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(file), nil
	}
}
