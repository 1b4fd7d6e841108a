// Package main is the entry point for the terminal points admin client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/point-admin/internal/auth"
	"github.com/vyrodovalexey/point-admin/internal/client"
	"github.com/vyrodovalexey/point-admin/internal/config"
	"github.com/vyrodovalexey/point-admin/internal/slice"
	"github.com/vyrodovalexey/point-admin/internal/views"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return 1
	}

	// The terminal belongs to the UI, so logs go to a file.
	logger, err := initLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	api, err := client.New(client.Options{
		BaseURL: cfg.APIURL,
		Credentials: auth.Credentials{
			APIKey:   cfg.APIKey,
			Username: cfg.APIUsername,
			Password: cfg.APIPassword,
		},
		Timeout: cfg.RequestTimeout,
		Logger:  logger.Named("client"),
	})
	if err != nil {
		logger.Error("failed to create API client", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	points := slice.New(api, logger.Named("slice"))

	if cfg.LiveUpdates {
		events, err := api.WatchPoints(ctx)
		if err != nil {
			logger.Warn("live updates unavailable", zap.Error(err))
		} else {
			go points.Follow(ctx, events)
		}
	}

	logger.Info("starting admin client",
		zap.String("api_url", cfg.APIURL),
		zap.Bool("live_updates", cfg.LiveUpdates),
		zap.Int("page_size", cfg.PageSize),
	)

	app := views.NewApp(views.Options{
		Context:  ctx,
		Store:    points,
		Logger:   logger.Named("views"),
		Path:     initialPath(args),
		PageSize: cfg.PageSize,
	})

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()

	cancel()
	points.Wait()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("admin client failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger.Info("admin client stopped")
	return 0
}

// initialPath returns the route to open first, taken from the first
// argument. Paths without a leading slash are accepted.
func initialPath(args []string) string {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return views.ListPath
	}
	path := strings.TrimSpace(args[0])
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// initLogger builds a JSON zap logger writing to path.
func initLogger(level, path string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:    zap.NewAtomicLevelAt(zapLevel),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	}

	return zapConfig.Build()
}
