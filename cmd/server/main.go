package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dimiro1/banner"

	"ai-portfolio/handler"
	"ai-portfolio/internal/config"
	"ai-portfolio/internal/integrations/paramstore"
	"ai-portfolio/internal/providers"
	"ai-portfolio/internal/repository"
	"ai-portfolio/internal/telemetry"
	"ai-portfolio/internal/tools"
	"ai-portfolio/internal/usecase"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	onLambda := os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""
	if !onLambda {
		printBanner(os.Stdout)
	}

	if cfg.OtelEnabled {
		shutdown, err := telemetry.InitOTel(ctx, cfg.OtelOutputDir, version)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("failed to flush telemetry", "err", err)
			}
		}()
	}

	// ---- AWS SDK config, only when something needs it ----
	var awsCfg *aws.Config
	if cfg.StateBackend == config.StateDynamoDB || cfg.ParamPrefix != "" {
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &loaded
	}

	// ---- Clients ----
	var params paramstore.Getter
	if cfg.ParamPrefix != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(*awsCfg))
		if err != nil {
			return fmt.Errorf("create SSM client: %w", err)
		}
		params = ssmClient
	}

	sel, err := providers.Select(cfg, params)
	if err != nil {
		return err
	}
	logger.Info("llm provider selected", "provider", sel.Provider.Name(), "model", sel.Provider.Model())

	store, closeStore, err := openStore(cfg, awsCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---- Services ----
	chatOpts := []usecase.ChatOption{
		usecase.WithLogger(telemetry.Component(logger, "chat")),
		usecase.WithLimits(cfg.MaxSteps, cfg.MaxQuestionLength, cfg.MaxHistoryMessages, cfg.MaxConversationTurns),
	}
	if cfg.ModerationEnabled {
		if sel.OpenAI == nil {
			logger.Warn("moderation enabled but no OpenAI key is configured; skipping moderation")
		} else {
			chatOpts = append(chatOpts, usecase.WithModerator(sel.OpenAI))
		}
	}
	handlerOpts := []handler.Option{handler.WithLogger(telemetry.Component(logger, "http"))}
	if store != nil {
		chatOpts = append(chatOpts, usecase.WithStore(store))
		history, err := usecase.NewHistoryService(store, cfg.MaxHistoryMessages)
		if err != nil {
			return fmt.Errorf("create history service: %w", err)
		}
		handlerOpts = append(handlerOpts, handler.WithHistory(history))
	}

	chatService, err := usecase.NewChatService(sel.Provider, tools.NewPortfolioRegistry(), chatOpts...)
	if err != nil {
		return fmt.Errorf("create chat service: %w", err)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chatService, usecase.NewInfoService(cfg), handlerOpts...)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	if onLambda {
		lambda.Start(h.Handle)
		return nil
	}
	return serve(cfg.HTTPAddr, h, logger)
}

func newLogger(cfg config.Config, out io.Writer) (*slog.Logger, io.Closer, error) {
	return telemetry.NewLogger(telemetry.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: out,
	})
}

// openStore returns the configured turn store, or nil when persistence is off.
func openStore(cfg config.Config, awsCfg *aws.Config) (repository.Store, func(), error) {
	noop := func() {}
	switch cfg.StateBackend {
	case config.StateDynamoDB:
		c, err := repository.New(awsdynamodb.NewFromConfig(*awsCfg), cfg.StateTable)
		if err != nil {
			return nil, noop, fmt.Errorf("create state client: %w", err)
		}
		return c, noop, nil
	case config.StateSQLite:
		s, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, noop, nil
	}
}

func serve(addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		serverErrCh <- srv.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-serverErrCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printBanner(w io.Writer) {
	tpl := "{{ .Title \"PORTFOLIO\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(w, true, true, bytes.NewBufferString(tpl))
}
