package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	chatMetrics "petchat/internal/chat/metrics"
	"petchat/internal/chat/models"
	"petchat/internal/chat/service"
	"petchat/internal/chat/transport"
	"petchat/internal/chat/workers/flush"
	"petchat/internal/connection"
	"petchat/internal/platform/config"
	"petchat/internal/platform/health"
	"petchat/internal/platform/logger"
	"petchat/internal/platform/tracer"
	rlConfig "petchat/internal/ratelimit/config"
	rlMetrics "petchat/internal/ratelimit/metrics"
	"petchat/internal/ratelimit/registry"
	request "petchat/pkg/platform/middleware/request"
)

const shutdownTimeout = 10 * time.Second

func runConnect(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromEnv()
	cfg.ChatURL = cmd.String("url")
	cfg.AdminAddr = cmd.String("admin-addr")
	chatID := cmd.String("chat-id")
	log := logger.New(cfg.LogLevel)

	tok := cfg.Token
	if tok == "" && cmd.String("user-id") != "" {
		minted, err := mintToken(cfg.SigningKey, cmd.String("user-id"), cfg.TokenTTL)
		if err != nil {
			return err
		}
		tok = minted
	}

	limitCfg := rlConfig.FromEnv()
	if err := limitCfg.Validate(); err != nil {
		return fmt.Errorf("rate limit config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := chatMetrics.New(reg)

	out := cmd.Root().Writer
	tracker := connection.NewTracker()
	client, err := transport.New(cfg.ChatURL, tok, tracker,
		transport.WithLogger(log),
		transport.WithMetrics(metrics),
		transport.WithReconnect(cfg.ReconnectAttempts, cfg.ReconnectDelay),
		transport.WithInboundHandler(printInbound(out, log)),
	)
	if err != nil {
		return err
	}

	limits, err := registry.New(limitCfg,
		registry.WithLogger(log),
		registry.WithMetrics(rlMetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	session, err := service.New(client, tracker, limits,
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithTracer(tracer.NewOTel()),
	)
	if err != nil {
		return err
	}

	worker, err := flush.New(session, flush.WithInterval(cfg.FlushInterval), flush.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker.OnChange(rejoinThenFlush(ctx, session, worker, chatID, log))

	srv := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: newAdminRouter(adminDeps{
			logger:      log,
			gatherer:    reg,
			reqMetrics:  request.NewMetrics(reg),
			health:      health.New(cfg.Environment, health.WithConnection(tracker)),
			rateLimits:  limits,
			chatSession: session,
			chatState:   tracker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting chat client",
		"chat_url", cfg.ChatURL,
		"chat_id", chatID,
		"admin_addr", cfg.AdminAddr,
		"environment", cfg.Environment,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(ctx) })
	g.Go(func() error { return worker.Start(ctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return sendLines(ctx, os.Stdin, out, session, chatID, log) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("chat client stopped")
		return nil
	}
	return err
}

// chatJoiner and flushTrigger are the parts of the session and flush worker
// the reconnect hook drives.
type chatJoiner interface {
	JoinChat(ctx context.Context, chatID string) error
}

type flushTrigger interface {
	Trigger()
}

// rejoinThenFlush returns a tracker listener for every transition to
// connected. Memberships die with the socket, so it rejoins chatID first and
// only then wakes the flush worker; queued messages never reach the server
// ahead of the join.
func rejoinThenFlush(ctx context.Context, joiner chatJoiner, flusher flushTrigger, chatID string, log *slog.Logger) connection.Listener {
	return func(_, to connection.Status) {
		if to != connection.StatusConnected {
			return
		}
		go func() {
			if err := joiner.JoinChat(ctx, chatID); err != nil {
				log.WarnContext(ctx, "failed to join chat", "chat_id", chatID, "error", err)
			}
			flusher.Trigger()
		}()
	}
}

// sendLines sends each non-blank line of in as a text message. It returns
// nil at EOF and leaves the rest of the client running.
func sendLines(ctx context.Context, in io.Reader, out io.Writer, session *service.Session, chatID string, log *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				log.InfoContext(ctx, "stdin closed")
				return nil
			}
			if line == "" {
				continue
			}
			sendLine(ctx, out, session, chatID, line)
		}
	}
}

func sendLine(ctx context.Context, out io.Writer, session *service.Session, chatID, line string) {
	result, err := session.SendMessage(ctx, models.SendMessageRequest{
		ChatID:      chatID,
		Content:     line,
		MessageType: models.MessageTypeText,
	})
	switch {
	case err != nil:
		if retryAfter, ok := service.RetryAfter(err); ok {
			fmt.Fprintf(out, "! slow down, you can send again in %s\n", retryAfter.Round(time.Second))
			return
		}
		fmt.Fprintf(out, "! not sent: %v\n", err)
	case result.Queued:
		fmt.Fprintf(out, "~ offline, queued (%d pending)\n", session.Pending())
	}
}

func printInbound(out io.Writer, log *slog.Logger) transport.InboundHandler {
	return func(ctx context.Context, env *models.Envelope) {
		switch env.Event {
		case models.EventNewMessage:
			fmt.Fprintf(out, "[%s] %s: %s\n", env.ChatID, env.SenderID, env.Content)
		case models.EventUserTyping:
			log.DebugContext(ctx, "user_typing", "chat_id", env.ChatID, "user_id", env.SenderID)
		case models.EventError:
			log.WarnContext(ctx, "chat_server_error", "chat_id", env.ChatID, "error", env.Error)
		default:
			log.DebugContext(ctx, "unhandled chat event", "event", env.Event)
		}
	}
}
