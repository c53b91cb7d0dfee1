// Package internal assembles the server: storage, live state, transports and workers.
package internal

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/infrastructure/backplane"
	"chat-sync/infrastructure/grpc/server"
	"chat-sync/infrastructure/rest"
	"chat-sync/infrastructure/ws"
	"chat-sync/moderation"
	"chat-sync/observability"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/services"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// App owns every long-lived component of a node.
type App struct {
	cfg Config
	log *slog.Logger

	db    *badger.DB
	index *bluge.Writer

	Registry *runtime.Registry
	Presence *runtime.Presence
	Hub      *runtime.Hub

	supervisor *workers.Supervisor
	monitor    *observability.Monitor
	socket     *ws.Server
	router     *gin.Engine
	ops        *server.OpsServer
	publisher  *backplane.Publisher
	reader     *kafka.Reader

	closeOnce sync.Once
}

// NewApp opens the stores and wires the components. Nothing runs until Run.
func NewApp(cfg Config, log *slog.Logger) (app *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Storage
	a.db, err = badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	a.index, err = bluge.OpenWriter(bluge.DefaultConfig(cfg.BlugeFilepath))
	if err != nil {
		return nil, fmt.Errorf("search index opening failed: %w", err)
	}
	chats := repositories.NewChatRepository(a.db)
	messages := repositories.NewMessageRepository(a.db, log)
	users := repositories.NewUserRepository(a.db)
	chatIndex := repositories.NewChatIndex(a.index, log)

	// 2. Moderation
	censorChar, err := CharacterRune(cfg.CharReplacement)
	if err != nil {
		return nil, err
	}
	censored, err := moderation.NewCensoredLoader(nil).LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	sanitizer, err := moderation.NewModeration(censored, censorChar, cfg.DefaultLanguage, log)
	if err != nil {
		return nil, err
	}

	// 3. Live state, relayed to the other nodes when a backplane is configured
	a.Registry = runtime.NewRegistry(log)
	var broadcaster contract.IBroadcaster = a.Registry
	node := cfg.NodeID
	if node == "" {
		node = uuid.NewString()
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kafkaCfg := backplane.Config{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: "chat-sync-" + node}
		a.publisher = backplane.NewPublisher(node, backplane.NewWriter(kafkaCfg, log), log)
		a.reader = backplane.NewReader(kafkaCfg)
		broadcaster = runtime.NewRelay(a.Registry, a.publisher, log)
		log.Info("Backplane enabled", "node", node, "brokers", brokers, "topic", cfg.KafkaTopic)
	}
	a.Presence = runtime.NewPresence(runtime.NewLobbyNotifier(broadcaster), cfg.PresenceGrace, log)
	typing := runtime.NewTyping(broadcaster, cfg.TypingWindow, log)
	fanout := runtime.NewFanout(cfg.NumberOfLanes, cfg.LaneBuffer, chats, messages, users, sanitizer, broadcaster, log)
	a.Hub = runtime.NewHub(a.Registry, a.Presence, typing, fanout, chats, log)

	// 4. Observability and workers
	metrics := observability.NewMetrics(a.Hub)
	a.monitor = observability.NewMonitor(a.Hub, log)
	a.supervisor = workers.NewSupervisor(log).OnRestart(func(worker string) {
		metrics.Restarts.WithLabelValues(worker).Inc()
	})
	a.supervisor.Add(fanout.Workers()...)
	a.supervisor.Add(
		workers.NewTelemetryWorker(log, a.monitor, cfg.MetricInterval),
		workers.NewChannelCapacityWorker(log, fanout.Channels(), metrics.ChannelDepth, cfg.MetricInterval),
	)
	if a.reader != nil {
		a.supervisor.Add(backplane.NewConsumer(node, a.reader, a.Registry, log))
	}

	// 5. Transports
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AuthTokenDuration, cfg.RefreshGrace)
	socketCfg := ws.DefaultConfig()
	socketCfg.SendBuffer = cfg.ConnectionBufferSize
	socketCfg.MaxFrameBytes = int64(cfg.MaxFrameBytes)
	socketCfg.RateBurst = cfg.RateBurst
	socketCfg.RateInterval = cfg.RateInterval
	socketCfg.AllowedOrigins = cfg.Origins()
	a.socket = ws.NewServer(a.Hub, auth.NewSessionGate(tokens, log), metrics, socketCfg, log)

	a.router = rest.NewRouter(rest.Deps{
		Auth:     services.NewAuthService(users, tokens, log),
		Chats:    services.NewChatService(chats, messages, users, chatIndex, a.Presence, log),
		Messages: services.NewMessageService(chats, messages, users, a.Presence, broadcaster, log),
		Online:   a.Presence,
		Monitor:  a.monitor,
		Tokens:   tokens,
		Metrics:  metrics.Handler(),
		Socket:   a.socket,
		Log:      log,
	})
	a.ops = server.NewOpsServer(log)
	return a, nil
}

func (a *App) Handler() http.Handler { return a.router }

// Run serves HTTP on listener and the ops gRPC on opsListener until ctx ends, then shuts down:
// drain the health status, close the sockets, stop HTTP, stop the workers, stop gRPC.
func (a *App) Run(ctx context.Context, listener, opsListener net.Listener) error {
	errChan := make(chan error, 2)

	supervisorCtx, stopSupervisor := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSupervisor()
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		a.supervisor.Run(supervisorCtx)
	}()

	httpServer := &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		a.log.Info("Starting HTTP server", "address", listener.Addr().String(), "at", time.Now().UTC())
		if err := httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	if opsListener != nil {
		go func() {
			if err := a.ops.Serve(opsListener); err != nil {
				errChan <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		a.log.Error("Server failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	a.ops.Drain()
	if err := a.socket.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("Sockets did not close in time", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("HTTP server did not stop in time", "error", err)
	}
	a.Hub.Close()
	stopSupervisor()
	<-supervisorDone
	a.ops.Stop()
	a.log.Info("Program stopped cleanly")
	return runErr
}

// Close releases the stores and the backplane clients.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.publisher != nil {
			errs = append(errs, a.publisher.Close())
		}
		if a.reader != nil {
			errs = append(errs, a.reader.Close())
		}
		if a.index != nil {
			errs = append(errs, a.index.Close())
		}
		if a.db != nil {
			a.log.Info("Closing BadgerDB...")
			errs = append(errs, a.db.Close())
		}
	})
	return stderrors.Join(errs...)
}
