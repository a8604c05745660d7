// Package client wires the watch client daemon: the sync core, its bridge
// to the player widget, the backbone connection and a small local control
// surface for the UI shell.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"

	"github.com/fares7elsadek/syncspace-watch/internal/engine/bridge"
	"github.com/fares7elsadek/syncspace-watch/internal/identity"
	"github.com/fares7elsadek/syncspace-watch/internal/notify"
	"github.com/fares7elsadek/syncspace-watch/internal/stateapi"
	"github.com/fares7elsadek/syncspace-watch/internal/sync"
	"github.com/fares7elsadek/syncspace-watch/internal/transport"
	"github.com/fares7elsadek/syncspace-watch/pkg/ctxlogger"
	"github.com/fares7elsadek/syncspace-watch/pkg/rest"
)

type ClientConfig struct {
	ServerURL string `json:"server_url"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	LogLevel  string `json:"log_level"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`

	DriftThresholdSeconds float64 `json:"drift_threshold_seconds"`
	CheckIntervalSeconds  int     `json:"check_interval_seconds"`
	SettleDelayMillis     int     `json:"settle_delay_millis"`
	SeekRetries           int     `json:"seek_retries"`
}

func (cfg *ClientConfig) Validate() error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	if cfg.UserID == "" || cfg.Username == "" {
		return fmt.Errorf("user id and username are required")
	}
	return nil
}

func wsURL(serverURL string) string {
	url := serverURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/v1/ws"
}

func Run(ctx context.Context, cfg *ClientConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(h)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	provider := identity.NewStatic(cfg.UserID, cfg.Username)
	notifier := notify.NewSlogNotifier(logger)
	playerBridge := bridge.New(logger)
	api := stateapi.NewClient(cfg.ServerURL)

	mux := transport.NewMultiplexer(wsURL(cfg.ServerURL), logger)
	if err := mux.Connect(); err != nil {
		return fmt.Errorf("failed to connect to backbone: %w", err)
	}
	defer mux.Close()
	mux.OnConnectionStateChange(func(connected bool) {
		if connected {
			logger.Info("backbone connection up")
		} else {
			logger.Warn("backbone connection down")
		}
	})

	syncCfg := sync.DefaultConfig()
	if cfg.DriftThresholdSeconds > 0 {
		syncCfg.DriftThreshold = cfg.DriftThresholdSeconds
	}
	if cfg.CheckIntervalSeconds > 0 {
		syncCfg.CheckInterval = time.Duration(cfg.CheckIntervalSeconds) * time.Second
	}
	if cfg.SettleDelayMillis > 0 {
		syncCfg.SettleDelay = time.Duration(cfg.SettleDelayMillis) * time.Millisecond
	}
	if cfg.SeekRetries > 0 {
		syncCfg.SeekRetries = cfg.SeekRetries
	}

	session := sync.NewController(
		syncCfg,
		clockwork.NewRealClock(),
		logger,
		mux,
		api,
		playerBridge,
		provider,
		notifier,
	)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: controlMux(session, playerBridge, logger),
	}

	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		if err := session.Leave(serverCtx); err != nil {
			logger.Warn("failed to leave room on shutdown", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting watch client", "address", server.Addr, "server_url", cfg.ServerURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}

// controlMux is the local REST surface of the daemon plus the player widget
// endpoint.
func controlMux(session *sync.Controller, playerBridge *bridge.Bridge, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Get("/player", playerBridge.ServeHTTP)
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			state, ok := session.State()
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": map[string]any{
				"room_id": session.RoomID(),
				"seeded":  ok,
				"state":   state,
			}})
		})
		r.Post("/room/{room-id}/join", func(w http.ResponseWriter, req *http.Request) {
			roomID := chi.URLParam(req, "room-id")
			if err := session.Join(req.Context(), roomID); err != nil {
				logger.Warn("join failed", "room_id", roomID, "error", err)
				rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": err.Error()})
				return
			}
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "OK"})
		})
		r.Post("/room/leave", func(w http.ResponseWriter, req *http.Request) {
			if err := session.Leave(req.Context()); err != nil {
				rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": err.Error()})
				return
			}
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "OK"})
		})
		r.Post("/video", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL string `json:"url"`
			}
			if err := rest.ReadJSON(req, &body); err != nil {
				rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
				return
			}
			if err := session.LoadVideo(req.Context(), body.URL); err != nil {
				rest.WriteJSON(w, statusForSessionErr(err), rest.Envelope{"error": err.Error()})
				return
			}
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "OK"})
		})
		r.Post("/video/stop", func(w http.ResponseWriter, req *http.Request) {
			if err := session.StopVideo(req.Context()); err != nil {
				rest.WriteJSON(w, statusForSessionErr(err), rest.Envelope{"error": err.Error()})
				return
			}
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "OK"})
		})
		r.Post("/player/seek", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Seconds float64 `json:"seconds"`
			}
			if err := rest.ReadJSON(req, &body); err != nil {
				rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
				return
			}
			if err := session.Seek(req.Context(), body.Seconds); err != nil {
				rest.WriteJSON(w, statusForSessionErr(err), rest.Envelope{"error": err.Error()})
				return
			}
			rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": "OK"})
		})
	})

	return r
}

func statusForSessionErr(err error) int {
	switch {
	case errors.Is(err, sync.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, sync.ErrNoRoom), errors.Is(err, sync.ErrNoVideo):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
