package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"talkbridge/pkg/bus"
	"talkbridge/pkg/channel"
	"talkbridge/pkg/config"
)

const (
	defaultStatusHost = "0.0.0.0"
	defaultStatusPort = 18791
)

// Service owns the running bridge: it starts every channel adapter, routes
// outbound bus traffic to the adapter named on each message, and serves
// health and readiness endpoints.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.MessageBus
	adapters map[string]channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
}

func NewService(cfg *config.Config, mb *bus.MessageBus, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if mb == nil {
		return nil, errors.New("message bus is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	byName := make(map[string]channel.Adapter, len(adapters))
	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           mb,
		adapters:      byName,
		channelStates: channelStates,
	}, nil
}

// Bus exposes the message bus so the embedding runtime can consume inbound
// messages and publish replies.
func (s *Service) Bus() *bus.MessageBus {
	return s.bus
}

// Run starts the adapters, the outbound router, and the status server, and
// blocks until the context is canceled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	go s.runStatusServer(ctx, serverErrors)

	errCh := make(chan error, len(s.adapters))
	for name, adapter := range s.adapters {
		name, adapter := name, adapter
		s.setChannelState(name, channelState{Running: true})

		go func() {
			err := adapter.Run(ctx)
			s.setChannelState(name, channelState{Running: false, Error: errorString(err)})

			switch {
			case err == nil || errors.Is(err, context.Canceled):
			case errors.Is(err, channel.ErrNotConfigured):
				// Misconfigured channels stay disabled; they are not
				// retried and do not bring the service down.
				s.log.Warn("Channel disabled: configuration incomplete", "channel", name)
			default:
				errCh <- fmt.Errorf("run %s channel: %w", name, err)
			}
		}()
	}

	go s.routeOutbound(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// routeOutbound forwards each outbound bus message to the adapter named on
// it. Deliveries run in their own goroutines so one slow conversation cannot
// block another; chunk ordering within one message is the adapter's job.
func (s *Service) routeOutbound(ctx context.Context) {
	for {
		msg, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		adapter, ok := s.adapters[msg.Channel]
		if !ok {
			s.log.Warn("Dropping outbound message for unknown channel", "channel", msg.Channel, "chat_id", msg.ChatID)
			continue
		}

		go func(msg bus.OutboundMessage) {
			if err := adapter.Send(ctx, msg); err != nil {
				s.log.Error("Outbound delivery failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			}
		}(msg)
	}
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultStatusHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultStatusPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
