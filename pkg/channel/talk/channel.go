// Package talk bridges the Nextcloud Talk Bot webhook API onto the message
// bus: it verifies and decodes signed inbound webhooks, applies admission
// policy, and delivers agent replies back as signed, chunked bot messages.
package talk

import (
	"context"
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

const ChannelName = "nextcloud_talk"

const (
	defaultWebhookHost = "0.0.0.0"
	defaultWebhookPort = 18790
	defaultWebhookPath = "/webhook/nextcloud_talk"

	// requestTimeout bounds both outbound bot calls and the inbound bus
	// publish so a hung collaborator cannot stall the accept loop.
	requestTimeout = 30 * time.Second

	// minSecretLength is what Nextcloud requires for a securely installed
	// bot. Shorter secrets still work against test servers, so this is a
	// warning, not an error.
	minSecretLength = 40
)

type lifecycleState int

const (
	stateStopped lifecycleState = iota
	stateStarting
	stateListening
	stateStopping
)

func (s lifecycleState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case stateListening:
		return "listening"
	case stateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Adapter is the Nextcloud Talk channel. One instance owns one webhook
// listener and one outbound HTTP client for its lifetime.
type Adapter struct {
	cfg    config.TalkConfig
	bus    *bus.MessageBus
	log    *slog.Logger
	policy admissionPolicy

	mu     sync.Mutex
	state  lifecycleState
	client *http.Client
}

// NewAdapter validates construction inputs and builds the adapter. Missing
// base URL or secret is only reported at Run time so a disabled channel can
// still be constructed and inspected.
func NewAdapter(cfg config.TalkConfig, b *bus.MessageBus, log *slog.Logger) (*Adapter, error) {
	if b == nil {
		return nil, errors.New("message bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:    cfg,
		bus:    b,
		log:    log.With("component", "channel.talk"),
		policy: newAdmissionPolicy(cfg.AllowFrom, cfg.AllowRooms, cfg.RoomPolicy),
		state:  stateStopped,
	}, nil
}

// Name returns the channel identifier used in bus routing and logs.
func (a *Adapter) Name() string {
	return ChannelName
}

// Run starts the webhook listener and blocks until the context is canceled
// or the listener fails. It returns ErrNotConfigured without listening when
// the base URL or bot secret is missing.
func (a *Adapter) Run(ctx context.Context) error {
	if strings.TrimSpace(a.cfg.BaseURL) == "" {
		a.log.Error("Talk channel cannot start: base_url is not configured")
		return channel.ErrNotConfigured
	}

	secret := a.cfg.BotSecret
	if secret == "" {
		a.log.Error("Talk channel cannot start: bot_secret is not configured")
		return channel.ErrNotConfigured
	}
	if len(secret) < minSecretLength {
		a.log.Warn("Bot secret is shorter than Nextcloud's required length", "length", len(secret), "required", minSecretLength)
	}

	a.mu.Lock()
	if a.state != stateStopped {
		a.mu.Unlock()
		return fmt.Errorf("talk channel is already %s", a.state)
	}
	a.state = stateStarting
	a.client = &http.Client{Timeout: requestTimeout}
	a.mu.Unlock()

	server := &http.Server{
		Addr:              a.listenAddr(),
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.setState(stateListening)
	a.log.Info("Talk channel started", "address", server.Addr, "path", a.webhookPath())

	select {
	case <-ctx.Done():
		a.shutdown(server)
		return nil
	case err := <-errCh:
		a.shutdown(server)
		return fmt.Errorf("talk webhook server: %w", err)
	}
}

// shutdown stops accepting new requests, lets in-flight requests finish or
// time out, then releases the outbound client. Safe to call more than once.
func (a *Adapter) shutdown(server *http.Server) {
	a.mu.Lock()
	if a.state == stateStopping || a.state == stateStopped {
		a.mu.Unlock()
		return
	}
	a.state = stateStopping
	a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("Talk webhook listener shutdown", "error", err)
	}

	a.mu.Lock()
	if a.client != nil {
		a.client.CloseIdleConnections()
		a.client = nil
	}
	a.state = stateStopped
	a.mu.Unlock()

	a.log.Info("Talk channel stopped")
}

func (a *Adapter) setState(state lifecycleState) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

func (a *Adapter) currentState() lifecycleState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// httpClient returns the outbound client, or nil once stop has begun.
func (a *Adapter) httpClient() *http.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

func (a *Adapter) listenAddr() string {
	host := strings.TrimSpace(a.cfg.WebhookHost)
	if host == "" {
		host = defaultWebhookHost
	}

	port := a.cfg.WebhookPort
	if port <= 0 {
		port = defaultWebhookPort
	}

	return host + ":" + strconv.Itoa(port)
}

func (a *Adapter) webhookPath() string {
	path := strings.TrimSpace(a.cfg.WebhookPath)
	if path == "" {
		path = defaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
