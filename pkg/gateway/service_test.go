package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"talkbridge/pkg/bus"
	"talkbridge/pkg/channel"
	"talkbridge/pkg/config"
)

type recordingAdapter struct {
	name   string
	runErr error

	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (a *recordingAdapter) Name() string {
	return a.name
}

func (a *recordingAdapter) Run(ctx context.Context) error {
	if a.runErr != nil {
		return a.runErr
	}
	<-ctx.Done()
	return nil
}

func (a *recordingAdapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	return nil
}

func (a *recordingAdapter) sentMessages() []bus.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]bus.OutboundMessage, len(a.sent))
	copy(out, a.sent)
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)},
	}
}

func TestServiceRoutesOutboundToAdapter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	adapter := &recordingAdapter{name: "nextcloud_talk"}
	svc, err := NewService(testConfig(t), mb, []channel.Adapter{adapter}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.True(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "nextcloud_talk", ChatID: "r1", Content: "reply one"}))
	require.True(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "unknown", ChatID: "r1", Content: "dropped"}))
	require.True(t, mb.PublishOutbound(ctx, bus.OutboundMessage{Channel: "nextcloud_talk", ChatID: "r2", Content: "reply two"}))

	require.Eventually(t, func() bool {
		return len(adapter.sentMessages()) == 2
	}, 2*time.Second, 10*time.Millisecond, "expected two routed deliveries")

	contents := map[string]bool{}
	for _, msg := range adapter.sentMessages() {
		contents[msg.Content] = true
	}
	require.True(t, contents["reply one"])
	require.True(t, contents["reply two"])

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestServiceReadyzReflectsChannelState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	cfg := testConfig(t)
	adapter := &recordingAdapter{name: "nextcloud_talk"}
	svc, err := NewService(cfg, mb, []channel.Adapter{adapter}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.Gateway.Port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Gateway.Port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, healthURL, 2*time.Second))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestServiceTreatsUnconfiguredChannelAsDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	cfg := testConfig(t)
	adapter := &recordingAdapter{name: "nextcloud_talk", runErr: channel.ErrNotConfigured}
	svc, err := NewService(cfg, mb, []channel.Adapter{adapter}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	// The service keeps running with the channel disabled and reports
	// not-ready instead of crashing.
	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.Gateway.Port)
	require.Eventually(t, func() bool {
		response, err := http.Get(readyURL)
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusServiceUnavailable
	}, 2*time.Second, 25*time.Millisecond)

	select {
	case err := <-errCh:
		t.Fatalf("service exited early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestServiceFailsOnChannelRuntimeError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	adapter := &recordingAdapter{name: "nextcloud_talk", runErr: errors.New("listener exploded")}
	svc, err := NewService(testConfig(t), mb, []channel.Adapter{adapter}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "listener exploded")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for runtime failure to surface")
	}
}

func TestNewServiceValidation(t *testing.T) {
	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)
	adapter := &recordingAdapter{name: "nextcloud_talk"}

	_, err := NewService(nil, mb, []channel.Adapter{adapter}, nil)
	require.Error(t, err)

	_, err = NewService(&config.Config{}, nil, []channel.Adapter{adapter}, nil)
	require.Error(t, err)

	_, err = NewService(&config.Config{}, mb, nil, nil)
	require.Error(t, err)
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
