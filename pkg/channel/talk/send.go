package talk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"talkbridge/pkg/bus"
)

// Bot message signature headers (bot to server direction).
const (
	headerBotRandom    = "X-Nextcloud-Talk-Bot-Random"
	headerBotSignature = "X-Nextcloud-Talk-Bot-Signature"
)

// Send delivers one outbound message to its conversation, splitting oversized
// content into chunks. Chunks of one message go out strictly in order; a
// failed chunk is logged and does not abort its siblings. Messages without a
// conversation token are logged and dropped.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	client := a.httpClient()
	if client == nil {
		return errors.New("talk channel is not running")
	}

	token := strings.TrimSpace(msg.ChatID)
	if token == "" {
		a.log.Warn("Dropping outbound message without conversation token")
		return nil
	}

	chunks := splitMessage(msg.Content, maxMessageLength)
	for i, chunk := range chunks {
		if err := a.sendChunk(ctx, client, token, chunk); err != nil {
			a.log.Error("Failed to deliver message chunk", "chat_id", token, "chunk", i+1, "chunks", len(chunks), "error", err)
			continue
		}
		a.log.Debug("Message chunk delivered", "chat_id", token, "chunk", i+1, "chunks", len(chunks))
	}

	return nil
}

// sendChunk signs and posts one chunk to the bot message endpoint. Each call
// uses a freshly generated nonce.
func (a *Adapter) sendChunk(ctx context.Context, client *http.Client, token, text string) error {
	body, err := encodeOutbound(text)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	nonce, err := NewNonce()
	if err != nil {
		return err
	}
	signature := Sign(a.cfg.BotSecret, nonce, body)

	url := strings.TrimSuffix(a.cfg.BaseURL, "/") + botMessagePath(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set(headerBotRandom, nonce)
	req.Header.Set(headerBotSignature, signature)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, preview)
	}

	return nil
}

func botMessagePath(token string) string {
	return "/ocs/v2.php/apps/spreed/api/v1/bot/" + token + "/message"
}
