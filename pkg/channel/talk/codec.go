package talk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"talkbridge/pkg/bus"
)

// talkEvent is the Talk Bot webhook envelope. Only Create events carry chat
// content; other types (activity updates, reactions, deletions) are
// acknowledged and dropped.
type talkEvent struct {
	Type  string `json:"type"`
	Actor struct {
		Type        string `json:"type"`
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"actor"`
	Object struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		Content   string `json:"content"`
		MediaType string `json:"mediaType"`
	} `json:"object"`
	Target struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"target"`
}

// decodeInbound translates a raw webhook body into a canonical inbound
// message.
//
// The second return value reports whether a message was produced. Non-Create
// events and envelopes missing a sender, content, or conversation token are
// not errors: the remote system expects a 200 acknowledgement for those, so
// they decode to (zero, false, nil). Only unparseable JSON is an error.
func decodeInbound(body []byte) (bus.InboundMessage, bool, error) {
	var event talkEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return bus.InboundMessage{}, false, err
	}

	if event.Type != "Create" {
		return bus.InboundMessage{}, false, nil
	}

	senderID := event.Actor.ID
	content := strings.TrimSpace(event.Object.Content)
	token := event.Target.ID
	if senderID == "" || content == "" || token == "" {
		return bus.InboundMessage{}, false, nil
	}

	mediaType := event.Object.MediaType
	if mediaType == "" {
		mediaType = "text/plain"
	}

	return bus.InboundMessage{
		Channel:  ChannelName,
		SenderID: senderID,
		ChatID:   token,
		Content:  content,
		Metadata: map[string]string{
			"object_id":          event.Object.ID,
			"room_name":          event.Target.Name,
			"actor_display_name": event.Actor.DisplayName,
			"media_type":         mediaType,
		},
	}, true, nil
}

// encodeOutbound builds the bot message request body. The referenceId is a
// content hash the server uses as a deduplication hint.
func encodeOutbound(content string) ([]byte, error) {
	digest := sha256.Sum256([]byte(content))
	return json.Marshal(map[string]string{
		"message":     content,
		"referenceId": hex.EncodeToString(digest[:]),
	})
}
