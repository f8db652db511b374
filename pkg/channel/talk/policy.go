package talk

import (
	"strings"
	"unicode"
)

// admissionPolicy holds the compiled form of the channel's allow lists and
// room policy.
type admissionPolicy struct {
	allowFrom   map[string]struct{}
	allowRooms  map[string]struct{}
	mentionOnly bool
}

// admitDecision is the outcome of one admission check. Content carries the
// (possibly mention-stripped) text to hand to the bus when Admit is true;
// Reason names the failed check otherwise.
type admitDecision struct {
	Admit   bool
	Content string
	Reason  string
}

func newAdmissionPolicy(allowFrom, allowRooms []string, roomPolicy string) admissionPolicy {
	return admissionPolicy{
		allowFrom:   allowSet(allowFrom),
		allowRooms:  allowSet(allowRooms),
		mentionOnly: strings.EqualFold(strings.TrimSpace(roomPolicy), "mention"),
	}
}

// admit runs the admission checks in order, short-circuiting on the first
// rejection: sender present, sender allow list, room allow list, mention
// requirement. Empty allow lists admit everyone.
func (p admissionPolicy) admit(senderID, chatID, content string) admitDecision {
	if senderID == "" {
		return admitDecision{Reason: "empty sender"}
	}

	if len(p.allowFrom) > 0 {
		if _, ok := p.allowFrom[senderID]; !ok {
			return admitDecision{Reason: "sender not in allow_from"}
		}
	}

	if len(p.allowRooms) > 0 {
		if _, ok := p.allowRooms[chatID]; !ok {
			return admitDecision{Reason: "room not in allow_rooms"}
		}
	}

	if p.mentionOnly {
		if !isMention(content) {
			return admitDecision{Reason: "no leading mention"}
		}
		return admitDecision{Admit: true, Content: stripMention(content)}
	}

	return admitDecision{Admit: true, Content: content}
}

// isMention reports whether content starts with an @-prefixed token. Any
// mention counts; the check does not verify it names this bot.
func isMention(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 2 || trimmed[0] != '@' {
		return false
	}
	next, _ := strings.CutPrefix(trimmed, "@")
	first := []rune(next)[0]
	return !unicode.IsSpace(first)
}

// stripMention removes the leading @-token and surrounding whitespace. When
// the mention is the entire message, the trimmed content is returned as is.
func stripMention(content string) string {
	trimmed := strings.TrimSpace(content)
	idx := strings.IndexFunc(trimmed, unicode.IsSpace)
	if idx < 0 || !strings.HasPrefix(trimmed, "@") {
		return trimmed
	}
	return strings.TrimSpace(trimmed[idx:])
}

// allowSet normalizes allow-list values into a lookup set. An empty or
// all-blank list compiles to nil, which admits everyone.
func allowSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}
