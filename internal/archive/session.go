package archive

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// UnknownTime is reported for sessions whose first human message carries no
// formatted time.
const UnknownTime = "<Unknown time>"

// Session summarises one archived conversation.
type Session struct {
	SessionID    string  `json:"session_id"`
	FirstMessage string  `json:"first_message"`
	Timestamp    float64 `json:"timestamp"`
	Time         string  `json:"time"`
}

// Sessions lists every archived thread with the first human message of its
// latest checkpoint, newest first. Threads whose payload cannot be decoded
// are still listed, with an empty message.
func (a *Archive) Sessions(ctx context.Context) ([]Session, error) {
	keys, err := a.threadKeys(ctx)
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(keys))
	for _, key := range keys {
		id := keyString(key)
		s := Session{SessionID: id, Time: UnknownTime}
		cp, err := a.latestCheckpoint(ctx, key, id)
		var nf *NotFoundError
		switch {
		case errors.As(err, &nf):
			log.Debug("No root checkpoint for session", "sessionId", id)
		case err != nil:
			return nil, err
		default:
			if msg, ok := firstHumanMessage(cp.Payload.State()); ok {
				s.FirstMessage = msg.content
				s.Timestamp = msg.timestamp
				if msg.time != "" {
					s.Time = msg.time
				}
			} else {
				log.Debug("No human message in latest checkpoint", "sessionId", id, "checkpointId", cp.ID)
			}
		}
		sessions = append(sessions, s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Timestamp != sessions[j].Timestamp {
			return sessions[i].Timestamp > sessions[j].Timestamp
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
	return capped("sessions", sessions, a.limit), nil
}

type chatMessage struct {
	content   string
	timestamp float64
	time      string
}

// firstHumanMessage walks channel_values.messages of a decoded checkpoint.
// Messages may be plain objects ({"type": "human", ...}) or langchain
// serialized constructors ({"lc": 1, "id": [..., "HumanMessage"], "kwargs": {...}}).
func firstHumanMessage(checkpoint any) (chatMessage, bool) {
	root, _ := checkpoint.(map[string]any)
	channels, _ := root["channel_values"].(map[string]any)
	messages, _ := channels["messages"].([]any)
	for _, raw := range messages {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if kwargs, ok := m["kwargs"].(map[string]any); ok {
			if !isHumanConstructor(m, kwargs) {
				continue
			}
			m = kwargs
		} else if m["type"] != "human" {
			continue
		}

		msg := chatMessage{content: contentText(m["content"])}
		if extra, ok := m["additional_kwargs"].(map[string]any); ok {
			if ts, ok := extra["timestamp"].(float64); ok {
				msg.timestamp = ts
			}
			if t, ok := extra["time"].(string); ok {
				msg.time = t
			}
		}
		return msg, true
	}
	return chatMessage{}, false
}

func isHumanConstructor(m, kwargs map[string]any) bool {
	if kwargs["type"] == "human" {
		return true
	}
	id, _ := m["id"].([]any)
	if len(id) == 0 {
		return false
	}
	last, _ := id[len(id)-1].(string)
	return last == "HumanMessage"
}

// contentText flattens string content or a list of content blocks.
func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, block := range c {
			switch b := block.(type) {
			case string:
				parts = append(parts, b)
			case map[string]any:
				if text, ok := b["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
