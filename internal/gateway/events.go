package gateway

import (
	"time"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/usage"
)

type EventType string

const (
	EventStart   EventType = "start"
	EventContent EventType = "content"
	EventUsage   EventType = "usage"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// StreamEvent is one canonical event of a streamed response. Only the fields
// of its Type are set.
type StreamEvent struct {
	Type    EventType            `json:"type"`
	Created *time.Time           `json:"created,omitempty"`
	Content []llm.ContentBlock   `json:"content,omitempty"`
	Usage   *usage.CombinedUsage `json:"usage,omitempty"`
	Message string               `json:"message,omitempty"`
	Code    int                  `json:"code,omitempty"`
}

func StartEvent(created time.Time) StreamEvent {
	return StreamEvent{Type: EventStart, Created: &created}
}

func ContentEvent(blocks ...llm.ContentBlock) StreamEvent {
	return StreamEvent{Type: EventContent, Content: blocks}
}

func UsageEvent(u usage.CombinedUsage) StreamEvent {
	return StreamEvent{Type: EventUsage, Usage: &u}
}

func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

func ErrorEvent(message string, code int) StreamEvent {
	return StreamEvent{Type: EventError, Message: message, Code: code}
}

// Terminal reports whether no event may follow e.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
