package conversation

import "github.com/asthmacare/companion/internal/domain"

// EventType names a conversation state change pushed to subscribers.
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventTypingStarted   EventType = "typing_started"
	EventTypingStopped   EventType = "typing_stopped"
	EventFormOpened      EventType = "form_opened"
	EventFormClosed      EventType = "form_closed"
)

// Event is one conversation state change. Message is set only for
// EventMessageAppended.
type Event struct {
	Type    EventType       `json:"type"`
	Message *domain.Message `json:"message,omitempty"`
}

const subscriberBuffer = 32

// Subscribe registers a listener for engine events. The returned cancel
// function must be called to release the subscription. Slow subscribers
// lose events rather than blocking the engine.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, subscriberBuffer)
	e.subs[id] = ch

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if existing, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (e *Engine) emit(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Warn("dropping conversation event for slow subscriber", "subscriber", id, "type", string(ev.Type))
		}
	}
}
