package domain

import (
	"fmt"
	"time"
)

// EventType names one entry in the closed catalogue of bus events.
type EventType string

const (
	EventBotStart       EventType = "bot_start"
	EventOverview       EventType = "overview"
	EventPositions      EventType = "positions"
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
	EventQueue          EventType = "queue"
	EventOpportunity    EventType = "opportunity"
	EventSourceStatus   EventType = "source_status"
	EventSources        EventType = "sources"
	EventPollDebug      EventType = "poll_debug"
	EventAPI            EventType = "api_event"
	EventReset          EventType = "reset"
	EventFault          EventType = "fault"
	EventLive           EventType = "live_event"
	EventEdge           EventType = "edge_measurement"
	EventEdgeStats      EventType = "edge_stats"
)

// Event is a published state change.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Strategy  string    `json:"strategy"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// BotStart announces a strategy starting or coming back from a reset.
type BotStart struct {
	Strategy  string    `json:"strategy"`
	StartedAt time.Time `json:"started_at"`
	Paper     bool      `json:"paper"`
}

// OpportunityEvent reports what happened to one detection.
type OpportunityEvent struct {
	Opportunity Opportunity       `json:"opportunity"`
	Status      OpportunityStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
}

// PollDebug summarizes one successful poll of a source.
type PollDebug struct {
	SourceID string `json:"source_id"`
	Items    int    `json:"items"`
	// New, Closed and Updated count baseline-diff changes.
	New       int  `json:"new"`
	Closed    int  `json:"closed"`
	Updated   int  `json:"updated"`
	Baselined bool `json:"baselined"`
	// Candidates counts items that passed a strategy's prescreen and went
	// on to full validation.
	Candidates int           `json:"candidates"`
	Took       time.Duration `json:"took"`
}

// APIEventKind classifies upstream trouble.
type APIEventKind string

const (
	APIRateLimited APIEventKind = "rate_limited"
	APIPollError   APIEventKind = "poll_error"
	APIRecovered   APIEventKind = "recovered"
)

// APIEvent reports an upstream failure or recovery for a source.
type APIEvent struct {
	SourceID string        `json:"source_id"`
	Kind     APIEventKind  `json:"kind"`
	Message  string        `json:"message,omitempty"`
	RetryIn  time.Duration `json:"retry_in"`
}

// ResetNotice summarizes a portfolio reset.
type ResetNotice struct {
	Strategy        string `json:"strategy"`
	ClosedPositions int    `json:"closed_positions"`
	DroppedQueue    int    `json:"dropped_queue"`
	Epoch           uint64 `json:"epoch"`
}

// Fault reports a portfolio halted by an invariant violation.
type Fault struct {
	Strategy string `json:"strategy"`
	Message  string `json:"message"`
}

// LiveEventKind is a change detected in a score feed.
type LiveEventKind string

const (
	LiveMatchStart LiveEventKind = "match_start"
	LiveGoal       LiveEventKind = "goal"
	LiveRedCard    LiveEventKind = "red_card"
	LiveMatchEnd   LiveEventKind = "match_end"
)

// LiveEvent is a score-feed change derived from two consecutive polls.
type LiveEvent struct {
	Kind       LiveEventKind `json:"kind"`
	Fixture    Fixture       `json:"fixture"`
	DetectedAt time.Time     `json:"detected_at"`
}

// CheckPayload verifies that payload is the schema registered for t.
func CheckPayload(t EventType, payload any) error {
	var ok bool
	switch t {
	case EventBotStart:
		_, ok = payload.(BotStart)
	case EventOverview:
		_, ok = payload.(Overview)
	case EventPositions:
		_, ok = payload.([]Position)
	case EventPositionOpened, EventPositionClosed:
		_, ok = payload.(Position)
	case EventQueue:
		_, ok = payload.([]QueueEntry)
	case EventOpportunity:
		_, ok = payload.(OpportunityEvent)
	case EventSourceStatus:
		_, ok = payload.(Source)
	case EventSources:
		_, ok = payload.([]Source)
	case EventPollDebug:
		_, ok = payload.(PollDebug)
	case EventAPI:
		_, ok = payload.(APIEvent)
	case EventReset:
		_, ok = payload.(ResetNotice)
	case EventFault:
		_, ok = payload.(Fault)
	case EventLive:
		_, ok = payload.(LiveEvent)
	case EventEdge:
		_, ok = payload.(EdgeMeasurement)
	case EventEdgeStats:
		_, ok = payload.(EdgeStats)
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, t)
	}
	if !ok {
		return fmt.Errorf("%w: %s does not accept %T", ErrInvalidEvent, t, payload)
	}
	return nil
}

// EventPublisher is the write side of the event bus.
type EventPublisher interface {
	Publish(strategy string, t EventType, payload any) error
}
