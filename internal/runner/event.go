package runner

import "github.com/ai-shifu/shifu-backend/internal/types"

type EventType string

const (
	// EventContent carries one streamed text delta.
	EventContent EventType = "content"
	// EventBreak terminates the event sequence of one block.
	EventBreak EventType = "break"
	// EventInteraction asks the client to render an input surface and wait.
	EventInteraction EventType = "interaction"
	// EventVariable reports a profile variable write.
	EventVariable EventType = "variable_update"
	// EventOutline reports an outline item status change.
	EventOutline EventType = "outline_item_update"
	// EventError carries a localized, user-visible failure code.
	EventError EventType = "error"
	// EventHeartbeat keeps the SSE connection alive while the run is idle.
	EventHeartbeat EventType = "heartbeat"
	// EventEnd terminates the stream. Reason is one of the EndReason values.
	EventEnd EventType = "end"
)

const (
	EndReasonComplete = "complete"
	EndReasonBusy     = "busy"
	EndReasonError    = "error"
	EndReasonPause    = "pause"
)

// Event is the tagged union streamed to the client, one JSON object per SSE
// event. Only the fields relevant to Type are set.
type Event struct {
	Type         EventType     `json:"type"`
	Text         string        `json:"text,omitempty"`
	UI           *UIDescriptor `json:"ui,omitempty"`
	Name         string        `json:"name,omitempty"`
	Value        string        `json:"value,omitempty"`
	OutlineBID   string        `json:"outline_bid,omitempty"`
	Status       string        `json:"status,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	GeneratedBID string        `json:"generated_bid,omitempty"`
}

// UIDescriptor tells the client which input surface a suspended block needs.
type UIDescriptor struct {
	Kind        string               `json:"kind"`
	Label       string               `json:"label,omitempty"`
	Placeholder string               `json:"placeholder,omitempty"`
	Options     []types.OptionChoice `json:"options,omitempty"`
	Price       int64                `json:"price,omitempty"`
}

const (
	UILogin     = "login"
	UIPhone     = "phone"
	UICheckcode = "checkcode"
	UIPayment   = "payment"
	UIButton    = "button"
	UIInput     = "input"
	UIOptions   = "options"
)

func contentEvent(delta string) Event  { return Event{Type: EventContent, Text: delta} }
func breakEvent() Event                { return Event{Type: EventBreak} }
func errorEvent(code string) Event     { return Event{Type: EventError, Text: code} }
func endEvent(reason string) Event     { return Event{Type: EventEnd, Reason: reason} }
func heartbeatEvent() Event            { return Event{Type: EventHeartbeat} }
func variableEvent(name, value string) Event {
	return Event{Type: EventVariable, Name: name, Value: value}
}
func outlineEvent(outlineBID, status string) Event {
	return Event{Type: EventOutline, OutlineBID: outlineBID, Status: status}
}
func interactionEvent(ui *UIDescriptor) Event {
	return Event{Type: EventInteraction, UI: ui}
}
