// Package event parses the AWS Config rule invocation envelope and
// classifies the embedded notification into one of the three supported
// shapes: a targeted configuration change, a scheduled sweep, or an
// oversized change whose full record must be fetched from the
// configuration history API.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type tags carried in the invoking event.
const (
	MessageConfigurationChange = "ConfigurationItemChangeNotification"
	MessageScheduled           = "ScheduledNotification"
	MessageOversizedChange     = "OversizedConfigurationItemChangeNotification"
)

// Event is the outer invocation envelope handed to the rule. The
// invokingEvent and ruleParameters fields are JSON documents serialized
// as strings, exactly as AWS Config delivers them.
type Event struct {
	InvokingEvent    string `json:"invokingEvent"`
	RuleParameters   string `json:"ruleParameters,omitempty"`
	ResultToken      string `json:"resultToken"`
	EventLeftScope   bool   `json:"eventLeftScope"`
	ExecutionRoleARN string `json:"executionRoleArn,omitempty"`
	ConfigRuleName   string `json:"configRuleName"`
	AccountID        string `json:"accountId"`
}

// Parse decodes the raw invocation envelope.
func Parse(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode invocation event: %w", err)
	}
	if ev.InvokingEvent == "" {
		return nil, fmt.Errorf("invocation event has no invokingEvent")
	}
	return &ev, nil
}

// Parameters decodes the ruleParameters document into the flat string
// mapping consumed by parameter validation. A missing document yields an
// empty map, not an error.
func (e *Event) Parameters() (map[string]string, error) {
	if e.RuleParameters == "" {
		return map[string]string{}, nil
	}
	params := map[string]string{}
	if err := json.Unmarshal([]byte(e.RuleParameters), &params); err != nil {
		return nil, fmt.Errorf("decode ruleParameters: %w", err)
	}
	return params, nil
}

// ItemSummary is the truncated configuration item reference delivered in
// an oversized change notification. The triple identifies the full record
// in the configuration history.
type ItemSummary struct {
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	CaptureTime  time.Time `json:"configurationItemCaptureTime"`
}

// InvokingEvent is the inner notification document.
type InvokingEvent struct {
	MessageType              string          `json:"messageType"`
	NotificationCreationTime string          `json:"notificationCreationTime"`
	ConfigurationItem        json.RawMessage `json:"configurationItem,omitempty"`
	ConfigurationItemSummary *ItemSummary    `json:"configurationItemSummary,omitempty"`
}

// Invoking decodes the invokingEvent document.
func (e *Event) Invoking() (*InvokingEvent, error) {
	var inv InvokingEvent
	if err := json.Unmarshal([]byte(e.InvokingEvent), &inv); err != nil {
		return nil, fmt.Errorf("decode invokingEvent: %w", err)
	}
	if inv.MessageType == "" {
		return nil, fmt.Errorf("invokingEvent has no messageType")
	}
	return &inv, nil
}

// Notification is the tagged union of the three supported notification
// shapes. Classify returns exactly one variant; the dispatch layer
// switches on the concrete type instead of comparing message strings.
type Notification interface {
	isNotification()
}

// TargetedChange carries the raw configuration item of a single changed
// principal.
type TargetedChange struct {
	Item json.RawMessage
}

// ScheduledSweep signals a full-account evaluation with no single target.
type ScheduledSweep struct{}

// OversizedChange carries the summary triple used to fetch the full
// record from the configuration history collaborator.
type OversizedChange struct {
	Summary ItemSummary
}

func (TargetedChange) isNotification()  {}
func (ScheduledSweep) isNotification()  {}
func (OversizedChange) isNotification() {}

// Classify maps the invoking event onto the notification union. An
// unrecognized message type is a contract violation surfaced as an error,
// never silently treated as a sweep.
func (inv *InvokingEvent) Classify() (Notification, error) {
	switch inv.MessageType {
	case MessageConfigurationChange:
		if len(inv.ConfigurationItem) == 0 {
			return nil, fmt.Errorf("change notification has no configurationItem")
		}
		return TargetedChange{Item: inv.ConfigurationItem}, nil
	case MessageScheduled:
		return ScheduledSweep{}, nil
	case MessageOversizedChange:
		if inv.ConfigurationItemSummary == nil {
			return nil, fmt.Errorf("oversized notification has no configurationItemSummary")
		}
		return OversizedChange{Summary: *inv.ConfigurationItemSummary}, nil
	default:
		return nil, fmt.Errorf("unexpected message type %q", inv.MessageType)
	}
}
