package entity

import "github.com/agentstation/utc"

// AuditEvent records one quality state transition for external monitoring.
type AuditEvent struct {
	EntityID   string   `json:"entity_id" yaml:"entity_id"`
	Transition string   `json:"transition" yaml:"transition"`
	From       Status   `json:"from" yaml:"from"`
	To         Status   `json:"to" yaml:"to"`
	Reason     string   `json:"reason" yaml:"reason"`
	At         utc.Time `json:"at" yaml:"at"`
}

// NewAuditEvent builds an event for the from→to transition.
func NewAuditEvent(entityID string, from, to Status, reason string, at utc.Time) AuditEvent {
	return AuditEvent{
		EntityID:   entityID,
		Transition: string(from) + "->" + string(to),
		From:       from,
		To:         to,
		Reason:     reason,
		At:         at,
	}
}
