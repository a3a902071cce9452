package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/realty/internal/domain/finance"
	"github.com/erp/realty/internal/domain/shared"
)

// ErrUnknownEventType is returned for events the serializer has no decoder for
var ErrUnknownEventType = errors.New("unknown event type")

// financeEvents builds an empty value of every event the engine writes to
// the outbox
var financeEvents = map[string]func() shared.DomainEvent{
	finance.EventTypeReceivableCreated:       func() shared.DomainEvent { return &finance.AccountReceivableCreatedEvent{} },
	finance.EventTypeReceivablePaid:          func() shared.DomainEvent { return &finance.AccountReceivablePaidEvent{} },
	finance.EventTypeReceivablePartiallyPaid: func() shared.DomainEvent { return &finance.AccountReceivablePartiallyPaidEvent{} },
	finance.EventTypeReceivableOverdue:       func() shared.DomainEvent { return &finance.AccountReceivableOverdueEvent{} },
	finance.EventTypeReceivableCancelled:     func() shared.DomainEvent { return &finance.AccountReceivableCancelledEvent{} },
	finance.EventTypePaymentRecorded:         func() shared.DomainEvent { return &finance.PaymentRecordedEvent{} },
	finance.EventTypeCommissionTriggered:     func() shared.DomainEvent { return &finance.CommissionTriggeredEvent{} },
}

// EventSerializer encodes outbox payloads as JSON and decodes them back
// into the concrete finance event types. It is read-only after construction.
type EventSerializer struct {
	decoders map[string]func() shared.DomainEvent
}

// NewEventSerializer returns a serializer for the finance events
func NewEventSerializer() *EventSerializer {
	decoders := make(map[string]func() shared.DomainEvent, len(financeEvents))
	for eventType, newEvent := range financeEvents {
		decoders[eventType] = newEvent
	}
	return &EventSerializer{decoders: decoders}
}

// Serialize encodes event. Events without a decoder are rejected so the
// outbox never holds a row the processor cannot deliver.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if _, ok := s.decoders[event.EventType()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType())
	}
	return json.Marshal(event)
}

// Deserialize decodes a payload stored under eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	newEvent, ok := s.decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	event := newEvent()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	if event.EventType() != eventType {
		return nil, fmt.Errorf("payload of %s decoded as %s", eventType, event.EventType())
	}
	return event, nil
}

// Types returns the decodable event types in sorted order
func (s *EventSerializer) Types() []string {
	types := make([]string, 0, len(s.decoders))
	for t := range s.decoders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
