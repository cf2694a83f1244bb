package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingCompleted     = "booking_completed"
	EventBookingCancelled     = "booking_cancelled"
	EventPointsCredited       = "points_credited"
	EventPointsDeducted       = "points_deducted"
	EventVehicleAdded         = "vehicle_added"
	EventVehicleUpdated       = "vehicle_updated"
	EventVehicleDeleted       = "vehicle_deleted"
	EventVehicleServiced      = "vehicle_serviced"
	EventServiceDue           = "service_due"
	EventSideEffectFailed     = "side_effect_failed"
	EventUserLoggedIn         = "user_logged_in"
	EventUserLoggedOut        = "user_logged_out"
	EventUserRegistered       = "user_registered"
	EventDataCleared          = "data_cleared"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID      string    `json:"booking_id"`
	UserID         string    `json:"user_id"`
	VehicleID      string    `json:"vehicle_id"`
	ServiceTypeID  string    `json:"service_type_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	BookingDate    string    `json:"booking_date"`
	TimeSlot       string    `json:"time_slot"`
	TotalPrice     int       `json:"total_price"`
	PointsEarned   int       `json:"points_earned"`
	ChangedAt      time.Time `json:"changed_at"`
}

type PointsEventPayload struct {
	UserID  string `json:"user_id"`
	Points  int    `json:"points"`
	Balance int    `json:"balance"`
	Reason  string `json:"reason,omitempty"`
}

type VehicleEventPayload struct {
	VehicleID       string `json:"vehicle_id"`
	UserID          string `json:"user_id"`
	DisplayName     string `json:"display_name"`
	PlateNumber     string `json:"plate_number"`
	LastServiceDate string `json:"last_service_date,omitempty"`
	DaysSince       int    `json:"days_since_service,omitempty"`
}

// SideEffectPayload reports a completion side effect that did not apply.
type SideEffectPayload struct {
	BookingID string `json:"booking_id"`
	Effect    string `json:"effect"`
	Error     string `json:"error"`
}

type UserEventPayload struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or for AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. It returns the first handler error.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
