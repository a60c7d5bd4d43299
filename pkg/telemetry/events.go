package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle notification published by the store and the export
// pipeline.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// Project is the active project when the event was raised, if any.
	Project string `json:"project,omitempty"`

	// RecordID is the affected record, if applicable.
	RecordID string `json:"record_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants.
const (
	EventTypeRecordAdded      = "record.added"
	EventTypeRecordEdited     = "record.edited"
	EventTypeRecordDeleted    = "record.deleted"
	EventTypePartitionDeleted = "partition.deleted"
	EventTypeDraftSaved       = "draft.saved"
	EventTypeDraftDeleted     = "draft.deleted"
	EventTypeExternalChange   = "store.external_change"
	EventTypeExportFinished   = "export.finished"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions. Subscribers
// are called one at a time, in publish order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRecordChanged publishes an added, edited or deleted record event.
func (ep *EventPublisher) PublishRecordChanged(eventType, project, recordID string) error {
	return ep.Publish(Event{
		Type:     eventType,
		Source:   "repository",
		Project:  project,
		RecordID: recordID,
		Message:  fmt.Sprintf("%s %s", eventType, recordID),
	})
}

// PublishPartitionDeleted publishes the removal of a whole project.
func (ep *EventPublisher) PublishPartitionDeleted(project string, removed int) error {
	return ep.Publish(Event{
		Type:    EventTypePartitionDeleted,
		Source:  "repository",
		Project: project,
		Message: fmt.Sprintf("Project %q removed with %d records", project, removed),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"removed": removed,
		},
	})
}

// PublishDraftChanged publishes a draft save or delete.
func (ep *EventPublisher) PublishDraftChanged(eventType, token string) error {
	return ep.Publish(Event{
		Type:    eventType,
		Source:  "drafts",
		Message: fmt.Sprintf("%s %s", eventType, token),
		Data: map[string]interface{}{
			"token": token,
		},
	})
}

// PublishExternalChange publishes a foreign write to the shared collection file.
func (ep *EventPublisher) PublishExternalChange(path, op string, size int64, modTime time.Time) error {
	return ep.Publish(Event{
		Type:    EventTypeExternalChange,
		Source:  "watch",
		Message: fmt.Sprintf("%s changed outside this process (%s)", path, op),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"path":     path,
			"op":       op,
			"size":     size,
			"mod_time": modTime,
		},
	})
}

// PublishExportFinished publishes the terminal state of an export batch.
func (ep *EventPublisher) PublishExportFinished(batchID, status string, succeeded, failed int) error {
	level := EventLevelInfo
	if failed > 0 {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeExportFinished,
		Source:  "export",
		Message: fmt.Sprintf("Export %s %s: %d succeeded, %d failed", batchID, status, succeeded, failed),
		Level:   level,
		Data: map[string]interface{}{
			"batch_id":  batchID,
			"status":    status,
			"succeeded": succeeded,
			"failed":    failed,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			// Drain whatever is already queued before delivering.
			for len(batch) < ep.config.MaxBatchSize && len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			ep.flushBatch(batch)
			batch = batch[:0]

		case <-ep.ctx.Done():
			for len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}
