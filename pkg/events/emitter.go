// Package events handles event emission for checklist lifecycle changes.
// The lifecycle engine itself never publishes; the route layer calls the
// emitter after an engine operation succeeds.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventInstanceCreated   = "checklist.instance.created"
	EventInstanceSubmitted = "checklist.instance.submitted"
	EventInstanceLocked    = "checklist.instance.locked"
	EventInstancePromoted  = "checklist.instance.promoted"
	EventPrecheckCompleted = "checklist.precheck.completed"
)

// Emitter publishes checklist lifecycle events
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) emit(ctx context.Context, eventType string, tenantID string, instance *models.Instance) error {
	if e.producer == nil {
		return nil // eventing not configured
	}

	event := &kafka.ChecklistEvent{
		EventType:        eventType,
		TenantID:         tenantID,
		InstanceID:       instance.ID,
		UnitID:           instance.UnitID,
		Stage:            string(instance.Stage),
		Status:           string(instance.Status),
		CleaningID:       instance.CleaningID,
		RepairID:         instance.RepairID,
		ParentInstanceID: instance.ParentInstanceID,
		Timestamp:        time.Now().UTC(),
		TraceID:          tracing.GetTraceID(ctx),
		SpanID:           tracing.GetSpanID(ctx),
	}

	if err := e.producer.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitInstanceCreated emits a checklist.instance.created event
func (e *Emitter) EmitInstanceCreated(ctx context.Context, tenantID string, instance *models.Instance) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInstanceCreated")
	defer span.End()

	return e.emit(ctx, EventInstanceCreated, tenantID, instance)
}

// EmitInstanceSubmitted emits a checklist.instance.submitted event. When the
// submitted instance is a PRE_CLEANING checklist it also emits
// checklist.precheck.completed, which feeds the cleaning-readiness
// notification downstream.
func (e *Emitter) EmitInstanceSubmitted(ctx context.Context, tenantID string, instance *models.Instance) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInstanceSubmitted")
	defer span.End()

	if err := e.emit(ctx, EventInstanceSubmitted, tenantID, instance); err != nil {
		return err
	}

	if instance.Stage == models.StagePreCleaning {
		return e.emit(ctx, EventPrecheckCompleted, tenantID, instance)
	}
	return nil
}

// EmitInstanceLocked emits a checklist.instance.locked event
func (e *Emitter) EmitInstanceLocked(ctx context.Context, tenantID string, instance *models.Instance) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInstanceLocked")
	defer span.End()

	return e.emit(ctx, EventInstanceLocked, tenantID, instance)
}

// EmitInstancePromoted emits a checklist.instance.promoted event for the
// newly created instance
func (e *Emitter) EmitInstancePromoted(ctx context.Context, tenantID string, instance *models.Instance) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInstancePromoted")
	defer span.End()

	return e.emit(ctx, EventInstancePromoted, tenantID, instance)
}
