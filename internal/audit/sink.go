// Package audit implements the append-only Event & Audit Sink (C14): every
// governed action across the other components is recorded here with
// correlation/causation ids, mirrored to a rotating log file, and tailable
// over a read-only websocket stream. Grounded on the teacher governance
// engine's appendAudit/emit pattern (native/governance/engine.go), adapted
// from a single chain-local audit trail into a durable, queryable sink.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"caricash/internal/idgen"
)

// Event is one append-only domain event, analogous to the teacher's
// types.Event emitted alongside every governance state change.
type Event struct {
	ID            string `gorm:"primaryKey;column:id"`
	Type          string `gorm:"column:type;index"`
	CorrelationID string `gorm:"column:correlation_id;index"`
	CausationID   string `gorm:"column:causation_id"`
	Subject       string `gorm:"column:subject"`
	PayloadJSON   string `gorm:"column:payload_json"`
	CreatedAt     time.Time
}

func (Event) TableName() string { return "events" }

// AuditRecord is one append-only record of a governed action, analogous to
// the teacher's AuditRecord (actor, event kind, free-form JSON details).
type AuditRecord struct {
	ID            string `gorm:"primaryKey;column:id"`
	Action        string `gorm:"column:action;index"`
	ActorType     string `gorm:"column:actor_type"`
	ActorID       string `gorm:"column:actor_id"`
	CorrelationID string `gorm:"column:correlation_id;index"`
	DetailsJSON   string `gorm:"column:details_json"`
	CreatedAt     time.Time
}

func (AuditRecord) TableName() string { return "audit_records" }

// Sink is the gorm-backed append-only store for events and audit records,
// fronted by an optional Mirror (file/stream fan-out).
type Sink struct {
	db     *gorm.DB
	mirror Mirror
}

// Mirror receives a copy of every appended Event/AuditRecord, used to drive
// the rotating log file and the websocket tail stream without coupling the
// authoritative write path to either.
type Mirror interface {
	MirrorEvent(Event)
	MirrorAudit(AuditRecord)
}

// NewSink migrates the schema and wires an optional mirror. A nil mirror
// means "no secondary fan-out", useful in tests.
func NewSink(db *gorm.DB, mirror Mirror) (*Sink, error) {
	if err := db.AutoMigrate(&Event{}, &AuditRecord{}); err != nil {
		return nil, err
	}
	if mirror == nil {
		mirror = noopMirror{}
	}
	return &Sink{db: db, mirror: mirror}, nil
}

// EmitEvent appends a domain event (e.g. TRANSACTION_POSTED, §4.1 step 10).
func (s *Sink) EmitEvent(ctx context.Context, eventType, correlationID, causationID, subject string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	evt := Event{
		ID:            idgen.New(),
		Type:          eventType,
		CorrelationID: correlationID,
		CausationID:   causationID,
		Subject:       subject,
		PayloadJSON:   string(raw),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&evt).Error; err != nil {
		return err
	}
	s.mirror.MirrorEvent(evt)
	return nil
}

// RecordAudit appends an audit trail entry for a governed action (policy
// decisions, approvals, reversals, ops endpoints).
func (s *Sink) RecordAudit(ctx context.Context, action, actorType, actorID, correlationID string, details interface{}) error {
	var detailsJSON string
	if details != nil {
		switch v := details.(type) {
		case string:
			detailsJSON = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return err
			}
			detailsJSON = string(raw)
		}
	}
	rec := AuditRecord{
		ID:            idgen.New(),
		Action:        action,
		ActorType:     actorType,
		ActorID:       actorID,
		CorrelationID: correlationID,
		DetailsJSON:   detailsJSON,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	s.mirror.MirrorAudit(rec)
	return nil
}

// ListEventsByCorrelation returns every event sharing correlationID, in
// insertion order, for incident/audit replay.
func (s *Sink) ListEventsByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

type noopMirror struct{}

func (noopMirror) MirrorEvent(Event)       {}
func (noopMirror) MirrorAudit(AuditRecord) {}
