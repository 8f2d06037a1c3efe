package audit

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type captureMirror struct {
	events []Event
	audits []AuditRecord
}

func (c *captureMirror) MirrorEvent(e Event)       { c.events = append(c.events, e) }
func (c *captureMirror) MirrorAudit(a AuditRecord) { c.audits = append(c.audits, a) }

func setupSink(t *testing.T, mirror Mirror) *Sink {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sink, err := NewSink(db, mirror)
	require.NoError(t, err)
	return sink
}

func TestEmitEventPersistsAndMirrors(t *testing.T) {
	ctx := context.Background()
	capture := &captureMirror{}
	sink := setupSink(t, capture)

	err := sink.EmitEvent(ctx, "TRANSACTION_POSTED", "corr-1", "", "journal:j1", map[string]string{"journal_id": "j1"})
	require.NoError(t, err)
	require.Len(t, capture.events, 1)

	events, err := sink.ListEventsByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "TRANSACTION_POSTED", events[0].Type)
}

func TestRecordAuditPersistsAndMirrors(t *testing.T) {
	ctx := context.Background()
	capture := &captureMirror{}
	sink := setupSink(t, capture)

	err := sink.RecordAudit(ctx, "APPROVAL_DECISION", "STAFF", "staff-1", "corr-2", map[string]string{"decision": "APPROVE"})
	require.NoError(t, err)
	require.Len(t, capture.audits, 1)
	require.Equal(t, "APPROVAL_DECISION", capture.audits[0].Action)
}

func TestFanoutMirrorReachesAllDestinations(t *testing.T) {
	ctx := context.Background()
	a, b := &captureMirror{}, &captureMirror{}
	sink := setupSink(t, NewFanoutMirror(a, b))

	require.NoError(t, sink.EmitEvent(ctx, "X", "corr-3", "", "s", nil))
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
}
