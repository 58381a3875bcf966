package testutil

import (
	"testing"

	"confdb/internal/core"
	"confdb/internal/database"
)

// Harness bundles a fully wired service with its stubbed dependencies so
// tests can reach both the operations and the seams around them.
type Harness struct {
	Service  *core.Service
	DB       *database.MemoryDatabase
	Clock    *StubClock
	IDs      *StubIDGenerator
	Notifier *RecordingNotifier
}

// NewHarness builds a service on an in-memory database with a fixed clock,
// sequential ids, a recording notifier and the given privilege table. The
// master project is created up front, as it would be at startup.
func NewHarness(t *testing.T, roles map[string][]string) *Harness {
	t.Helper()

	h := &Harness{
		DB:       database.NewMemoryDatabase(),
		Clock:    FixedClock(),
		IDs:      NewStubIDGenerator(),
		Notifier: NewRecordingNotifier(),
	}
	h.Service = core.NewService(h.DB, core.NewStaticRoles(roles), h.Notifier, core.NewNopLogger(), h.Clock, h.IDs)

	if _, err := h.Service.EnsureMasterProject(); err != nil {
		t.Fatalf("EnsureMasterProject() error = %v", err)
	}
	return h
}
