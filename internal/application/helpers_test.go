package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/remote"
	"github.com/example/worship-scheduler/internal/testfixtures"
)

const testTeam = "team-1"

var (
	testLeader = Principal{MemberID: "leader-1", IsLeader: true}
	testMember = Principal{MemberID: "m1"}
)

// testEnv wires every service against in-memory backends.
type testEnv struct {
	store        *persistence.MemoryStore
	clock        *testfixtures.Clock
	ids          *testfixtures.IDGenerator
	remote       *remote.Memory
	registry     *ServiceTypeRegistry
	schedules    *ScheduleStore
	conflicts    *ConflictLog
	availability *AvailabilitySynchronizer
	reconciler   *SelectionReconciler
	publisher    *SchedulePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("id")
	store := persistence.NewMemoryStoreWithClock(clock.Now)
	client := remote.NewMemory(
		remote.WithIDGenerator(testfixtures.NewIDGenerator("svc").NextFunc()),
		remote.WithClock(clock.Now),
	)

	env := &testEnv{store: store, clock: clock, ids: ids, remote: client}
	env.registry = NewServiceTypeRegistryWithLogger(store, ids.NextFunc(), logger)
	env.schedules = NewScheduleStoreWithLogger(store, env.registry, DefaultAdhocTime, clock.Now, logger)
	env.conflicts = NewConflictLogWithLogger(store, testfixtures.NewIDGenerator("conflict").NextFunc(), clock.Now, logger)
	env.availability = NewAvailabilitySynchronizerWithLogger(store, env.registry, env.schedules, env.conflicts, clock.Now, logger)
	env.reconciler = NewSelectionReconcilerWithLogger(env.registry, env.schedules, client, DefaultAdhocTime, logger)
	env.publisher = NewSchedulePublisherWithLogger(env.schedules, env.registry, client, DefaultInstruments, logger)
	return env
}

// addType registers a service type with a fixed id.
func (e *testEnv) addType(t *testing.T, id, name string, weekday *time.Weekday, serviceTime string) ServiceType {
	t.Helper()

	st, err := e.registry.Add(context.Background(), AddServiceTypeParams{
		Principal: testLeader,
		TeamID:    testTeam,
		Input: ServiceTypeInput{
			ID:             id,
			Name:           name,
			DefaultWeekday: weekday,
			ServiceTime:    serviceTime,
		},
	})
	if err != nil {
		t.Fatalf("Add(%s) returned error: %v", name, err)
	}
	return st
}

// addSunday registers the usual Sunday template "st1".
func (e *testEnv) addSunday(t *testing.T) ServiceType {
	t.Helper()
	return e.addType(t, "st1", "Sunday 11:00", testfixtures.Weekday(time.Sunday), "11:00")
}

func (e *testEnv) selectKeys(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range testfixtures.Keys(keys...) {
		if _, err := e.schedules.Select(context.Background(), SelectParams{Principal: testLeader, TeamID: testTeam, Key: k}); err != nil {
			t.Fatalf("Select(%s) returned error: %v", k, err)
		}
	}
}

func (e *testEnv) sync(t *testing.T, memberID string, keys ...string) SyncResult {
	t.Helper()
	result, err := e.availability.SyncFromSelection(context.Background(), SyncParams{
		TeamID:   testTeam,
		MemberID: memberID,
		Keys:     testfixtures.Keys(keys...),
	})
	if err != nil {
		t.Fatalf("SyncFromSelection returned error: %v", err)
	}
	return result
}

func keyStrings(keys []instance.Key) []string {
	return testfixtures.KeyStrings(keys)
}

func serviceNames(services []remote.Service) []string {
	out := make([]string, 0, len(services))
	for _, svc := range services {
		out = append(out, svc.Name)
	}
	return out
}
