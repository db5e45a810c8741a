package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/squadsync/squadsync/internal/group"
	"github.com/squadsync/squadsync/internal/model"
	"github.com/squadsync/squadsync/internal/remote"
	"github.com/squadsync/squadsync/internal/roster"
)

// fakeChannel implements remote.Channel against an in-memory record map with
// the same set/patch/null-marker semantics as the relay.
type fakeChannel struct {
	mu         sync.Mutex
	connected  bool
	failAll    bool
	store      map[string]model.ScheduleEvent
	creates    int
	onSnapshot func([]model.ScheduleEvent)
	onError    func(error)
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{connected: connected, store: make(map[string]model.ScheduleEvent)}
}

func (f *fakeChannel) Subscribe(onSnapshot func([]model.ScheduleEvent), onError func(error)) (func(), error) {
	f.onSnapshot = onSnapshot
	f.onError = onError
	return func() {}, nil
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Create(_ context.Context, ev model.ScheduleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("channel rejected create")
	}
	f.store[ev.ID] = ev
	f.creates++
	return nil
}

func (f *fakeChannel) Update(_ context.Context, patches map[string]map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("channel rejected update")
	}
	for id, fields := range patches {
		if fields == nil {
			delete(f.store, id)
			continue
		}
		ev := f.store[id]
		for name, value := range fields {
			s, _ := value.(string)
			switch name {
			case "title":
				ev.Title = s
			case "date":
				ev.Date = s
			case "description":
				ev.Description = s
			case "endDate":
				ev.EndDate = s
			case "groupKey":
				ev.GroupKey = s
			}
		}
		f.store[id] = ev
	}
	return nil
}

func (f *fakeChannel) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("channel rejected delete")
	}
	for _, id := range ids {
		delete(f.store, id)
	}
	return nil
}

// push delivers the current store as a snapshot, like the relay does after a
// mutation round-trips.
func (f *fakeChannel) push() {
	f.mu.Lock()
	snapshot := make(map[string]model.ScheduleEvent, len(f.store))
	for id, ev := range f.store {
		snapshot[id] = ev
	}
	fn := f.onSnapshot
	f.mu.Unlock()
	fn(remote.FlattenSnapshot(snapshot))
}

func (f *fakeChannel) records() []model.ScheduleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ScheduleEvent, 0, len(f.store))
	for _, ev := range f.store {
		out = append(out, ev)
	}
	return out
}

// fakeCache is an in-memory Cache.
type fakeCache struct {
	mu       sync.Mutex
	events   []model.ScheduleEvent
	present  bool
	migrated bool
}

func (f *fakeCache) LoadEvents() ([]model.ScheduleEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ScheduleEvent(nil), f.events...), f.present, nil
}

func (f *fakeCache) SaveEvents(events []model.ScheduleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append([]model.ScheduleEvent(nil), events...)
	f.present = true
	return nil
}

func (f *fakeCache) MigrationDone() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.migrated, nil
}

func (f *fakeCache) MarkMigrationDone() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.migrated = true
	return nil
}

func testRoster() roster.Provider {
	return roster.NewStatic([]model.User{
		{ID: "u1", Name: "Fion"},
		{ID: "u2", Name: "Sally"},
		{ID: "u3", Name: "Eun"},
	})
}

func newTestEngine(t *testing.T, ch remote.Channel, cache Cache) *Engine {
	t.Helper()
	e := New(ch, cache, testRoster(), slog.Default())
	if err := e.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func persistedOnly(events []model.ScheduleEvent) []model.ScheduleEvent {
	var out []model.ScheduleEvent
	for _, ev := range events {
		if !strings.HasPrefix(ev.ID, "birthday-") {
			out = append(out, ev)
		}
	}
	return out
}

func TestAddFansOutPerParticipant(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	results, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Dinner", ParticipantIDs: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Op != OpCreate || r.Outcome != OutcomeDispatched {
			t.Errorf("result = %+v, want dispatched create", r)
		}
	}

	records := ch.records()
	if len(records) != 2 {
		t.Fatalf("channel holds %d records, want 2", len(records))
	}
	wantTitle := group.Marker + " Dinner"
	key := records[0].GroupKey
	ids := map[string]struct{}{}
	for _, rec := range records {
		if rec.Title != wantTitle {
			t.Errorf("title = %q, want %q", rec.Title, wantTitle)
		}
		if rec.Date != "2026-02-08" {
			t.Errorf("date = %q", rec.Date)
		}
		if rec.Status != model.StatusBusy {
			t.Errorf("status = %q, want busy", rec.Status)
		}
		if rec.GroupKey == "" || rec.GroupKey != key {
			t.Errorf("group key = %q, want shared non-empty key", rec.GroupKey)
		}
		ids[rec.ID] = struct{}{}
	}
	if len(ids) != 2 {
		t.Error("record ids must be distinct")
	}
}

func TestAddSoloHasNoMarkerOrKey(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Late Shift", ParticipantIDs: []string{"u1"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()

	records := ch.records()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if group.HasMarker(records[0].Title) {
		t.Errorf("solo title %q should not carry the marker", records[0].Title)
	}
	if records[0].GroupKey != "" {
		t.Errorf("solo event should have no group key, got %q", records[0].GroupKey)
	}
}

func TestAddInvalidRange(t *testing.T) {
	e := newTestEngine(t, newFakeChannel(true), &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-10", EndDate: "2026-02-08", Title: "Backwards", ParticipantIDs: []string{"u1"}}); err == nil {
		t.Error("end date before start should be rejected")
	}
	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Nobody", ParticipantIDs: nil}); err == nil {
		t.Error("empty participant set should be rejected")
	}
}

func TestAddOfflineAppliesLocally(t *testing.T) {
	cache := &fakeCache{}
	e := newTestEngine(t, remote.Noop{}, cache)

	results, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Dinner", ParticipantIDs: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	for _, r := range results {
		if r.Outcome != OutcomeLocal {
			t.Errorf("outcome = %q, want local", r.Outcome)
		}
	}
	if got := persistedOnly(e.Events()); len(got) != 2 {
		t.Errorf("engine holds %d events, want 2", len(got))
	}
	if saved, ok, _ := cache.LoadEvents(); !ok || len(saved) != 2 {
		t.Errorf("cache holds %d events (present=%v), want 2", len(saved), ok)
	}
}

// Add for u1+u2, then shrink to u1. The departed
// participant's record is deleted and the survivor's title loses the marker.
func TestUpdateShrinkToSingleParticipant(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Dinner", ParticipantIDs: []string{"u1", "u2"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()
	ch.push() // engine state refreshed from the authoritative snapshot

	var u1Rec model.ScheduleEvent
	for _, rec := range ch.records() {
		if rec.UserID == "u1" {
			u1Rec = rec
		}
	}

	if _, err := e.Update(UpdateIntent{TargetID: u1Rec.ID, Title: "Dinner", ParticipantIDs: []string{"u1"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Wait()

	records := ch.records()
	if len(records) != 1 {
		t.Fatalf("channel holds %d records, want 1", len(records))
	}
	got := records[0]
	if got.UserID != "u1" {
		t.Errorf("surviving record belongs to %q, want u1", got.UserID)
	}
	if got.Title != "Dinner" {
		t.Errorf("title = %q, want marker stripped", got.Title)
	}
	if got.GroupKey != "" {
		t.Errorf("group key = %q, want cleared", got.GroupKey)
	}
}

// Membership diff: {u1,u2} -> {u2,u3} keeps u2's record, deletes u1's, and
// creates one for u3, all carrying identical resolved fields.
func TestUpdateMembershipDiff(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "BoardGame", ParticipantIDs: []string{"u1", "u2"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()
	ch.push()

	byUser := map[string]model.ScheduleEvent{}
	for _, rec := range ch.records() {
		byUser[rec.UserID] = rec
	}

	results, err := e.Update(UpdateIntent{
		TargetID:       byUser["u1"].ID,
		Title:          "BoardGame Night",
		Description:    "19:00 | at Rex's",
		Date:           "2026-02-09",
		ParticipantIDs: []string{"u2", "u3"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Wait()

	kinds := map[OpKind]int{}
	for _, r := range results {
		kinds[r.Op]++
	}
	if kinds[OpUpdate] != 1 || kinds[OpDelete] != 1 || kinds[OpCreate] != 1 {
		t.Fatalf("fan-out = %v, want one of each", kinds)
	}

	records := ch.records()
	if len(records) != 2 {
		t.Fatalf("channel holds %d records, want 2", len(records))
	}
	users := map[string]struct{}{}
	wantTitle := group.Marker + " BoardGame Night"
	for _, rec := range records {
		users[rec.UserID] = struct{}{}
		if rec.Title != wantTitle {
			t.Errorf("title = %q, want %q", rec.Title, wantTitle)
		}
		if rec.Date != "2026-02-09" {
			t.Errorf("date = %q, want 2026-02-09", rec.Date)
		}
		if rec.Description != "19:00 | at Rex's" {
			t.Errorf("description = %q", rec.Description)
		}
		if rec.GroupKey == "" {
			t.Error("group records must share a key")
		}
	}
	if _, ok := users["u1"]; ok {
		t.Error("u1 should have been removed")
	}
	if _, ok := users["u2"]; !ok {
		t.Error("u2 should have been kept")
	}
	if _, ok := users["u3"]; !ok {
		t.Error("u3 should have been added")
	}
}

func TestUpdateMetadataOnlyKeepsParticipants(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Dinner", ParticipantIDs: []string{"u1", "u2"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()
	ch.push()

	target := ch.records()[0]
	results, err := e.Update(UpdateIntent{TargetID: target.ID, Title: "Dinner & Drinks"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Wait()

	for _, r := range results {
		if r.Op != OpUpdate {
			t.Errorf("metadata edit emitted %q op", r.Op)
		}
	}
	records := ch.records()
	if len(records) != 2 {
		t.Fatalf("channel holds %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.Title != group.Marker+" Dinner & Drinks" {
			t.Errorf("title = %q", rec.Title)
		}
	}
}

func TestUpdateClearsStaleEndDate(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", EndDate: "2026-02-10", Title: "Trip", ParticipantIDs: []string{"u1"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()
	ch.push()

	target := ch.records()[0]
	if _, err := e.Update(UpdateIntent{TargetID: target.ID, Title: "Trip"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Wait()

	got := ch.records()[0]
	if got.EndDate != "" {
		t.Errorf("end date = %q, want cleared when not supplied", got.EndDate)
	}
}

func TestUpdateUnknownTargetIsNoop(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	results, err := e.Update(UpdateIntent{TargetID: "nope", Title: "X"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if results != nil {
		t.Errorf("results = %+v, want none", results)
	}
}

func TestBirthdayTargetsRejected(t *testing.T) {
	e := newTestEngine(t, newFakeChannel(true), &fakeCache{})

	results, err := e.Update(UpdateIntent{TargetID: "birthday-u1-2026", Title: "Hijack"})
	if !errors.Is(err, ErrReadOnlyEvent) {
		t.Errorf("update err = %v, want ErrReadOnlyEvent", err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeRejected {
		t.Errorf("results = %+v, want one rejected", results)
	}

	results, err = e.Delete("birthday-u1-2026")
	if !errors.Is(err, ErrReadOnlyEvent) {
		t.Errorf("delete err = %v, want ErrReadOnlyEvent", err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeRejected {
		t.Errorf("results = %+v, want one rejected", results)
	}
}

// Deleting any one participant's record of a group event removes every record
// sharing the logical event.
func TestDeleteGroupRemovesAllRecords(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Party", ParticipantIDs: []string{"u1", "u2", "u3"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()
	ch.push()

	target := ch.records()[0]
	results, err := e.Delete(target.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	e.Wait()

	if len(results) != 3 {
		t.Errorf("got %d delete ops, want 3", len(results))
	}
	if remaining := ch.records(); len(remaining) != 0 {
		t.Errorf("%d records remain, want 0", len(remaining))
	}
}

func TestDeleteSoloRemovesOnlyItself(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(t, ch, &fakeCache{})

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Solo", ParticipantIDs: []string{"u1"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Solo", ParticipantIDs: []string{"u2"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()
	ch.push()

	target := ch.records()[0]
	if _, err := e.Delete(target.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	e.Wait()

	if remaining := ch.records(); len(remaining) != 1 {
		t.Errorf("%d records remain, want 1", len(remaining))
	}
}

func TestRemoteFailureFallsBackToLocal(t *testing.T) {
	ch := newFakeChannel(true)
	ch.failAll = true
	cache := &fakeCache{}
	e := newTestEngine(t, ch, cache)

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Dinner", ParticipantIDs: []string{"u1", "u2"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	e.Wait()

	if len(ch.records()) != 0 {
		t.Error("rejected creates must not reach the channel store")
	}
	if got := persistedOnly(e.Events()); len(got) != 2 {
		t.Errorf("engine holds %d events, want 2 applied as fallback", len(got))
	}
	if saved, ok, _ := cache.LoadEvents(); !ok || len(saved) != 2 {
		t.Errorf("cache holds %d events (present=%v), want fallback persisted", len(saved), ok)
	}
}

func TestSnapshotOverwritesLocalState(t *testing.T) {
	ch := newFakeChannel(true)
	cache := &fakeCache{
		events:  []model.ScheduleEvent{{ID: "stale", UserID: "u1", Date: "2026-01-01", Title: "Old", Status: model.StatusBusy}},
		present: true,
		// Migration already ran in an earlier session.
		migrated: true,
	}
	e := newTestEngine(t, ch, cache)

	ch.store["e1"] = model.ScheduleEvent{ID: "e1", UserID: "u2", Date: "2026-02-08", Title: "Fresh", Status: model.StatusBusy}
	ch.store["birthday-u1-2026"] = model.ScheduleEvent{ID: "birthday-u1-2026", UserID: "u1", Date: "2026-11-22", Title: "stale bday", Status: model.StatusBusy}
	ch.push()

	got := persistedOnly(e.Events())
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("events = %+v, want only the snapshot record", got)
	}
	if saved, _, _ := cache.LoadEvents(); len(saved) != 1 || saved[0].ID != "e1" {
		t.Errorf("cache = %+v, want overwritten by snapshot", saved)
	}
}

func TestMigrationOnFirstEmptySnapshot(t *testing.T) {
	ch := newFakeChannel(true)
	cache := &fakeCache{
		events: []model.ScheduleEvent{
			{ID: "l1", UserID: "u1", Date: "2026-02-08", Title: "A", Status: model.StatusBusy},
			{ID: "l2", UserID: "u2", Date: "2026-02-09", Title: "B", Status: model.StatusBusy},
			{ID: "l3", UserID: "u3", Date: "2026-02-10", Title: "C", Status: model.StatusBusy},
		},
		present: true,
	}
	e := newTestEngine(t, ch, cache)

	ch.push() // first snapshot: empty
	e.Wait()

	ch.mu.Lock()
	creates := ch.creates
	ch.mu.Unlock()
	if creates != 3 {
		t.Fatalf("migration issued %d creates, want 3", creates)
	}
	if done, _ := cache.MigrationDone(); !done {
		t.Error("durable migration marker should be set")
	}
	// The migration tick must not wipe in-memory state.
	if got := persistedOnly(e.Events()); len(got) != 3 {
		t.Errorf("engine holds %d events during migration, want 3", len(got))
	}

	// A second empty snapshot must not re-trigger the push.
	ch.mu.Lock()
	ch.store = make(map[string]model.ScheduleEvent)
	ch.mu.Unlock()
	ch.push()
	e.Wait()

	ch.mu.Lock()
	creates = ch.creates
	ch.mu.Unlock()
	if creates != 3 {
		t.Errorf("second empty snapshot re-issued creates: %d, want 3", creates)
	}
}

func TestEmptySnapshotWithEmptyCacheJustApplies(t *testing.T) {
	ch := newFakeChannel(true)
	cache := &fakeCache{}
	e := newTestEngine(t, ch, cache)

	ch.push()
	e.Wait()

	if got := persistedOnly(e.Events()); len(got) != 0 {
		t.Errorf("events = %+v, want empty", got)
	}
	if done, _ := cache.MigrationDone(); !done {
		t.Error("first empty snapshot consumes the one-shot guard either way")
	}
}

func TestEventsInjectsBirthdaysFirst(t *testing.T) {
	e := New(remote.Noop{}, &fakeCache{}, roster.NewStatic([]model.User{
		{ID: "u1", Name: "Fion", Birthday: "11-22", BirthYear: 1993},
	}), slog.Default())
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(e.Stop)

	if _, err := e.Add(AddIntent{Date: "2026-02-08", Title: "Dinner", ParticipantIDs: []string{"u1"}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	events := e.Events()
	if len(events) != 3 { // two birthday years + one real event
		t.Fatalf("got %d events, want 3", len(events))
	}
	if !strings.HasPrefix(events[0].ID, "birthday-") {
		t.Errorf("first event = %q, want birthdays injected ahead", events[0].ID)
	}
}
