package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/squadsync/squadsync/internal/birthday"
	"github.com/squadsync/squadsync/internal/model"
	"github.com/squadsync/squadsync/internal/remote"
	"github.com/squadsync/squadsync/internal/roster"
)

// Cache is the persisted local fallback the engine reads through.
type Cache interface {
	LoadEvents() ([]model.ScheduleEvent, bool, error)
	SaveEvents([]model.ScheduleEvent) error
	MigrationDone() (bool, error)
	MarkMigrationDone() error
}

// Engine turns UI-level mutation intents into per-record operations and picks
// the transport: the realtime channel when connected, otherwise local state
// plus the persisted cache. Once connected, the channel is authoritative and
// every snapshot it delivers overwrites local state.
type Engine struct {
	channel remote.Channel
	cache   Cache
	roster  roster.Provider
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	events   []model.ScheduleEvent // persisted records only; birthdays are derived
	migrated bool
	stop     func()

	wg sync.WaitGroup

	onChange func([]model.ScheduleEvent)
}

// New creates an Engine. Call Start to load the cache and subscribe.
func New(channel remote.Channel, cache Cache, provider roster.Provider, logger *slog.Logger) *Engine {
	return &Engine{
		channel: channel,
		cache:   cache,
		roster:  provider,
		logger:  logger,
		now:     time.Now,
	}
}

// OnChange registers a callback invoked with the merged event list after every
// state change. Must be set before Start.
func (e *Engine) OnChange(fn func([]model.ScheduleEvent)) {
	e.onChange = fn
}

// Start loads the persisted cache and subscribes to the realtime channel.
// A failed subscription is not an error: the session runs in local-fallback
// mode for its whole lifetime.
func (e *Engine) Start() error {
	events, ok, err := e.cache.LoadEvents()
	if err != nil {
		e.logger.Warn("cache load failed, starting empty", "error", err)
	}
	if ok {
		e.events = birthday.FilterPersisted(events)
	}

	migrated, err := e.cache.MigrationDone()
	if err != nil {
		e.logger.Warn("migration marker unreadable", "error", err)
	}
	e.migrated = migrated

	stop, err := e.channel.Subscribe(e.handleSnapshot, e.handleChannelError)
	if err != nil {
		e.logger.Warn("realtime subscription failed, running in local mode", "error", err)
		return nil
	}
	e.stop = stop
	return nil
}

// Stop ends the subscription and flushes in-flight dispatches.
func (e *Engine) Stop() {
	if e.stop != nil {
		e.stop()
	}
	e.wg.Wait()
}

// Wait blocks until all in-flight remote dispatches have completed.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Connected reports whether the realtime channel is currently the transport.
func (e *Engine) Connected() bool {
	return e.channel.Connected()
}

// Events returns the full merged list: freshly generated birthday events
// injected ahead of the persisted records.
func (e *Engine) Events() []model.ScheduleEvent {
	e.mu.Lock()
	persisted := make([]model.ScheduleEvent, len(e.events))
	copy(persisted, e.events)
	e.mu.Unlock()

	all := birthday.Upcoming(e.roster.Members(), e.now())
	return append(all, persisted...)
}

// handleSnapshot applies an authoritative snapshot from the channel. The first
// empty snapshot instead triggers the one-time migration of cached local data:
// the one-shot flag and its durable marker are set before any push begins so a
// second empty snapshot (or a restart) cannot re-run it.
func (e *Engine) handleSnapshot(snapshot []model.ScheduleEvent) {
	e.mu.Lock()
	if len(snapshot) == 0 && !e.migrated {
		e.migrated = true
		if err := e.cache.MarkMigrationDone(); err != nil {
			e.logger.Warn("persist migration marker", "error", err)
		}
		local := make([]model.ScheduleEvent, len(e.events))
		copy(local, e.events)
		e.mu.Unlock()

		if len(local) > 0 {
			e.logger.Info("migrating local events to relay", "count", len(local))
			for _, ev := range local {
				e.wg.Add(1)
				go e.migrateCreate(ev)
			}
			// Local values stay in memory; the post-migration snapshot
			// becomes the real state.
			return
		}

		e.applySnapshot(nil)
		return
	}
	e.mu.Unlock()

	e.applySnapshot(snapshot)
}

func (e *Engine) applySnapshot(snapshot []model.ScheduleEvent) {
	e.mu.Lock()
	e.events = birthday.FilterPersisted(snapshot)
	if err := e.cache.SaveEvents(e.events); err != nil {
		e.logger.Warn("persist snapshot", "error", err)
	}
	e.mu.Unlock()

	e.notify()
}

// migrateCreate pushes one cached event during migration. Unlike normal
// dispatches there is no local fallback: the record is already local.
func (e *Engine) migrateCreate(ev model.ScheduleEvent) {
	defer e.wg.Done()
	if err := e.channel.Create(context.Background(), ev); err != nil {
		e.logger.Warn("migration push failed", "event", ev.ID, "error", err)
	}
}

func (e *Engine) handleChannelError(err error) {
	e.logger.Warn("realtime channel error, continuing on local cache", "error", err)
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange(e.Events())
	}
}

// dispatch routes a plan to the realtime channel when connected (independent
// fire-and-forget operations, each falling back to a local apply on failure)
// or applies it synchronously to local state otherwise.
func (e *Engine) dispatch(p plan) []Result {
	if p.empty() {
		return nil
	}

	if !e.channel.Connected() {
		e.applyLocal(p)
		return p.results(OutcomeLocal)
	}

	for _, ev := range p.creates {
		e.wg.Add(1)
		go e.remoteCreate(ev)
	}
	if len(p.updates) > 0 {
		e.wg.Add(1)
		go e.remoteUpdate(p.updates)
	}
	if len(p.deletes) > 0 {
		e.wg.Add(1)
		go e.remoteDelete(p.deletes)
	}
	return p.results(OutcomeDispatched)
}

func (e *Engine) remoteCreate(ev model.ScheduleEvent) {
	defer e.wg.Done()
	if err := e.channel.Create(context.Background(), ev); err != nil {
		e.logger.Warn("remote create failed, applying locally", "event", ev.ID, "error", err)
		e.applyLocal(plan{creates: []model.ScheduleEvent{ev}})
	}
}

func (e *Engine) remoteUpdate(updates []model.ScheduleEvent) {
	defer e.wg.Done()
	if err := e.channel.Update(context.Background(), patchesFor(updates)); err != nil {
		e.logger.Warn("remote update failed, applying locally", "error", err)
		e.applyLocal(plan{updates: updates})
	}
}

func (e *Engine) remoteDelete(ids []string) {
	defer e.wg.Done()
	if err := e.channel.Delete(context.Background(), ids); err != nil {
		e.logger.Warn("remote delete failed, applying locally", "error", err)
		e.applyLocal(plan{deletes: ids})
	}
}

// applyLocal applies a plan to in-memory state and persists the result.
func (e *Engine) applyLocal(p plan) {
	e.mu.Lock()

	if len(p.deletes) > 0 {
		doomed := make(map[string]struct{}, len(p.deletes))
		for _, id := range p.deletes {
			doomed[id] = struct{}{}
		}
		kept := e.events[:0]
		for _, ev := range e.events {
			if _, gone := doomed[ev.ID]; !gone {
				kept = append(kept, ev)
			}
		}
		e.events = kept
	}

	for _, upd := range p.updates {
		for i := range e.events {
			if e.events[i].ID == upd.ID {
				e.events[i] = upd
				break
			}
		}
	}

	for _, created := range p.creates {
		replaced := false
		for i := range e.events {
			if e.events[i].ID == created.ID {
				e.events[i] = created
				replaced = true
				break
			}
		}
		if !replaced {
			e.events = append(e.events, created)
		}
	}

	if err := e.cache.SaveEvents(e.events); err != nil {
		e.logger.Warn("persist local events", "error", err)
	}
	e.mu.Unlock()

	e.notify()
}

// patchesFor expresses full desired records as per-id partial field writes.
// Empty optional fields are written as null markers so nothing stale survives
// on the remote copy.
func patchesFor(updates []model.ScheduleEvent) map[string]map[string]any {
	patches := make(map[string]map[string]any, len(updates))
	for _, ev := range updates {
		fields := map[string]any{
			"title": ev.Title,
			"date":  ev.Date,
		}
		fields["description"] = nullable(ev.Description)
		fields["endDate"] = nullable(ev.EndDate)
		fields["groupKey"] = nullable(ev.GroupKey)
		patches[ev.ID] = fields
	}
	return patches
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
