// SPDX-License-Identifier: AGPL-3.0-only

// Package scheduler manages volatile scheduled invocations: deferred,
// possibly recurring, one-shot agent runs triggered by time rather than by
// an inbound message. All state lives in process memory; a restart loses
// every pending invocation.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/balibots/balijarbas/internal/errors"
	"github.com/balibots/balijarbas/internal/logging"
)

// cronParser accepts standard five-field expressions with an optional
// seconds field and descriptors like @hourly.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// oneShotFormats are the accepted timestamp layouts for one-shot triggers.
var oneShotFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Invocation is one scheduled agent run.
type Invocation struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Prompt    string    `json:"prompt"`
	Schedule  string    `json:"schedule,omitempty"` // recurrence expression, recurring only
	At        time.Time `json:"at,omitempty"`       // fire time, one-shot only
	Recurring bool      `json:"recurring"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	NextRun   time.Time `json:"next_run"`
}

// Runner executes a fired invocation. The agent orchestrator implements it
// with a reduced tool catalog and a single-round budget.
type Runner interface {
	RunScheduled(ctx context.Context, inv *Invocation) error
}

// entry pairs an invocation with its liveness handle. Exactly one of timer
// (one-shot) or entryID (recurring) is live; the Scheduler exclusively owns
// it.
type entry struct {
	inv     *Invocation
	timer   *time.Timer
	entryID cron.EntryID
}

// Scheduler owns the live invocation set.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.RWMutex
	entries map[string]*entry
	runner  Runner
	logger  *logging.Logger
	baseCtx context.Context
}

// New creates a scheduler. Runner must be set before Start.
func New(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// SetRunner sets the executor used when an invocation fires.
func (s *Scheduler) SetRunner(r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

// Start begins the scheduler. Fired invocations inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the scheduler and cancels all pending triggers.
func (s *Scheduler) Stop() {
	s.cron.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, id)
	}
}

// Create registers a new invocation for chatID. trigger is either a
// timestamp (one-shot) or a recurrence expression (recurring). The returned
// invocation carries its unique ID and is a copy; the live entry stays
// exclusively behind mu.
func (s *Scheduler) Create(chatID, prompt, trigger string, recurring bool, createdBy string) (*Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner == nil {
		return nil, errors.Internal(fmt.Errorf("scheduler has no runner"))
	}

	inv := &Invocation{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Prompt:    prompt,
		Recurring: recurring,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}

	if recurring {
		schedule, err := cronParser.Parse(trigger)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("invalid recurrence expression %q: %v", trigger, err))
		}
		inv.Schedule = trigger
		inv.NextRun = schedule.Next(time.Now())

		entryID, err := s.cron.AddFunc(trigger, func() { s.fire(inv.ID) })
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("invalid recurrence expression %q: %v", trigger, err))
		}
		s.entries[inv.ID] = &entry{inv: inv, entryID: entryID}
		out := *inv
		return &out, nil
	}

	at, err := parseOneShot(trigger)
	if err != nil {
		return nil, err
	}
	if !at.After(time.Now()) {
		return nil, errors.InvalidInput("scheduled time must be in the future")
	}
	inv.At = at
	inv.NextRun = at

	timer := time.AfterFunc(time.Until(at), func() { s.fire(inv.ID) })
	s.entries[inv.ID] = &entry{inv: inv, timer: timer}
	out := *inv
	return &out, nil
}

// List returns copies of the live invocations belonging to chatID. Copies
// keep callers off the live structs, which recurring fires mutate under mu.
func (s *Scheduler) List(chatID string) []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()

	invs := make([]Invocation, 0)
	for _, e := range s.entries {
		if e.inv.ChatID == chatID {
			if e.inv.Recurring {
				s.refreshNextRun(e)
			}
			invs = append(invs, *e.inv)
		}
	}
	return invs
}

// Cancel removes a live invocation. The invocation must belong to chatID;
// cross-conversation cancellation is rejected.
func (s *Scheduler) Cancel(id, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[id]
	if !exists {
		return errors.NotFound("scheduled task", id)
	}
	if e.inv.ChatID != chatID {
		return errors.InvalidInput("task does not belong to this chat")
	}

	s.removeLocked(id, e)
	return nil
}

// CancelAll removes every live invocation for chatID. Used when the owning
// conversation is torn down.
func (s *Scheduler) CancelAll(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.inv.ChatID == chatID {
			s.removeLocked(id, e)
			n++
		}
	}
	return n
}

// removeLocked stops the liveness handle and deletes the entry. Caller holds mu.
func (s *Scheduler) removeLocked(id string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	} else {
		s.cron.Remove(e.entryID)
	}
	delete(s.entries, id)
}

// fire runs a triggered invocation. One-shots are deleted from the live set
// before execution starts; from that point the run is not preemptible.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, exists := s.entries[id]
	if !exists {
		// Canceled between trigger dispatch and execution.
		s.mu.Unlock()
		return
	}
	if !e.inv.Recurring {
		delete(s.entries, id)
	} else {
		s.refreshNextRun(e)
	}
	// Snapshot before releasing mu; the runner must not touch the live struct.
	inv := *e.inv
	runner := s.runner
	ctx := s.baseCtx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Infof("Firing scheduled invocation %s for chat %s", inv.ID, inv.ChatID)
	if err := runner.RunScheduled(ctx, &inv); err != nil {
		s.logger.Errorf("Scheduled invocation %s failed: %v", inv.ID, err)
	}
}

// refreshNextRun updates a recurring invocation's next fire time from its
// cron entry. Caller holds mu.
func (s *Scheduler) refreshNextRun(e *entry) {
	for _, ce := range s.cron.Entries() {
		if ce.ID == e.entryID {
			e.inv.NextRun = ce.Next
			break
		}
	}
}

// parseOneShot parses a one-shot trigger timestamp.
func parseOneShot(trigger string) (time.Time, error) {
	trigger = strings.TrimSpace(trigger)
	for _, layout := range oneShotFormats {
		if t, err := time.ParseInLocation(layout, trigger, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.InvalidInput(fmt.Sprintf("invalid timestamp %q", trigger))
}
