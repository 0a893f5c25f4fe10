// Package coordinator drives persistence around a wizard session: debounced
// dual-channel autosave, resume, export/import, and final submission.
//
// Two channels are written on every save. The local snapshot slot is the
// fast tier and always receives the write; the remote draft store receives a
// best-effort upsert whose health is tracked by a save-state machine. A
// failure on either channel never blocks the wizard itself.
package coordinator

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/notify"
	"github.com/propelhealth/onboardflow/internal/refdata"
	"github.com/propelhealth/onboardflow/internal/store"
	"github.com/propelhealth/onboardflow/internal/wizard"
)

// DefaultSaveWindow is the debounce quiet window for autosave.
const DefaultSaveWindow = 2 * time.Second

// DefaultSavedDisplay is how long the "saved" state lingers before
// returning to idle.
const DefaultSavedDisplay = 2 * time.Second

// DefaultSlotKey is the local snapshot slot used when none is configured.
const DefaultSlotKey = "onboardflow_draft"

// Opts holds configuration options for the Coordinator.
type Opts struct {
	SaveWindow   time.Duration
	SavedDisplay time.Duration
	SlotKey      string
	Notifier     notify.Notifier
	Reference    *refdata.ReferenceData
}

// Option configures a Coordinator.
type Option func(*Opts)

// WithSaveWindow overrides the autosave debounce window.
func WithSaveWindow(d time.Duration) Option {
	return func(o *Opts) { o.SaveWindow = d }
}

// WithSavedDisplay overrides how long the saved state is shown.
func WithSavedDisplay(d time.Duration) Option {
	return func(o *Opts) { o.SavedDisplay = d }
}

// WithSlotKey overrides the local snapshot slot key.
func WithSlotKey(key string) Option {
	return func(o *Opts) { o.SlotKey = key }
}

// WithNotifier sets the submission notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithReferenceData sets the reference data used for submission projection.
func WithReferenceData(r *refdata.ReferenceData) Option {
	return func(o *Opts) { o.Reference = r }
}

// Coordinator owns the persistence lifecycle of one wizard session.
type Coordinator struct {
	session  *wizard.Session
	local    store.SnapshotStore
	remote   store.DraftStore
	notifier notify.Notifier
	ref      *refdata.ReferenceData

	slotKey      string
	savedDisplay time.Duration
	debouncer    *Debouncer

	mu           sync.Mutex
	foreground   bool
	closed       bool
	suspended    bool
	draftID      string
	remoteState  models.SaveState
	remoteSeq    int64
	lastSavedAt  time.Time
	localHealthy bool
}

// New creates a coordinator around session and wires it to the session's
// change notifications. The session starts in the foreground.
func New(session *wizard.Session, local store.SnapshotStore, remote store.DraftStore, opts ...Option) *Coordinator {
	cfg := Opts{
		SaveWindow:   DefaultSaveWindow,
		SavedDisplay: DefaultSavedDisplay,
		SlotKey:      DefaultSlotKey,
		Notifier:     notify.NopNotifier{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Coordinator{
		session:      session,
		local:        local,
		remote:       remote,
		notifier:     cfg.Notifier,
		ref:          cfg.Reference,
		slotKey:      cfg.SlotKey,
		savedDisplay: cfg.SavedDisplay,
		debouncer:    NewDebouncer(cfg.SaveWindow),
		foreground:   true,
		remoteState:  models.SaveStateIdle,
		localHealthy: true,
	}
	session.Subscribe(c.onChange)
	return c
}

// Session returns the wizard session this coordinator persists.
func (c *Coordinator) Session() *wizard.Session { return c.session }

// RemoteState reports the remote channel's save-state machine.
func (c *Coordinator) RemoteState() models.SaveState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteState
}

// LocalHealthy reports whether the last local write succeeded.
func (c *Coordinator) LocalHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localHealthy
}

// LastSavedAt returns the time of the last successful remote save.
func (c *Coordinator) LastSavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSavedAt
}

// DraftID returns the remote record id once one has been assigned.
func (c *Coordinator) DraftID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftID
}

// onChange is the session change listener. Saves are deferred through the
// debouncer and suppressed while the session is backgrounded.
func (c *Coordinator) onChange() {
	c.mu.Lock()
	skip := c.closed || c.suspended || !c.foreground
	c.mu.Unlock()
	if skip {
		slog.Debug("Coordinator skipping autosave", "slotKey", c.slotKey)
		return
	}
	c.debouncer.Schedule(c.persist)
}

// SetForeground toggles the foreground gate. Moving to the background
// flushes any pending save immediately so no work is lost.
func (c *Coordinator) SetForeground(fg bool) {
	c.mu.Lock()
	c.foreground = fg
	c.mu.Unlock()
	if !fg {
		slog.Debug("Coordinator backgrounded, flushing pending save")
		c.debouncer.Flush()
	}
}

// SaveNow forces an immediate save of the current session state.
func (c *Coordinator) SaveNow() {
	c.debouncer.Cancel()
	c.persist()
}

// RetryRemote re-runs the remote upsert after a sticky error.
func (c *Coordinator) RetryRemote() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	snap := c.session.Snapshot()
	c.persistRemote(snap)
}

// Close flushes pending work and stops the coordinator.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.debouncer.Flush()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// persist writes the current snapshot to both channels. An empty answer set
// is never persisted; the slot holds real progress or nothing.
func (c *Coordinator) persist() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	snap := c.session.Snapshot()
	if len(snap.Answers) == 0 {
		slog.Debug("Coordinator skipping save of empty answer set", "slotKey", c.slotKey)
		return
	}
	c.mu.Lock()
	snap.RemoteID = c.draftID
	c.mu.Unlock()

	c.persistLocal(snap)
	c.persistRemote(snap)
}

// persistLocal writes the snapshot to the local slot. A failed write is
// remediated once by clearing the slot and retrying; a second failure
// degrades the local channel silently.
func (c *Coordinator) persistLocal(snap models.DraftSnapshot) {
	err := c.local.WriteSnapshot(c.slotKey, snap)
	if err != nil {
		slog.Warn("Coordinator local write failed, clearing slot and retrying", "error", err, "slotKey", c.slotKey)
		if clearErr := c.local.ClearSnapshot(c.slotKey); clearErr != nil {
			slog.Error("Coordinator failed to clear local slot", "error", clearErr, "slotKey", c.slotKey)
		}
		err = c.local.WriteSnapshot(c.slotKey, snap)
	}

	c.mu.Lock()
	c.localHealthy = err == nil
	c.mu.Unlock()

	if err != nil {
		slog.Error("Coordinator local channel degraded", "error", err, "slotKey", c.slotKey)
		return
	}
	slog.Debug("Coordinator local snapshot written", "slotKey", c.slotKey, "answers", len(snap.Answers))
}

// persistRemote upserts the snapshot into the remote draft store and drives
// the save-state machine. Results of superseded attempts are discarded.
func (c *Coordinator) persistRemote(snap models.DraftSnapshot) {
	rec, ok := c.buildDraftRecord(snap, models.DraftStatusDraft)
	if !ok {
		slog.Debug("Coordinator remote save skipped, no draft key available")
		return
	}

	c.mu.Lock()
	c.remoteSeq++
	seq := c.remoteSeq
	c.remoteState = models.SaveStateSaving
	c.mu.Unlock()

	stored, err := c.remote.UpsertDraft(rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.remoteSeq {
		slog.Debug("Coordinator discarding stale remote save result", "seq", seq)
		return
	}
	if err != nil {
		c.remoteState = models.SaveStateError
		slog.Error("Coordinator remote save failed", "error", err, "draftID", rec.ID)
		return
	}

	c.draftID = stored.ID
	c.lastSavedAt = time.Now()
	c.remoteState = models.SaveStateSaved
	slog.Debug("Coordinator remote draft saved", "draftID", stored.ID)

	time.AfterFunc(c.savedDisplay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq == c.remoteSeq && c.remoteState == models.SaveStateSaved {
			c.remoteState = models.SaveStateIdle
		}
	})
}

// buildDraftRecord shapes the remote row for the current session. It reports
// false when no key (record id, owner id, or email) is available yet.
func (c *Coordinator) buildDraftRecord(snap models.DraftSnapshot, status models.DraftStatus) (models.DraftRecord, bool) {
	identity := c.session.Identity()
	email := submitterEmail(snap.Answers, identity)

	rec := models.DraftRecord{
		ID:         snap.RemoteID,
		Status:     status,
		OwnerEmail: email,
		OwnerName:  submitterName(snap.Answers, identity),
		Program:    snap.Answers.String(c.session.Schema().TrackQuestion()),
		Snapshot:   snap,
	}
	if identity != nil {
		rec.OwnerID = identity.ID
	}
	if rec.ID == "" && rec.OwnerID == "" && rec.OwnerEmail == "" {
		return models.DraftRecord{}, false
	}
	return rec, true
}

// submitterEmail resolves the email that keys the remote draft, preferring
// the authenticated identity and falling back through the answer set.
func submitterEmail(answers models.AnswerSet, identity *models.Identity) string {
	if identity != nil && identity.Email != "" {
		return normalizeEmail(identity.Email)
	}
	if v := answers.String("submitter_email"); v != "" {
		return normalizeEmail(v)
	}
	for _, field := range []string{"clinic_champion", "contact_primary", "genetic_counselor"} {
		if v := answers.ObjectField(field, "email"); v != "" {
			return normalizeEmail(v)
		}
	}
	return ""
}

// submitterName resolves a display name for the draft owner.
func submitterName(answers models.AnswerSet, identity *models.Identity) string {
	if v := answers.String("submitter_name"); v != "" {
		return v
	}
	for _, field := range []string{"clinic_champion", "contact_primary"} {
		if v := answers.ObjectField(field, "name"); v != "" {
			return v
		}
	}
	if identity != nil && identity.Email != "" {
		return identity.Email
	}
	return "Unknown"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
