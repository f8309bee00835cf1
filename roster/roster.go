// Package roster manages the list of locomotives available for selection on
// the throttle. The list is ordered alphabetically by display name, capped by
// the hardware indicator count, and persisted to non-volatile storage on every
// successful update.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/arloliu/go-rocrail/logger"
	"github.com/arloliu/go-rocrail/rcp"
)

// MaxLocomotives is the roster size cap; the selection indicators on the
// hardware only cover five locomotives.
const MaxLocomotives = 5

// Entry is one locomotive in the roster.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is the locomotive roster with selection state. All methods are safe
// for concurrent use; the lock is private to the roster so a slow roster
// update never blocks unrelated state reads.
type List struct {
	mu       sync.Mutex
	entries  []Entry
	selected int
	store    Store
	logger   logger.Logger
}

// NewList creates a roster backed by the given store and loads any persisted
// entries. A nil store keeps the roster in memory only. Load failure yields
// an empty roster, never an error.
func NewList(store Store, log logger.Logger) *List {
	if log == nil {
		log = logger.GetLogger()
	}

	l := &List{store: store, logger: log}
	l.load()

	return l
}

// Add appends a locomotive unless the id already exists or the roster is
// full. The roster is re-sorted alphabetically and the selection reset to the
// first entry. It returns true if the locomotive was added.
func (l *List) Add(id, name string) bool {
	if id == "" {
		return false
	}
	if name == "" {
		name = id
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.ID == id {
			return false
		}
	}
	if len(l.entries) >= MaxLocomotives {
		return false
	}

	l.entries = append(l.entries, Entry{ID: id, Name: name})
	l.sortLocked()

	return true
}

// Commit replaces the roster contents with the locomotive definitions from an
// extraction pass, capped at MaxLocomotives, and persists the result. It
// returns the number of entries committed. Committing the same extraction
// twice yields the same roster both times.
func (l *List) Commit(locos []rcp.LocoEntry) int {
	l.mu.Lock()

	l.entries = l.entries[:0]
	l.selected = 0

	added := 0
	for _, loco := range locos {
		if loco.ID == "" {
			continue
		}
		dup := false
		for _, entry := range l.entries {
			if entry.ID == loco.ID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		l.entries = append(l.entries, Entry{ID: loco.ID, Name: loco.Name})
		added++
		if added >= MaxLocomotives {
			break
		}
	}
	l.sortLocked()
	l.mu.Unlock()

	if added > 0 {
		if err := l.Save(); err != nil {
			l.logger.Error("failed to persist roster", "error", err)
		}
	}

	return added
}

// SelectNext advances the selection to the next locomotive, wrapping around.
// It returns true if the selection changed.
func (l *List) SelectNext() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) <= 1 {
		return false
	}
	l.selected = (l.selected + 1) % len(l.entries)

	return true
}

// SelectPrevious moves the selection to the previous locomotive, wrapping
// around. It returns true if the selection changed.
func (l *List) SelectPrevious() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) <= 1 {
		return false
	}
	l.selected = (l.selected - 1 + len(l.entries)) % len(l.entries)

	return true
}

// SelectIndex selects the locomotive at the given index.
// It returns true if the selection changed.
func (l *List) SelectIndex(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.entries) || index == l.selected {
		return false
	}
	l.selected = index

	return true
}

// Selected returns the currently selected locomotive, or false if the roster
// is empty.
func (l *List) Selected() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}

	return l.entries[l.selected], true
}

// SelectedID returns the id of the currently selected locomotive, or "" if
// the roster is empty.
func (l *List) SelectedID() string {
	entry, ok := l.Selected()
	if !ok {
		return ""
	}

	return entry.ID
}

// SelectedIndex returns the index of the current selection.
func (l *List) SelectedIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.selected
}

// Count returns the number of locomotives in the roster.
func (l *List) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Entries returns a copy of the roster in display order.
func (l *List) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)

	return entries
}

// Clear removes all locomotives and resets the selection.
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = l.entries[:0]
	l.selected = 0
}

// Save persists the roster and selection to the backing store.
func (l *List) Save() error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	selected := l.selected
	l.mu.Unlock()

	return l.store.Save(entries, selected)
}

// load restores the roster from the backing store. Any failure leaves the
// roster empty; a missing file on first boot is the normal case.
func (l *List) load() {
	if l.store == nil {
		return
	}

	entries, selected, err := l.store.Load()
	if err != nil {
		l.logger.Debug("no persisted roster loaded", "error", err)
		return
	}

	if len(entries) > MaxLocomotives {
		entries = entries[:MaxLocomotives]
	}
	if selected < 0 || selected >= len(entries) {
		selected = 0
	}

	l.mu.Lock()
	l.entries = entries
	l.selected = selected
	l.mu.Unlock()

	l.logger.Info("roster loaded from storage", "count", len(entries), "selected", selected)
}

// sortLocked orders entries alphabetically by display name and resets the
// selection to the first entry. Callers must hold the lock.
func (l *List) sortLocked() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		return strings.ToUpper(l.entries[i].Name) < strings.ToUpper(l.entries[j].Name)
	})
	l.selected = 0
}
