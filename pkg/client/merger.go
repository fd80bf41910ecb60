package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// Merger combines relay events (pushed and fetched) with locally generated
// synthetic events into one timeline.
//
// Relay events are kept in arrival order and deduplicated by id, so a
// history fetched after a reconnect can overlap pushed events safely. Local
// events are persisted to a session file, when one is configured, so they
// survive a restart of the viewer.
type Merger struct {
	mu       sync.Mutex
	remote   []events.Event
	seen     map[string]struct{}
	local    []events.Event
	session  string
	onChange func([]events.Event)
	logger   *zerolog.Logger
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithSessionFile persists local events to path.
func WithSessionFile(path string) MergerOption {
	return func(m *Merger) { m.session = path }
}

// WithOnChange registers fn to receive the merged timeline after every
// change. fn runs with no lock held.
func WithOnChange(fn func([]events.Event)) MergerOption {
	return func(m *Merger) { m.onChange = fn }
}

// WithMergerLogger sets the merger logger.
func WithMergerLogger(logger *zerolog.Logger) MergerOption {
	return func(m *Merger) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMerger creates a merger, restoring local events from the session file
// if it exists.
func NewMerger(opts ...MergerOption) (*Merger, error) {
	nop := zerolog.Nop()
	m := &Merger{
		seen:   make(map[string]struct{}),
		logger: &nop,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.restore(); err != nil {
		return nil, err
	}
	return m, nil
}

// AddPushed appends a live event. It reports false for an id already seen.
func (m *Merger) AddPushed(e events.Event) bool {
	m.mu.Lock()
	added := m.addRemote(e)
	m.mu.Unlock()

	if added {
		m.notify()
	}
	return added
}

// AdoptHistory adds every fetched event not already present and returns
// how many were new.
func (m *Merger) AdoptHistory(list []events.Event) int {
	m.mu.Lock()
	n := 0
	for _, e := range list {
		if m.addRemote(e) {
			n++
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.notify()
	}
	return n
}

func (m *Merger) addRemote(e events.Event) bool {
	if e.ID != "" {
		if _, ok := m.seen[e.ID]; ok {
			return false
		}
		m.seen[e.ID] = struct{}{}
	}
	m.remote = append(m.remote, e)
	return true
}

// AddLocal records a locally generated event and persists the local set.
func (m *Merger) AddLocal(e events.Event) error {
	m.mu.Lock()
	m.local = append(m.local, e)
	err := m.persist()
	m.mu.Unlock()

	m.notify()
	return err
}

// Events returns the merged timeline sorted by timestamp. Events sharing an
// instant keep relay events before local ones, each in arrival order.
func (m *Merger) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.merged()
}

func (m *Merger) merged() []events.Event {
	out := make([]events.Event, 0, len(m.remote)+len(m.local))
	out = append(out, m.remote...)
	out = append(out, m.local...)
	events.SortByTimestamp(out)
	return out
}

// Len returns the number of merged events.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.remote) + len(m.local)
}

// LocalEvents returns a copy of the local events.
func (m *Merger) LocalEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.local))
	copy(out, m.local)
	return out
}

// Reset forgets every event and removes the session file.
func (m *Merger) Reset() error {
	m.mu.Lock()
	m.remote = nil
	m.local = nil
	m.seen = make(map[string]struct{})
	var err error
	if m.session != "" {
		if rerr := os.Remove(m.session); rerr != nil && !os.IsNotExist(rerr) {
			err = errors.WrapIO("remove", m.session, rerr)
		}
	}
	m.mu.Unlock()

	m.notify()
	return err
}

func (m *Merger) notify() {
	if m.onChange == nil {
		return
	}
	m.onChange(m.Events())
}

// persist writes the local events. An empty set leaves the file alone so a
// failed generator run never wipes a saved session. Callers hold m.mu.
func (m *Merger) persist() error {
	if m.session == "" || len(m.local) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(m.local, "", "  ")
	if err != nil {
		return errors.WrapParse("json", m.session, err)
	}
	if dir := filepath.Dir(m.session); dir != "." {
		if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
			return errors.WrapIO("mkdir", dir, err)
		}
	}
	if err := os.WriteFile(m.session, data, constants.SecureFilePermissions); err != nil {
		return errors.WrapIO("write", m.session, err)
	}
	return nil
}

// restore loads local events from the session file. A missing file is an
// empty session; an unreadable one is logged and ignored.
func (m *Merger) restore() error {
	if m.session == "" {
		return nil
	}
	data, err := os.ReadFile(m.session)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapIO("read", m.session, err)
	}

	var list []events.Event
	if err := json.Unmarshal(data, &list); err != nil {
		m.logger.Warn().Err(err).Str("file", m.session).Msg("Ignoring corrupt session file")
		return nil
	}
	m.local = list
	m.logger.Debug().Int("count", len(list)).Str("file", m.session).Msg("Restored session events")
	return nil
}
