package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is the "memory" driver. It is safe for concurrent use and is
// also the store used by tests of the packages above storage.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	prefs    map[int64]string
	updated  map[int64]time.Time
	words    []Item
	reminded map[remindKey]struct{}
	seq      int64
	closed   bool
}

type remindKey struct {
	user int64
	day  string
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		prefs:    make(map[int64]string),
		updated:  make(map[int64]time.Time),
		reminded: make(map[remindKey]struct{}),
	}
}

// PutRawPreferences stores a learning_preferences document verbatim.
func (m *Memory) PutRawPreferences(userID int64, raw string) {
	m.mu.Lock()
	m.prefs[userID] = raw
	m.updated[userID] = m.now()
	m.mu.Unlock()
}

func (m *Memory) GetSettings(_ context.Context, userID int64) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Settings{}, false, ErrDisabled
	}
	raw, ok := m.prefs[userID]
	if !ok {
		return DefaultSettings(userID), false, nil
	}
	st, err := decodePrefs(userID, raw)
	if err != nil {
		return Settings{}, false, err
	}
	st.UpdatedAt = m.updated[userID]
	return st, true, nil
}

func (m *Memory) PutSettings(_ context.Context, st Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	doc, err := mergePrefs(m.prefs[st.UserID], st)
	if err != nil {
		return err
	}
	m.prefs[st.UserID] = doc
	m.updated[st.UserID] = m.now()
	return nil
}

func (m *Memory) EnabledReminderUsers(context.Context) ([]ReminderUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrDisabled
	}
	out := make([]ReminderUser, 0, len(m.prefs))
	for id, raw := range m.prefs {
		st, err := decodePrefs(id, raw)
		if err != nil || !st.ReminderEnabled {
			continue
		}
		out = append(out, ReminderUser{UserID: id, ReminderTime: st.ReminderTime, DailyTarget: st.DailyTarget})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) DeleteUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	delete(m.prefs, userID)
	delete(m.updated, userID)
	kept := m.words[:0]
	for _, it := range m.words {
		if it.UserID != userID {
			kept = append(kept, it)
		}
	}
	m.words = kept
	for k := range m.reminded {
		if k.user == userID {
			delete(m.reminded, k)
		}
	}
	return nil
}

func (m *Memory) AddWord(_ context.Context, it Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrDisabled
	}
	it.Word = strings.TrimSpace(it.Word)
	if it.Word == "" {
		return 0, errors.New("word is required")
	}
	for _, w := range m.words {
		if w.UserID == it.UserID && w.Word == it.Word {
			return 0, errors.New("word already exists")
		}
	}
	if it.DueDate.IsZero() {
		it.DueDate = m.now()
	}
	it.DueDate = Day(it.DueDate)
	if it.Interval <= 0 {
		it.Interval = 1
	}
	m.seq++
	it.ID = m.seq
	m.words = append(m.words, it)
	return it.ID, nil
}

func (m *Memory) DueItems(_ context.Context, userID int64, today time.Time) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrDisabled
	}
	limit := Day(today)
	var out []Item
	for _, it := range m.words {
		if it.UserID == userID && !it.DueDate.After(limit) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *Memory) MarkReminded(_ context.Context, userID int64, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrDisabled
	}
	k := remindKey{user: userID, day: Day(day).Format(DateLayout)}
	if _, ok := m.reminded[k]; ok {
		return false, nil
	}
	m.reminded[k] = struct{}{}
	return true, nil
}

func (m *Memory) PruneReminded(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrDisabled
	}
	cut := Day(before).Format(DateLayout)
	var n int64
	for k := range m.reminded {
		if k.day < cut {
			delete(m.reminded, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
