// Package prefs holds small persisted UI settings.
package prefs

import (
	"fmt"
	"strings"
)

// Store is a synchronous key/value store that outlives the process.
type Store interface {
	Read(key string) (string, bool, error)
	Write(key, value string) error
}

// RowHeight is the size class of a trace card.
type RowHeight string

const (
	RowHeightSmall  RowHeight = "s"
	RowHeightMedium RowHeight = "m"
	RowHeightLarge  RowHeight = "l"
)

var rowHeights = []RowHeight{RowHeightSmall, RowHeightMedium, RowHeightLarge}

// Lines is the card height estimate in terminal lines.
func (h RowHeight) Lines() int {
	switch h {
	case RowHeightSmall:
		return 8
	case RowHeightLarge:
		return 28
	default:
		return 14
	}
}

func (h RowHeight) Label() string {
	switch h {
	case RowHeightSmall:
		return "small"
	case RowHeightLarge:
		return "large"
	default:
		return "medium"
	}
}

func (h RowHeight) Valid() bool {
	for _, v := range rowHeights {
		if v == h {
			return true
		}
	}
	return false
}

// Next returns the following size class, wrapping from large to small.
func (h RowHeight) Next() RowHeight {
	for i, v := range rowHeights {
		if v == h {
			return rowHeights[(i+1)%len(rowHeights)]
		}
	}
	return RowHeightMedium
}

func ParseRowHeight(s string) (RowHeight, error) {
	h := RowHeight(strings.ToLower(strings.TrimSpace(s)))
	if !h.Valid() {
		return "", fmt.Errorf("unknown row height %q", s)
	}
	return h, nil
}

// RowHeightSetting is one persisted row height, read lazily on first use.
type RowHeightSetting struct {
	store  Store
	key    string
	def    RowHeight
	loaded bool
	value  RowHeight
}

func NewRowHeightSetting(store Store, scope string, def RowHeight) *RowHeightSetting {
	if !def.Valid() {
		def = RowHeightMedium
	}
	return &RowHeightSetting{store: store, key: "rowHeight-" + scope, def: def}
}

func (s *RowHeightSetting) Key() string {
	return s.key
}

// Get returns the stored value. Unreadable or unknown values fall back to
// the default; the error is still reported.
func (s *RowHeightSetting) Get() (RowHeight, error) {
	if s.loaded {
		return s.value, nil
	}
	s.loaded = true
	s.value = s.def
	if s.store == nil {
		return s.value, nil
	}
	raw, ok, err := s.store.Read(s.key)
	if err != nil {
		return s.value, err
	}
	if !ok {
		return s.value, nil
	}
	h, err := ParseRowHeight(raw)
	if err != nil {
		return s.value, nil
	}
	s.value = h
	return s.value, nil
}

func (s *RowHeightSetting) Set(h RowHeight) error {
	if !h.Valid() {
		return fmt.Errorf("unknown row height %q", string(h))
	}
	s.loaded = true
	s.value = h
	if s.store == nil {
		return nil
	}
	if err := s.store.Write(s.key, string(h)); err != nil {
		return fmt.Errorf("persist %s: %w", s.key, err)
	}
	return nil
}

// Cycle advances to the next size class and persists it.
func (s *RowHeightSetting) Cycle() (RowHeight, error) {
	cur, _ := s.Get()
	next := cur.Next()
	return next, s.Set(next)
}
