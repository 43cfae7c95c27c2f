package prefs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values map[string]string
	reads  int
	err    error
}

func (m *memStore) Read(key string) (string, bool, error) {
	m.reads++
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Write(key, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func TestRowHeightDefaultsAndPersists(t *testing.T) {
	st := &memStore{}
	s := NewRowHeightSetting(st, "single-session", RowHeightMedium)
	assert.Equal(t, "rowHeight-single-session", s.Key())

	h, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, RowHeightMedium, h)

	require.NoError(t, s.Set(RowHeightLarge))
	assert.Equal(t, "l", st.values["rowHeight-single-session"])

	reopened := NewRowHeightSetting(st, "single-session", RowHeightMedium)
	h, err = reopened.Get()
	require.NoError(t, err)
	assert.Equal(t, RowHeightLarge, h)
}

func TestRowHeightReadsOnce(t *testing.T) {
	st := &memStore{values: map[string]string{"rowHeight-x": "s"}}
	s := NewRowHeightSetting(st, "x", RowHeightMedium)
	for i := 0; i < 3; i++ {
		h, err := s.Get()
		require.NoError(t, err)
		assert.Equal(t, RowHeightSmall, h)
	}
	assert.Equal(t, 1, st.reads)
}

func TestRowHeightUnknownValueFallsBack(t *testing.T) {
	st := &memStore{values: map[string]string{"rowHeight-x": "xl"}}
	h, err := NewRowHeightSetting(st, "x", RowHeightSmall).Get()
	require.NoError(t, err)
	assert.Equal(t, RowHeightSmall, h)
}

func TestRowHeightReadErrorFallsBack(t *testing.T) {
	st := &memStore{err: errors.New("disk gone")}
	h, err := NewRowHeightSetting(st, "x", RowHeightLarge).Get()
	require.Error(t, err)
	assert.Equal(t, RowHeightLarge, h)
}

func TestCycle(t *testing.T) {
	st := &memStore{}
	s := NewRowHeightSetting(st, "x", RowHeightSmall)
	want := []RowHeight{RowHeightMedium, RowHeightLarge, RowHeightSmall}
	for _, w := range want {
		got, err := s.Cycle()
		require.NoError(t, err)
		assert.Equal(t, w, got)
		assert.Equal(t, string(w), st.values["rowHeight-x"])
	}
}

func TestLinesAndParse(t *testing.T) {
	assert.Equal(t, 8, RowHeightSmall.Lines())
	assert.Equal(t, 14, RowHeightMedium.Lines())
	assert.Equal(t, 28, RowHeightLarge.Lines())

	h, err := ParseRowHeight(" L ")
	require.NoError(t, err)
	assert.Equal(t, RowHeightLarge, h)
	_, err = ParseRowHeight("huge")
	assert.Error(t, err)
	assert.Error(t, NewRowHeightSetting(nil, "x", "").Set("huge"))
}
