package threadstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Run("too few names", func(t *testing.T) {
		_, err := New("only")
		assert.ErrorIs(t, err, ErrTooFewStates)
	})
	t.Run("empty name", func(t *testing.T) {
		_, err := New("record", "")
		assert.ErrorIs(t, err, ErrEmptyName)
	})
	t.Run("duplicate name", func(t *testing.T) {
		_, err := New("record", "replay", "record")
		assert.ErrorIs(t, err, ErrDuplicateState)
	})
}

func TestDefaultState(t *testing.T) {
	s, err := New("off", "record", "replay")
	require.NoError(t, err)

	assert.Equal(t, "off", s.Value())
	assert.Equal(t, "off", s.Default())
	assert.Equal(t, []string{"off", "record", "replay"}, s.Names())

	// Fresh goroutines also start at the default.
	var wg sync.WaitGroup
	var other string
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = s.Value()
	}()
	wg.Wait()
	assert.Equal(t, "off", other)
}

func TestSetValue(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	require.NoError(t, s.SetValue("record"))
	assert.Equal(t, "record", s.Value())

	assert.ErrorIs(t, s.SetValue("bogus"), ErrUnknownState)
	assert.Equal(t, "record", s.Value(), "failed set must not change state")

	require.NoError(t, s.SetValue("off"))
}

func TestGoroutineIsolation(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	require.NoError(t, s.SetValue("record"))
	defer func() { _ = s.SetValue("off") }()

	var wg sync.WaitGroup
	var other string
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = s.Value()
	}()
	wg.Wait()
	assert.Equal(t, "off", other)
	assert.Equal(t, "record", s.Value())
}

func TestSelectRestores(t *testing.T) {
	s, err := New("off", "record", "replay")
	require.NoError(t, err)

	restore, err := s.Select("record")
	require.NoError(t, err)
	assert.Equal(t, "record", s.Value())

	inner, err := s.Select("replay")
	require.NoError(t, err)
	assert.Equal(t, "replay", s.Value())

	inner()
	assert.Equal(t, "record", s.Value())
	restore()
	assert.Equal(t, "off", s.Value())
}

func TestSelectRestoresOnPanic(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	func() {
		defer func() { _ = recover() }()
		restore, err := s.Select("record")
		require.NoError(t, err)
		defer restore()
		panic("boom")
	}()

	assert.Equal(t, "off", s.Value())
}

func TestSelectUnknown(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	restore, err := s.Select("bogus")
	assert.ErrorIs(t, err, ErrUnknownState)
	assert.Nil(t, restore)
}

func TestPredicateIsLive(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	isRecording, err := s.Predicate("record")
	require.NoError(t, err)

	assert.False(t, isRecording())
	require.NoError(t, s.SetValue("record"))
	assert.True(t, isRecording())
	require.NoError(t, s.SetValue("off"))
	assert.False(t, isRecording())

	_, err = s.Predicate("bogus")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestWrap(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	wrapped, err := s.Wrap("record", func(args ...any) (any, error) {
		return s.Value(), nil
	})
	require.NoError(t, err)

	got, err := wrapped()
	require.NoError(t, err)
	assert.Equal(t, "record", got)
	assert.Equal(t, "off", s.Value(), "state must be restored after the call")

	_, err = s.Wrap("record", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}
