package threadstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(result string) Handler {
	return func(args ...any) (any, error) { return result, nil }
}

func TestDispatchCompleteness(t *testing.T) {
	s, err := New("off", "record", "replay")
	require.NoError(t, err)

	t.Run("missing state without default", func(t *testing.T) {
		_, err := s.Dispatch(nil, map[string]Handler{"off": named("off")})
		assert.ErrorIs(t, err, ErrIncompleteDispatch)
	})

	t.Run("default fills the gaps", func(t *testing.T) {
		d, err := s.Dispatch(named("fallback"), map[string]Handler{"record": named("rec")})
		require.NoError(t, err)
		got, err := d.Call()
		require.NoError(t, err)
		assert.Equal(t, "fallback", got)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := s.Dispatch(named("d"), map[string]Handler{"bogus": named("x")})
		assert.ErrorIs(t, err, ErrUnknownState)
	})

	t.Run("nil handler", func(t *testing.T) {
		_, err := s.Dispatch(named("d"), map[string]Handler{"off": nil})
		assert.ErrorIs(t, err, ErrNilHandler)
	})
}

func TestDispatchRoutesLive(t *testing.T) {
	s, err := New("off", "record", "replay")
	require.NoError(t, err)

	d, err := s.Dispatch(nil, map[string]Handler{
		"off":    named("off"),
		"record": named("record"),
		"replay": named("replay"),
	})
	require.NoError(t, err)

	for _, state := range s.Names() {
		restore, err := s.Select(state)
		require.NoError(t, err)
		got, err := d.Call()
		restore()
		require.NoError(t, err)
		assert.Equal(t, state, got)
	}
}

func TestDispatchArgsPassThrough(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	d, err := s.Dispatch(func(args ...any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	}, nil)
	require.NoError(t, err)

	got, err := d.Call(40, 2)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestSetDispatchReplacesInPlace(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	d, err := s.Dispatch(named("old"), nil)
	require.NoError(t, err)

	// The table is shared, not a snapshot: replacements made later are
	// visible through a reference obtained before them.
	table := d.Table()

	require.NoError(t, s.SetDispatch(d, map[string]Handler{"record": named("new")}))

	got, err := table["record"]()
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	got, err = table["off"]()
	require.NoError(t, err)
	assert.Equal(t, "old", got, "unnamed states keep their handler")

	restore, err := s.Select("record")
	require.NoError(t, err)
	defer restore()
	got, err = d.Call()
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestSetDispatchValidation(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)
	other, err := New("a", "b")
	require.NoError(t, err)

	d, err := s.Dispatch(named("d"), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetDispatch(nil, nil), ErrNilDispatch)
	assert.ErrorIs(t, other.SetDispatch(d, nil), ErrForeignDispatch)
	assert.ErrorIs(t, s.SetDispatch(d, map[string]Handler{"bogus": named("x")}), ErrUnknownState)
	assert.ErrorIs(t, s.SetDispatch(d, map[string]Handler{"off": nil}), ErrNilHandler)
}

func TestMethodDispatch(t *testing.T) {
	s, err := New("off", "record")
	require.NoError(t, err)

	m, err := s.MethodDispatch(nil, map[string]Handler{
		"off": func(args ...any) (any, error) {
			return []any{"off", args[0]}, nil
		},
		"record": func(args ...any) (any, error) {
			return []any{"record", args[0], args[1]}, nil
		},
	})
	require.NoError(t, err)

	recv := &struct{ name string }{name: "recv"}

	got, err := m.Call(recv)
	require.NoError(t, err)
	assert.Equal(t, []any{"off", recv}, got)

	restore, err := s.Select("record")
	require.NoError(t, err)
	defer restore()

	got, err = m.Call(recv, 7)
	require.NoError(t, err)
	assert.Equal(t, []any{"record", recv, 7}, got)

	// A MethodDispatch is a Dispatch, so SetDispatch applies to it too.
	require.NoError(t, s.SetDispatch(&m.Dispatch, map[string]Handler{
		"record": func(args ...any) (any, error) { return "swapped", nil },
	}))
	got, err = m.Call(recv)
	require.NoError(t, err)
	assert.Equal(t, "swapped", got)
}
