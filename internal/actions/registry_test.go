package actions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/actions"
)

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	r := actions.NewDefaultRegistry(zap.NewNop())

	for _, name := range []string{
		"click", "fill", "type", "selectOption", "hover", "setChecked", "scroll",
		"goToUrl", "goBack", "reload", "wait", "waitForLoadState", "extract",
		actions.CompleteActionName,
	} {
		_, ok := r.Get(name)
		assert.True(t, ok, "missing builtin %q", name)
	}
}

func TestRegisterDuplicateLeavesRegistryUnchanged(t *testing.T) {
	r := actions.NewDefaultRegistry(zap.NewNop())
	before := r.Len()

	err := r.Register(&stubAction{name: "click"})
	require.Error(t, err)
	assert.Equal(t, before, r.Len())

	// The original click must still be resolvable.
	a, ok := r.Get("click")
	require.True(t, ok)
	assert.NotEqual(t, "stub", a.Description())
}

func TestRegisterBatchRollsBackOnConflict(t *testing.T) {
	r := actions.NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(&stubAction{name: "taken"}))

	err := r.RegisterBatch("srv-1", []actions.Action{
		&stubAction{name: "fresh1"},
		&stubAction{name: "fresh2"},
		&stubAction{name: "taken"},
	})
	require.Error(t, err)

	// None of the staged entries survive a failed batch.
	_, ok := r.Get("fresh1")
	assert.False(t, ok)
	_, ok = r.Get("fresh2")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegisterBatchSucceeds(t *testing.T) {
	r := actions.NewRegistry(zap.NewNop())
	require.NoError(t, r.RegisterBatch("srv-1", []actions.Action{
		&stubAction{name: "a"},
		&stubAction{name: "b"},
	}))
	assert.Equal(t, 2, r.Len())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := actions.NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(&stubAction{name: "a"}))

	r.Unregister("a")
	r.Unregister("a")
	r.Unregister("never-existed")
	assert.Equal(t, 0, r.Len())
}

func TestSchemasSortedByName(t *testing.T) {
	r := actions.NewDefaultRegistry(zap.NewNop())
	out := r.Schemas()
	require.NotEmpty(t, out)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1].Name, out[i].Name)
	}
}
