package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bbgo/busybus/object"
	"github.com/bbgo/busybus/registry"
)

func echo(arg *object.Object) (*object.Object, error) { return arg, nil }

func TestInsertLookupLocal(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.InsertLocal("bbus.bbusd.echo", echo))

	e, ok := reg.Lookup("bbus.bbusd.echo")
	require.True(t, ok)
	require.True(t, e.IsLocal())

	_, ok = reg.Lookup("bbus.bbusd.nope")
	require.False(t, ok)
}

func TestInsertDuplicateFails(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.InsertLocal("bbus.foo.bar", echo))
	require.Error(t, reg.InsertLocal("bbus.foo.bar", echo))
}

func TestInsertRemoteAndRemoveByProvider(t *testing.T) {
	reg := registry.New()
	provider := new(int) // stand-in identity for a provider session
	require.NoError(t, reg.InsertRemote("bbus.foo.bar", provider, "bar"))
	require.NoError(t, reg.InsertRemote("bbus.foo.baz", provider, "baz"))

	e, ok := reg.Lookup("bbus.foo.bar")
	require.True(t, ok)
	require.False(t, e.IsLocal())
	require.Equal(t, provider, e.Provider)

	removed := reg.RemoveByProvider(provider)
	require.ElementsMatch(t, []string{"bbus.foo.bar", "bbus.foo.baz"}, removed)

	_, ok = reg.Lookup("bbus.foo.bar")
	require.False(t, ok)
	require.Empty(t, reg.Paths())
}

func TestRemoveByProviderLeavesOtherProviders(t *testing.T) {
	reg := registry.New()
	p1, p2 := new(int), new(int)
	require.NoError(t, reg.InsertRemote("bbus.foo.bar", p1, "bar"))
	require.NoError(t, reg.InsertRemote("bbus.foo.baz", p2, "baz"))

	reg.RemoveByProvider(p1)

	_, ok := reg.Lookup("bbus.foo.bar")
	require.False(t, ok)
	_, ok = reg.Lookup("bbus.foo.baz")
	require.True(t, ok)
}

func TestServiceMethodCollision(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.InsertLocal("bbus.foo", echo))
	require.Error(t, reg.InsertLocal("bbus.foo.bar", echo))
}

func TestNormalizeServicePath(t *testing.T) {
	got, err := registry.NormalizeServicePath("foo", "bar")
	require.NoError(t, err)
	require.Equal(t, "bbus.foo.bar", got)

	_, err = registry.NormalizeServicePath("", "bar")
	require.Error(t, err)
}

func TestRemoveUnknownPath(t *testing.T) {
	reg := registry.New()
	require.False(t, reg.Remove("bbus.nope"))
}
