package phases

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueChecksType(t *testing.T) {
	t.Parallel()

	ctx := NewContext()
	ctx.Set("build:succeeded", true)
	ctx.Set("deps:node:version", "v20.11.0")

	built, ok := Value[bool](ctx, "build:succeeded")
	require.True(t, ok)
	require.True(t, built)

	_, ok = Value[bool](ctx, "deps:node:version")
	require.False(t, ok)

	_, ok = Value[string](ctx, "missing")
	require.False(t, ok)
}

func TestInputConstructors(t *testing.T) {
	t.Parallel()

	text := TextInput("host", "Host", Required(), WithDescription("database host"), WithDefault("localhost"))
	require.Equal(t, InputKindText, text.Kind)
	require.True(t, text.Required)
	require.Equal(t, "database host", text.Description)
	require.Equal(t, "localhost", text.Default)

	secret := SecretInput("password", "Password", Required())
	require.Equal(t, InputKindSecret, secret.Kind)
	require.True(t, secret.Secret)

	confirm := ConfirmInput("start", "Start now?")
	require.Equal(t, InputKindConfirm, confirm.Kind)
	require.Equal(t, true, confirm.Default)

	options := []InputOption{{Value: "development", Label: "Development"}}
	sel := SelectInput("mode", "Mode", options)
	options[0].Value = "changed"
	require.Equal(t, InputKindSelect, sel.Kind)
	require.Equal(t, "development", sel.Options[0].Value)
}

func TestClearInputsDropsOnlyThatPhase(t *testing.T) {
	t.Parallel()

	ctx := NewContext()
	SetInput(ctx, "database", "password", "secret")
	SetInput(ctx, "launch", "start", true)

	ClearInputs(ctx, "database")
	_, ok := InputValue[string](ctx, "database", "password")
	require.False(t, ok)
	val, ok := GetInput(ctx, "launch", "start")
	require.True(t, ok)
	require.Equal(t, true, val)
}
