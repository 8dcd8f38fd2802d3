package telemetry_test

import (
	"testing"

	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/require"
)

func TestInitPyroscopeDisabled(t *testing.T) {
	shutdown, err := telemetry.InitPyroscope("", "dev")
	require.NoError(t, err)
	require.Nil(t, shutdown)
}
