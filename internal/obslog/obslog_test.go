package obslog

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	New("not-a-level")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewAcceptsValidLevel(t *testing.T) {
	New("debug")
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
