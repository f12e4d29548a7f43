package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadStringOverridesDefaults(t *testing.T) {
	cfg, err := LoadString(`
[Domain]
DomainID = 5
DomainTag = "lab"

[Discovery]
SPDPAnnounceInterval = "150ms"
`)
	require.NoError(t, err)
	require.EqualValues(t, 5, cfg.Domain.DomainID)
	require.Equal(t, "lab", cfg.Domain.DomainTag)
	require.Equal(t, 150*time.Millisecond, cfg.Discovery.SPDPAnnounceInterval.Duration)
	// Unset fields keep their Default() value.
	require.Equal(t, 1400, cfg.Transport.MTU)
}

func TestLoadStringInvalidDuration(t *testing.T) {
	_, err := LoadString(`
[Discovery]
LeaseDuration = "not-a-duration"
`)
	require.Error(t, err)
}
