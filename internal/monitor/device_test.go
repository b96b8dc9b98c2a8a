package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProfileFor(t *testing.T) {
	t.Parallel()

	desktop := ProfileFor(DeviceDesktop)
	require.Equal(t, int64(1920), desktop.Width)
	require.Equal(t, int64(1080), desktop.Height)
	require.Empty(t, desktop.UserAgent)
	require.False(t, desktop.Mobile)

	mobile := ProfileFor(DeviceMobile)
	require.Equal(t, int64(375), mobile.Width)
	require.Equal(t, int64(812), mobile.Height)
	require.Equal(t, MobileUserAgent, mobile.UserAgent)
	require.True(t, mobile.Mobile)

	require.Equal(t, mobile, ProfileFor(DeviceMobile), "profiles must be reproducible")
	require.Equal(t, desktop, ProfileFor("tablet"))
}

func TestDeviceTypeValid(t *testing.T) {
	t.Parallel()

	require.True(t, DeviceDesktop.Valid())
	require.True(t, DeviceMobile.Valid())
	require.False(t, DeviceType("").Valid())
	require.False(t, DeviceType("Desktop").Valid())
}

func TestSiteInterval(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Minute, Site{Frequency: 30}.Interval())
}
