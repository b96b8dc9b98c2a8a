package monitor

// MobileUserAgent is sent by mobile profiles.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1"

// DeviceProfile is the browser emulation used for one probe.
type DeviceProfile struct {
	Device    DeviceType
	Width     int64
	Height    int64
	UserAgent string // empty keeps the browser default
	Mobile    bool
}

// ProfileFor returns the deterministic profile for a device type. Unknown
// types fall back to desktop.
func ProfileFor(device DeviceType) DeviceProfile {
	if device == DeviceMobile {
		return DeviceProfile{
			Device:    DeviceMobile,
			Width:     375,
			Height:    812,
			UserAgent: MobileUserAgent,
			Mobile:    true,
		}
	}
	return DeviceProfile{
		Device: DeviceDesktop,
		Width:  1920,
		Height: 1080,
	}
}
