package sessiondedup

import "strings"

// Labels produced by Classify.
const (
	LabelUnknown = "Unknown"

	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
)

// DeviceClass is the coarse, display-oriented description of a user agent.
type DeviceClass struct {
	Device  string `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// uaRule maps a set of substrings to a label. A rule matches when the user
// agent contains any of its substrings.
type uaRule struct {
	anyOf []string
	label string
}

func (r uaRule) matches(ua string) bool {
	for _, s := range r.anyOf {
		if strings.Contains(ua, s) {
			return true
		}
	}
	return false
}

// Rule tables are evaluated in order, first match wins. The order is part
// of the contract: "iPhone" is a mobile marker before "iPad" is a tablet
// marker, and Chromium-based Edge and Opera report as Chrome.
var (
	deviceRules = []uaRule{
		{anyOf: []string{"Mobile", "Android", "iPhone"}, label: DeviceMobile},
		{anyOf: []string{"Tablet", "iPad"}, label: DeviceTablet},
	}

	browserRules = []uaRule{
		{anyOf: []string{"Chrome"}, label: "Chrome"},
		{anyOf: []string{"Firefox"}, label: "Firefox"},
		{anyOf: []string{"Safari"}, label: "Safari"},
		{anyOf: []string{"Edge"}, label: "Edge"},
		{anyOf: []string{"Opera"}, label: "Opera"},
	}

	osRules = []uaRule{
		{anyOf: []string{"Windows"}, label: "Windows"},
		{anyOf: []string{"Mac"}, label: "macOS"},
		{anyOf: []string{"Linux"}, label: "Linux"},
		{anyOf: []string{"Android"}, label: "Android"},
		{anyOf: []string{"iOS", "iPhone", "iPad"}, label: "iOS"},
	}
)

func firstMatch(rules []uaRule, ua, fallback string) string {
	for _, r := range rules {
		if r.matches(ua) {
			return r.label
		}
	}
	return fallback
}

// Classify labels a user agent with a device class, browser and OS using
// case-sensitive substring rules. An empty user agent is Unknown on all
// three axes; any other agent that matches no device rule is Desktop.
func Classify(userAgent string) DeviceClass {
	if userAgent == "" {
		return DeviceClass{Device: LabelUnknown, Browser: LabelUnknown, OS: LabelUnknown}
	}

	return DeviceClass{
		Device:  firstMatch(deviceRules, userAgent, DeviceDesktop),
		Browser: firstMatch(browserRules, userAgent, LabelUnknown),
		OS:      firstMatch(osRules, userAgent, LabelUnknown),
	}
}
