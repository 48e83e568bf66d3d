package sessiondedup

import "sort"

// DeviceView is the display form of one device group.
type DeviceView struct {
	SessionID    string      `json:"session_id"`
	IPAddress    string      `json:"ip_address"`
	UserAgent    string      `json:"user_agent"`
	LastActivity int64       `json:"last_activity"`
	IsCurrent    bool        `json:"is_current"`
	Device       string      `json:"device"`
	Browser      string      `json:"browser"`
	OS           string      `json:"os"`
	SessionCount int         `json:"session_count"`
	Fingerprint  string      `json:"fingerprint"`
	Detail       AgentDetail `json:"detail"`
}

// BuildViews renders one view per group from its canonical session, most
// recently active device first.
//
// IsCurrent is true only when the canonical id is currentSessionID. If a
// newer session from the caller's own device superseded the caller's
// session as canonical, no view is marked current.
func BuildViews(groups []DeviceGroup, currentSessionID string) []DeviceView {
	views := make([]DeviceView, 0, len(groups))

	for _, g := range groups {
		c := g.Canonical
		class := Classify(c.UserAgent)

		views = append(views, DeviceView{
			SessionID:    c.ID,
			IPAddress:    orUnknown(c.IPAddress),
			UserAgent:    orUnknown(c.UserAgent),
			LastActivity: c.LastActivity,
			IsCurrent:    currentSessionID != "" && c.ID == currentSessionID,
			Device:       class.Device,
			Browser:      class.Browser,
			OS:           class.OS,
			SessionCount: g.Count(),
			Fingerprint:  g.Fingerprint,
			Detail:       DescribeAgent(c.UserAgent),
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].LastActivity > views[j].LastActivity
	})
	return views
}

func orUnknown(v string) string {
	if v == "" {
		return LabelUnknown
	}
	return v
}
