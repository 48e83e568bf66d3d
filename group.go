package sessiondedup

import "github.com/aadithya-v/sessiondedup/store"

// DeviceGroup is the set of one user's sessions that share a fingerprint.
// Groups are derived on every read and never persisted.
type DeviceGroup struct {
	Fingerprint string

	// Members keep the order they had in the input.
	Members []*store.Session

	// Canonical is the member with the greatest LastActivity. On a tie it
	// is the first such member in input order.
	Canonical *store.Session
}

// Count returns the number of sessions in the group.
func (g DeviceGroup) Count() int { return len(g.Members) }

// CanonicalID returns the id of the representative session.
func (g DeviceGroup) CanonicalID() string { return g.Canonical.ID }

// MemberIDs returns the ids of every session in the group.
func (g DeviceGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// duplicateIDs returns every member id except the canonical one.
func (g DeviceGroup) duplicateIDs() []string {
	ids := make([]string, 0, len(g.Members)-1)
	for _, m := range g.Members {
		if m != g.Canonical {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Group partitions sessions by device fingerprint. Input is expected to be
// a single user's sessions; anonymous rows are skipped. Groups come back in
// order of first appearance, so the result is stable for identical input.
func Group(sessions []*store.Session) []DeviceGroup {
	var groups []DeviceGroup
	index := make(map[string]int)

	for _, s := range sessions {
		if s == nil || s.UserID == "" {
			continue
		}

		fp := Fingerprint(s.IPAddress, s.UserAgent)
		i, ok := index[fp]
		if !ok {
			index[fp] = len(groups)
			groups = append(groups, DeviceGroup{Fingerprint: fp, Canonical: s})
			i = len(groups) - 1
		}

		g := &groups[i]
		g.Members = append(g.Members, s)
		if s.LastActivity > g.Canonical.LastActivity {
			g.Canonical = s
		}
	}

	return groups
}

// groupByCanonicalID finds the group whose canonical session has id.
func groupByCanonicalID(groups []DeviceGroup, id string) (DeviceGroup, bool) {
	for _, g := range groups {
		if g.Canonical.ID == id {
			return g, true
		}
	}
	return DeviceGroup{}, false
}
