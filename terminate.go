package sessiondedup

import (
	"context"

	"go.uber.org/zap"
)

// planDeviceTermination returns the sessions to delete when the caller
// terminates the device shown with targetSessionID.
func planDeviceTermination(groups []DeviceGroup, currentSessionID, targetSessionID string) ([]string, error) {
	if targetSessionID == currentSessionID {
		return nil, ErrCurrentSessionIsTarget
	}

	g, ok := groupByCanonicalID(groups, targetSessionID)
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return g.MemberIDs(), nil
}

// planOtherDevices returns every session that does not belong to the
// caller's own device.
func planOtherDevices(groups []DeviceGroup, currentSessionID string) ([]string, error) {
	current, ok := groupByCanonicalID(groups, currentSessionID)
	if !ok || currentSessionID == "" {
		return nil, ErrCurrentSessionNotFound
	}

	var ids []string
	for _, g := range groups {
		if g.Fingerprint != current.Fingerprint {
			ids = append(ids, g.MemberIDs()...)
		}
	}
	return ids, nil
}

// TerminateDevice deletes every session of the device whose canonical
// session is targetSessionID, duplicates included.
//
// groups must be a snapshot of the caller's own sessions. Terminating the
// caller's current session returns ErrCurrentSessionIsTarget; a target that
// is not a canonical id in groups returns ErrDeviceNotFound. Neither deletes
// anything.
func (m *Manager) TerminateDevice(ctx context.Context, groups []DeviceGroup, currentSessionID, targetSessionID string) (*TerminationResult, error) {
	ids, err := planDeviceTermination(groups, currentSessionID, targetSessionID)
	if err != nil {
		return nil, err
	}

	deleted, err := m.sessions.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	m.logger.Info("device terminated",
		zap.String("session_id", targetSessionID),
		zap.Int("sessions", len(ids)),
		zap.Int64("deleted", deleted),
	)
	return &TerminationResult{SessionIDs: ids, Deleted: deleted}, nil
}

// TerminateOtherDevices deletes every session that does not share the
// current device's fingerprint. The current device, duplicates included,
// is kept.
//
// If currentSessionID is not a canonical id in groups it returns
// ErrCurrentSessionNotFound and deletes nothing.
func (m *Manager) TerminateOtherDevices(ctx context.Context, groups []DeviceGroup, currentSessionID string) (*TerminationResult, error) {
	ids, err := planOtherDevices(groups, currentSessionID)
	if err != nil {
		return nil, err
	}

	var deleted int64
	if len(ids) > 0 {
		deleted, err = m.sessions.DeleteByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	m.logger.Info("other devices terminated",
		zap.String("session_id", currentSessionID),
		zap.Int("sessions", len(ids)),
		zap.Int64("deleted", deleted),
	)
	return &TerminationResult{SessionIDs: ids, Deleted: deleted}, nil
}
