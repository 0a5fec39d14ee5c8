package session

import (
	"context"
)

// restartRefresh cancels any running refresh loop and starts one for uid.
// Callers hold seq.
func (m *Manager) restartRefresh(uid string) {
	m.stopRefresh()
	if m.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.refreshCancel = cancel
	tick, stop := m.newTicker(m.interval)

	m.refreshWG.Add(1)
	go func() {
		defer m.refreshWG.Done()
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				m.refreshOnce(ctx, uid)
			}
		}
	}()
}

// stopRefresh cancels the refresh loop without waiting for it; the loop may
// be blocked on seq, which the caller holds. Callers hold seq.
func (m *Manager) stopRefresh() {
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
}

// refreshOnce rotates the token of uid's session. Failures are logged and
// retried on the next tick.
func (m *Manager) refreshOnce(ctx context.Context, uid string) {
	m.seq.Lock()
	defer m.seq.Unlock()
	if ctx.Err() != nil || m.Current().UID() != uid {
		return
	}

	token, err := m.provider.IDToken(ctx, true)
	if err != nil {
		m.log.Warn("scheduled token refresh failed", "uid", uid, "error", err)
		return
	}
	if err := m.store.SaveToken(ctx, token); err != nil {
		m.log.Warn("scheduled token refresh: save token", "uid", uid, "error", err)
		return
	}
	s := m.Current()
	s.Token = token
	m.publish(s, false)
	m.log.Debug("token refreshed", "uid", uid)
}
