package tiered

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// warmLoop checks the configured critical keys on a fixed interval and asks
// the preloader to recompute any that are absent. A failed cycle never stops
// the scheduler; the loop runs until Disconnect cancels its context.
func (m *Manager) warmLoop(ctx context.Context) {
	defer m.background.Done()

	if len(m.cfg.CriticalKeys) == 0 || m.preloader == nil {
		return
	}

	m.warmOnce(ctx)

	ticker := time.NewTicker(m.cfg.WarmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.warmOnce(ctx)
		case <-ctx.Done():
			m.logger.Info("stopping cache warm loop")
			return
		}
	}
}

// warmOnce runs a single warm cycle. Errors are caught and logged; presence
// checks go through the regular Get path so a remote hit also counts.
func (m *Manager) warmOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic during cache warm cycle", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for _, key := range m.cfg.CriticalKeys {
		cycleCtx, cancel := context.WithTimeout(ctx, propagationTimeout)

		var sink json.RawMessage
		found, err := m.Get(cycleCtx, key, &sink)
		if err != nil {
			m.logger.Warn("warm cycle presence check failed", zap.String("key", key), zap.Error(err))
		}
		if !found && err == nil {
			if err := m.preloader.Preload(cycleCtx, key); err != nil {
				m.logger.Warn("preload of critical key failed", zap.String("key", key), zap.Error(err))
			} else {
				m.logger.Debug("preloaded critical key", zap.String("key", key))
			}
		}

		cancel()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
