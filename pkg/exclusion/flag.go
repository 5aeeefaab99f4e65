package exclusion

import (
	"context"
	"sync/atomic"

	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/settings"
)

type SettingsWriter interface {
	Set(ctx context.Context, name, value string) error
}

// Flag is the single-flight coordination point between the poll scheduler and
// the ad-hoc job runner: while raised, the poller yields entirely. The check
// is deliberately not atomic with the subsequent action; a brief overlap only
// costs extra API calls since post dedup makes double-ingestion idempotent.
type Flag struct {
	active atomic.Bool
	store  SettingsWriter
}

// NewFlag builds a flag. store may be nil; when set, the flag's value is
// mirrored best-effort into the persisted settings for the surrounding
// application to read.
func NewFlag(store SettingsWriter) *Flag {
	return &Flag{store: store}
}

func (f *Flag) Raise(ctx context.Context) {
	f.active.Store(true)
	f.mirror(ctx, "1")
}

func (f *Flag) Clear(ctx context.Context) {
	f.active.Store(false)
	f.mirror(ctx, "0")
}

func (f *Flag) Active() bool {
	return f.active.Load()
}

func (f *Flag) mirror(ctx context.Context, value string) {
	if f.store == nil {
		return
	}
	if err := f.store.Set(ctx, settings.KeyAdhocRunning, value); err != nil {
		logger.Log.WithError(err).Warn("failed to mirror exclusion flag into settings")
	}
}
