package build

import (
	"context"
	"time"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
)

// SweepReport summarizes one janitor pass.
type SweepReport struct {
	CacheExpired    int `json:"cache_expired"`
	SessionsRemoved int `json:"sessions_removed"`
}

// Sweep removes expired cache entries and then every terminal session last
// updated more than retention ago that is not the current cache payload for
// its key: its artifact, progress history and session record.
func (o *Orchestrator) Sweep(ctx context.Context, retention time.Duration) (SweepReport, error) {
	var report SweepReport
	n, err := o.deps.Cache.Sweep(ctx)
	if err != nil {
		return report, err
	}
	report.CacheExpired = n

	cutoff := o.clock.Now().Add(-retention)
	for _, sess := range o.deps.Sessions.TerminalBefore(cutoff) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry, cached, err := o.deps.Cache.Peek(ctx, sess.Key)
		if err != nil {
			return report, err
		}
		if cached && entry.Value == sess.ID {
			continue
		}
		if err := o.deps.Artifacts.Delete(ctx, sess.ID); err != nil {
			o.logger.Warn("artifact delete failed", logfields.SessionID(sess.ID), logfields.Error(err))
			continue
		}
		o.deps.Bus.Forget(sess.ID)
		if o.purger != nil {
			if err := o.purger.Purge(ctx, sess.ID); err != nil {
				o.logger.Warn("progress history purge failed", logfields.SessionID(sess.ID), logfields.Error(err))
			}
		}
		o.deps.Sessions.Delete(sess.ID)
		report.SessionsRemoved++
	}
	return report, nil
}
