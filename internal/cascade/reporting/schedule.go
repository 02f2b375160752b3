package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const runTimeout = 10 * time.Minute

// Schedule registers the daily report on a cron in the reporter's zone. Each
// run reports on the previous day. The caller starts and stops the cron.
func (r *Reporter) Schedule(ctx context.Context, expr string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(r.loc))
	_, err := c.AddFunc(expr, func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		if err := r.Run(runCtx, r.Yesterday()); err != nil {
			r.log.WithContext(ctx).Error("daily report run failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule daily report %q: %w", expr, err)
	}
	return c, nil
}
