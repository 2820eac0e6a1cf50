package docker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
)

// Sweep removes environments left behind by a crashed or killed process.
// Only containers carrying the runner's label are considered; unless all is
// set, a container is removed only once its budget deadline has passed, so
// environments owned by another live runner on the same daemon survive.
func (p *Provider) Sweep(ctx context.Context, all bool) (int, error) {
	list, err := p.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelManaged+"=true")),
	})
	if err != nil {
		return 0, fmt.Errorf("listing environments: %w", err)
	}

	now := time.Now()
	removed := 0
	for _, c := range list {
		if !all && !expired(c.Labels[labelDeadline], now) {
			continue
		}
		if err := p.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			p.logger.Warn("failed to sweep environment",
				slog.String("id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		p.logger.Info("swept orphaned environments", slog.Int("count", removed))
	}
	return removed, nil
}

// expired reports whether a deadline label lies in the past. Unparseable
// labels count as expired.
func expired(label string, now time.Time) bool {
	deadline, err := time.Parse(time.RFC3339, label)
	if err != nil {
		return true
	}
	return now.After(deadline)
}
