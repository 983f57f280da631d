package state

import (
	"fmt"
	"time"

	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/nao1215/ghcrawl/internal/task"
)

// PartitionOption configures Partition.
type PartitionOption func(*partitionOptions)

type partitionOptions struct {
	clampFinalWindow bool
	newID            func() string
}

// WithClampFinalWindow ends the final window at the upper bound instead of
// letting it run the full width past it.
func WithClampFinalWindow(clamp bool) PartitionOption {
	return func(o *partitionOptions) {
		o.clampFinalWindow = clamp
	}
}

// WithIDGenerator sets the generator of seed task ids.
func WithIDGenerator(newID func() string) PartitionOption {
	return func(o *partitionOptions) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// Partition creates one seed task per search window of the crawl.
//
// The range [ExcludeCreatedBefore, now - MinAgeInDays] is split into
// consecutive windows of SearchWindowDays days, both ends inclusive. The
// final window keeps its full width unless WithClampFinalWindow is set, so
// its CreatedBefore may lie past the upper bound. Every seed carries the
// thresholds of cc and HasActivityAfter set to the upper bound.
func Partition(kind task.Kind, cc config.CrawlConfig, now time.Time, opts ...PartitionOption) ([]task.Spec, error) {
	o := &partitionOptions{newID: task.NewID}
	for _, opt := range opts {
		opt(o)
	}

	if err := cc.Validate(); err != nil {
		return nil, err
	}

	floor := config.TruncateDay(cc.ExcludeCreatedBefore)
	upper := cc.UpperBound(now)

	windows, err := splitWindows(floor, upper, cc.SearchWindowDays, o.clampFinalWindow)
	if err != nil {
		return nil, err
	}

	filters := task.Filters{
		MinStars:          cc.MinStars,
		MinForks:          cc.MinForks,
		MinSizeInKb:       cc.MinSizeInKb,
		MaxInactivityDays: cc.MaxInactivityDays,
	}

	specs := make([]task.Spec, 0, len(windows))
	for _, w := range windows {
		w.HasActivityAfter = upper
		specs = append(specs, task.Spec{
			ID:       o.newID(),
			Kind:     kind,
			Window:   w,
			Filters:  filters,
			PageSize: cc.PageSize,
		})
	}
	return specs, nil
}

// splitWindows slices [floor, upper] into ceil((upper-floor+1)/width)
// windows of width days. floor and upper must be UTC midnights.
func splitWindows(floor, upper time.Time, width int, clamp bool) ([]task.Window, error) {
	if width <= 0 {
		return nil, config.ErrInvalidSearchWindow
	}
	if upper.Before(floor) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrEmptyRange,
			floor.Format(task.DateLayout), upper.Format(task.DateLayout))
	}

	days := daysBetween(floor, upper) + 1
	count := (days + width - 1) / width

	windows := make([]task.Window, 0, count)
	for i := range count {
		after := floor.AddDate(0, 0, i*width)
		before := after.AddDate(0, 0, width-1)
		if clamp && before.After(upper) {
			before = upper
		}
		windows = append(windows, task.Window{CreatedAfter: after, CreatedBefore: before})
	}
	return windows, nil
}

// daysBetween returns the number of whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
