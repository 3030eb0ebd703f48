package scheduler

import (
	"context"
	"fmt"
	"iter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/resolver"
)

// Resolver resolves a single gift ID
type Resolver interface {
	Resolve(ctx context.Context, id int64) resolver.Result
}

// Batch is a contiguous ascending run of IDs
type Batch struct {
	IDs []int64
}

// First returns the lowest ID in the batch
func (b Batch) First() int64 { return b.IDs[0] }

// Last returns the highest ID in the batch
func (b Batch) Last() int64 { return b.IDs[len(b.IDs)-1] }

// Batches lazily partitions [start, end] into consecutive batches of size.
// The last batch may be shorter. Each batch is built only when the consumer
// asks for it, so the range may be arbitrarily large.
func Batches(start, end int64, size int) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		if size <= 0 || start > end {
			return
		}

		step := int64(size)
		for first := start; ; first += step {
			last := end
			if end-first >= step {
				last = first + step - 1
			}

			ids := make([]int64, 0, last-first+1)
			for id := first; ; id++ {
				ids = append(ids, id)
				if id == last {
					break
				}
			}
			if !yield(Batch{IDs: ids}) {
				return
			}
			if last == end {
				return
			}
		}
	}
}

// Scheduler resolves a batch of IDs concurrently and gathers the results in
// input order
type Scheduler struct {
	resolver Resolver
	width    int
	logger   logger.Logger
}

// New creates a Scheduler running at most width resolutions at once;
// width <= 0 means one goroutine per ID
func New(r Resolver, width int, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Scheduler{
		resolver: r,
		width:    width,
		logger:   log.WithField("component", "scheduler"),
	}
}

// RunBatch resolves every ID and returns exactly one result per ID, in the
// order given. A panicking resolution only affects its own slot.
func (s *Scheduler) RunBatch(ctx context.Context, ids []int64) []resolver.Result {
	results := make([]resolver.Result, len(ids))
	if len(ids) == 0 {
		return results
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if s.width > 0 {
		g.SetLimit(s.width)
	}

	for i, id := range ids {
		g.Go(func() error {
			results[i] = s.resolveOne(gctx, id)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them
	_ = g.Wait()

	s.logger.DebugWithFields("batch resolved", map[string]interface{}{
		"batch_start": ids[0],
		"batch_end":   ids[len(ids)-1],
		"duration":    time.Since(start),
	})
	return results
}

func (s *Scheduler) resolveOne(ctx context.Context, id int64) (res resolver.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("resolution panicked: %v", r)
			s.logger.WithField("gift_id", id).WithError(err).Error("recovered from panic")
			res = resolver.Result{ID: id, Status: resolver.StatusTransientError, Err: err}
		}
	}()

	res = s.resolver.Resolve(ctx, id)
	res.ID = id
	return res
}
