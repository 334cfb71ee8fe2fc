package fit

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/function"
)

// Job is one independent fit of a batch. Jobs must not share a Function.
type Job struct {
	Name     string
	Function function.Function
	Data     *costfunc.Data
	Options  []Option
}

// BatchResult is the outcome of one job, in the order of the jobs.
type BatchResult struct {
	Name   string
	Result *Result
	Err    error
}

// Batch runs jobs concurrently on at most workers goroutines (unlimited when
// workers <= 0). A failing job does not stop the others; its error is kept in
// its BatchResult. The returned error is set only when ctx ends the batch.
func Batch(ctx context.Context, jobs []Job, workers int) ([]BatchResult, error) {
	results := make([]BatchResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, job := range jobs {
		g.Go(func() error {
			res, err := Fit(gctx, job.Function, job.Data, job.Options...)
			results[i] = BatchResult{Name: job.Name, Result: res, Err: err}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	return results, g.Wait()
}
