package quantify

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"blotquant/internal/models"
)

// Job is one ROI pass to quantify: a field and its resolved lanes.
type Job struct {
	Field *models.ImageField
	ROIID string
	Lanes []models.Lane
}

func (q *Quantifier) workers() int {
	if q.Workers > 0 {
		return q.Workers
	}
	return runtime.NumCPU()
}

// QuantifyLanes measures lanes in parallel. Results come back in lane order
// regardless of completion order; the first failure cancels the rest.
func (q *Quantifier) QuantifyLanes(ctx context.Context, f *models.ImageField, roiID string, lanes []models.Lane) ([]models.LaneMeasurement, error) {
	results := make([]models.LaneMeasurement, len(lanes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers())
	for i, lane := range lanes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Each worker owns results[i]; the field is read-only
			m, err := q.Quantify(f, roiID, lane)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// QuantifyBatch measures every lane of every job in parallel and returns one
// measurement slice per job, in job order.
func (q *Quantifier) QuantifyBatch(ctx context.Context, jobs []Job) ([][]models.LaneMeasurement, error) {
	results := make([][]models.LaneMeasurement, len(jobs))
	for i, job := range jobs {
		results[i] = make([]models.LaneMeasurement, len(job.Lanes))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers())
	for i, job := range jobs {
		for j, lane := range job.Lanes {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				m, err := q.Quantify(job.Field, job.ROIID, lane)
				if err != nil {
					return err
				}
				results[i][j] = m
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
