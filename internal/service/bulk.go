package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/noah-isme/sma-classroom-api/internal/models"
	appErrors "github.com/noah-isme/sma-classroom-api/pkg/errors"
)

const bulkWriteConcurrency = 8

type writeOutcome int

const (
	outcomeCreated writeOutcome = iota + 1
	outcomeUpdated
)

// runBulk performs n independent writes concurrently and waits for all of them.
// Nothing is rolled back when some fail; the aggregate error carries every failure.
func runBulk(ctx context.Context, n int, write func(ctx context.Context, i int) (writeOutcome, error)) (models.BulkResult, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result models.BulkResult
		errs   error
	)
	sem := make(chan struct{}, bulkWriteConcurrency)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := write(ctx, i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				result.Errors = append(result.Errors, err.Error())
				errs = multierr.Append(errs, err)
			case outcome == outcomeCreated:
				result.Created++
			default:
				result.Updated++
			}
		}(i)
	}
	wg.Wait()
	sort.Strings(result.Errors)
	return result, errs
}

func partialFailure(kind string, total int, result models.BulkResult, errs error) error {
	if errs == nil {
		return nil
	}
	return appErrors.Wrap(errs, appErrors.ErrPartialFailure.Code, appErrors.ErrPartialFailure.Status,
		fmt.Sprintf("%d of %d %s writes failed", result.Failed, total, kind))
}
