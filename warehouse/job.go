package warehouse

import (
	"context"
	"fmt"

	"google.golang.org/api/iterator"
)

// Job is a cohort or feature query that materializes into a single table.
type Job interface {
	Name() string
	Destination() TableRef

	// Statement returns the full DDL or DML to submit. Only jobs that append
	// consult the checker.
	Statement(ctx context.Context, checker TableChecker) (string, error)
}

// Materialize builds the job's statement, submits it and waits for BigQuery
// to finish. Failures are not retried.
func Materialize(ctx context.Context, client Client, job Job) (*JobResult, error) {
	sql, err := job.Statement(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("%s: building query: %w", job.Name(), err)
	}

	res, err := client.Run(ctx, job.Name(), sql)
	if err != nil {
		return nil, fmt.Errorf("%s -> %s: %w", job.Name(), job.Destination(), err)
	}

	return res, nil
}

// ReadAll drains itr into a slice of T.
func ReadAll[T any](itr RowIterator) ([]T, error) {
	out := make([]T, 0)
	for {
		var row T
		err := itr.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, nil
}
