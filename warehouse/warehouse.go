// Package warehouse wraps the BigQuery client used to materialize cohort and
// feature tables. Jobs only see the Runner, TableChecker and Reader
// interfaces, so query generation can be exercised without a warehouse.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/carbocation/pfx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// JobResult summarizes a finished BigQuery job.
type JobResult struct {
	JobID          string
	StatementType  string
	BytesProcessed int64
	AffectedRows   int64
	Elapsed        time.Duration
}

// Runner submits a statement and blocks until BigQuery reports completion.
type Runner interface {
	Run(ctx context.Context, name, sql string) (*JobResult, error)
}

// TableChecker reports whether a table already exists.
type TableChecker interface {
	TableExists(ctx context.Context, ref TableRef) (bool, error)
}

// RowIterator is satisfied by *bigquery.RowIterator.
type RowIterator interface {
	Next(dst interface{}) error
}

// Reader runs a read-only query and returns its rows.
type Reader interface {
	Read(ctx context.Context, sql string, params ...bigquery.QueryParameter) (RowIterator, error)
}

// Client is everything a job needs to materialize itself.
type Client interface {
	Runner
	TableChecker
}

type WrappedBigQuery struct {
	Client   *bigquery.Client
	Project  string
	Location string
	Logger   *zap.Logger
}

var (
	_ Client = (*WrappedBigQuery)(nil)
	_ Reader = (*WrappedBigQuery)(nil)
)

// Connect opens a BigQuery client billed to project. An empty location lets
// BigQuery infer it from the referenced datasets.
func Connect(ctx context.Context, project, location string, logger *zap.Logger) (*WrappedBigQuery, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("connecting to BigQuery: %w", err))
	}
	if location != "" {
		client.Location = location
	}

	logger.Info("Connected to BigQuery", zap.String("project", project), zap.String("location", location))

	return &WrappedBigQuery{
		Client:   client,
		Project:  project,
		Location: location,
		Logger:   logger,
	}, nil
}

func (BQ *WrappedBigQuery) Close() error {
	return BQ.Client.Close()
}

func (BQ *WrappedBigQuery) Run(ctx context.Context, name, sql string) (*JobResult, error) {
	log := BQ.Logger.Named(name)

	query := BQ.Client.Query(sql)
	query.JobID = JobID(name)

	log.Debug("Submitting query", zap.String("job_id", query.JobID), zap.String("sql", sql))
	started := time.Now()

	job, err := query.Run(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("submitting job %s: %w", query.JobID, err))
	}

	log.Info("Waiting for job", zap.String("job_id", job.ID()))

	// Wait only reports failures to fetch the status; the job's own failure
	// is in status.Err().
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("waiting for job %s: %w", job.ID(), err))
	}
	if err := status.Err(); err != nil {
		return nil, pfx.Err(fmt.Errorf("job %s failed: %w", job.ID(), err))
	}

	result := &JobResult{
		JobID:   job.ID(),
		Elapsed: time.Since(started),
	}
	if stats := status.Statistics; stats != nil {
		result.BytesProcessed = stats.TotalBytesProcessed
		if details, ok := stats.Details.(*bigquery.QueryStatistics); ok {
			result.StatementType = details.StatementType
			result.AffectedRows = details.NumDMLAffectedRows
		}
	}

	log.Info("Job complete",
		zap.String("job_id", result.JobID),
		zap.String("statement_type", result.StatementType),
		zap.Int64("bytes_processed", result.BytesProcessed),
		zap.Int64("affected_rows", result.AffectedRows),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

func (BQ *WrappedBigQuery) TableExists(ctx context.Context, ref TableRef) (bool, error) {
	_, err := BQ.Client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table).Metadata(ctx)
	return existsFromMetadataErr(ref, err)
}

// existsFromMetadataErr maps a table metadata lookup error to existence. A 404
// means the table is missing; any other error is returned wrapped.
func existsFromMetadataErr(ref TableRef, err error) (bool, error) {
	if err == nil {
		return true, nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return false, nil
	}

	return false, pfx.Err(fmt.Errorf("fetching metadata for %s: %w", ref, err))
}

func (BQ *WrappedBigQuery) Read(ctx context.Context, sql string, params ...bigquery.QueryParameter) (RowIterator, error) {
	query := BQ.Client.Query(sql)
	query.QueryConfig.Parameters = append(query.QueryConfig.Parameters, params...)

	itr, err := query.Read(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%w (parameters: %v)", err, query.Parameters))
	}

	return itr, nil
}

var jobIDUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// JobID builds a unique BigQuery job ID that still shows which job produced
// it in the console.
func JobID(name string) string {
	prefix := jobIDUnsafe.ReplaceAllString(name, "_")
	if prefix == "" {
		prefix = "job"
	}
	return prefix + "_" + uuid.NewString()
}
