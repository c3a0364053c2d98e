package main

import (
	"context"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// displayJob prints the statement a job would submit, and with verbose the
// resolved job parameters, instead of running it.
func displayJob(ctx context.Context, w io.Writer, checker warehouse.TableChecker, job warehouse.Job, verbose bool) error {
	sql, err := job.Statement(ctx, checker)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "-- %s -> %s\n", job.Name(), job.Destination())
	if verbose {
		cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
		fmt.Fprintf(w, "/*\n%s*/\n", cfg.Sdump(job))
	}
	fmt.Fprintln(w, sql)

	return nil
}

// displayPlan displays jobs in run order. Destinations written by earlier jobs
// count as existing, so later jobs show the statement a real run would submit.
func displayPlan(ctx context.Context, w io.Writer, checker warehouse.TableChecker, jobs []warehouse.Job, verbose bool) error {
	planned := &plannedTables{TableChecker: checker, written: map[warehouse.TableRef]bool{}}
	for _, job := range jobs {
		if err := displayJob(ctx, w, planned, job, verbose); err != nil {
			return err
		}
		planned.written[job.Destination()] = true
	}
	return nil
}

type plannedTables struct {
	warehouse.TableChecker
	written map[warehouse.TableRef]bool
}

func (p *plannedTables) TableExists(ctx context.Context, ref warehouse.TableRef) (bool, error) {
	if p.written[ref] {
		return true, nil
	}
	return p.TableChecker.TableExists(ctx, ref)
}

func reportResult(w io.Writer, job warehouse.Job, res *warehouse.JobResult) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
		job.Name(), job.Destination(), res.JobID, res.StatementType,
		res.BytesProcessed, res.AffectedRows, res.Elapsed)
}

const resultHeader = "job\tdestination\tjob_id\tstatement_type\tbytes_processed\taffected_rows\telapsed\n"
