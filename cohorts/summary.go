package cohorts

import (
	"context"
	"fmt"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// YearCount is the number of observations a cohort table holds for one index
// year. With a sample cap every count is at most the cap.
type YearCount struct {
	Year         int64 `bigquery:"year"`
	Observations int64 `bigquery:"observations"`
	Patients     int64 `bigquery:"patients"`
}

func summaryQuery(table warehouse.TableRef) string {
	return fmt.Sprintf(`SELECT
    EXTRACT(YEAR FROM index_time) year,
    COUNT(*) observations,
    COUNT(DISTINCT anon_id) patients
FROM
    %s
GROUP BY year
ORDER BY year ASC
`, table)
}

// SummarizeYears reads per-year observation counts from a materialized
// cohort table.
func SummarizeYears(ctx context.Context, r warehouse.Reader, table warehouse.TableRef) ([]YearCount, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	itr, err := r.Read(ctx, summaryQuery(table))
	if err != nil {
		return nil, err
	}

	return warehouse.ReadAll[YearCount](itr)
}
