package extractors

import (
	"context"
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// DiagnosisExtractor emits the ICD-10 code of every diagnosis recorded before
// the index time, from any source.
type DiagnosisExtractor struct {
	Extractor

	// LookBackDays limits diagnoses to the trailing window before the index
	// time. Null means the whole history.
	LookBackDays null.Int
}

var _ warehouse.Job = (*DiagnosisExtractor)(nil)

func (e *DiagnosisExtractor) Name() string {
	return "DiagnosisExtractor"
}

func (e *DiagnosisExtractor) Query() (string, error) {
	if err := e.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", e.Name(), err)
	}
	if err := validateLookBack(e.LookBackDays); err != nil {
		return "", fmt.Errorf("%s: %w", e.Name(), err)
	}

	return featureQuery{
		FeatureType: e.Name(),
		Cohort:      e.CohortTable.String(),
		Joins: []join{
			{Table: e.Source.Table("diagnosis").String(), Alias: "dx", On: "labels.anon_id = dx.anon_id"},
		},
		FeatureTime:  "CAST(dx.start_date_utc as TIMESTAMP)",
		Feature:      "dx.icd10",
		Value:        "1",
		LookBackDays: e.LookBackDays,
		Filters:      []string{"dx.icd10 IS NOT NULL"},
	}.render()
}

func (e *DiagnosisExtractor) Statement(ctx context.Context, checker warehouse.TableChecker) (string, error) {
	return statement(ctx, checker, e.FeatureTable, e.Query)
}
