package extractors

import (
	"context"
	"fmt"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// DefaultCCSRMapping maps ICD-10 codes to AHRQ CCSR categories.
var DefaultCCSRMapping = warehouse.TableRef{
	Project: "mining-clinical-decisions",
	Dataset: "mapdata",
	Table:   "ahrq_ccsr_diagnosis",
}

// problemListSource is the diagnosis.source code for problem-list entries.
const problemListSource = 2

// PatientProblemGroupExtractor emits the CCSR category of every diagnosis on
// the patient's problem list recorded before the index time.
type PatientProblemGroupExtractor struct {
	Extractor
	Mapping warehouse.TableRef
}

var _ warehouse.Job = (*PatientProblemGroupExtractor)(nil)

func (e *PatientProblemGroupExtractor) Name() string {
	return "PatientProblemGroupExtractor"
}

func (e *PatientProblemGroupExtractor) Query() (string, error) {
	if err := e.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", e.Name(), err)
	}
	mapping := e.Mapping
	if mapping.IsZero() {
		mapping = DefaultCCSRMapping
	}
	if err := mapping.Validate(); err != nil {
		return "", fmt.Errorf("%s: mapping table: %w", e.Name(), err)
	}

	return featureQuery{
		FeatureType: e.Name(),
		Cohort:      e.CohortTable.String(),
		Joins: []join{
			{Table: e.Source.Table("diagnosis").String(), Alias: "dx", On: "labels.anon_id = dx.anon_id"},
			{Table: mapping.String(), Alias: "ccsr", On: "dx.icd10 = ccsr.icd10"},
		},
		FeatureTime: "CAST(dx.start_date_utc as TIMESTAMP)",
		Feature:     "ccsr.CCSR_CATEGORY_1",
		Value:       "1",
		Filters:     []string{fmt.Sprintf("dx.source = %d -- problem list only", problemListSource)},
	}.render()
}

func (e *PatientProblemGroupExtractor) Statement(ctx context.Context, checker warehouse.TableChecker) (string, error) {
	return statement(ctx, checker, e.FeatureTable, e.Query)
}
