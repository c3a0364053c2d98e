package extractors

import (
	"context"
	"fmt"

	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

const DefaultMedicationFeatureColumn = "pharm_class_abbr"

// MedicationExtractor emits one feature per medication order placed before
// the index time, named by a column of order_med.
type MedicationExtractor struct {
	Extractor

	// LookBackDays limits orders to the trailing window before the index
	// time. Null means the whole history.
	LookBackDays null.Int

	// FeatureColumn is the order_med column used as the feature name.
	// Empty means DefaultMedicationFeatureColumn.
	FeatureColumn string
}

var _ warehouse.Job = (*MedicationExtractor)(nil)

func (e *MedicationExtractor) Name() string {
	return "MedicationExtractor"
}

func (e *MedicationExtractor) Query() (string, error) {
	if err := e.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", e.Name(), err)
	}
	if err := validateLookBack(e.LookBackDays); err != nil {
		return "", fmt.Errorf("%s: %w", e.Name(), err)
	}

	column := e.FeatureColumn
	if column == "" {
		column = DefaultMedicationFeatureColumn
	}
	if !warehouse.ValidColumn(column) {
		return "", fmt.Errorf("%s: invalid feature column %q", e.Name(), column)
	}

	return featureQuery{
		FeatureType: e.Name(),
		Cohort:      e.CohortTable.String(),
		Joins: []join{
			{Table: e.Source.Table("order_med").String(), Alias: "meds", On: "labels.anon_id = meds.anon_id"},
		},
		FeatureTime:  "meds.order_inst_utc",
		Feature:      "meds." + column,
		Value:        "1",
		LookBackDays: e.LookBackDays,
		Filters:      []string{fmt.Sprintf("meds.%s IS NOT NULL", column)},
	}.render()
}

func (e *MedicationExtractor) Statement(ctx context.Context, checker warehouse.TableChecker) (string, error) {
	return statement(ctx, checker, e.FeatureTable, e.Query)
}
