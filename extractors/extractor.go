// Package extractors joins a cohort table to STARR event tables and writes
// one feature row per (observation, event) into a feature table.
//
// Every extractor only admits events that happened strictly before the
// observation's index time. Feature tables are created on first use and
// appended to afterwards.
package extractors

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// Extractor carries what every extractor needs: the cohort it reads, the
// feature table it writes, and the dataset holding the source events.
type Extractor struct {
	CohortTable  warehouse.TableRef
	FeatureTable warehouse.TableRef
	Source       warehouse.DatasetRef
}

func (e Extractor) Destination() warehouse.TableRef {
	return e.FeatureTable
}

func (e Extractor) validate() error {
	if err := e.CohortTable.Validate(); err != nil {
		return fmt.Errorf("cohort table: %w", err)
	}
	if err := e.FeatureTable.Validate(); err != nil {
		return fmt.Errorf("feature table: %w", err)
	}
	if err := e.Source.Table("x").Validate(); err != nil {
		return fmt.Errorf("source dataset: %w", err)
	}
	return nil
}

func validateLookBack(days null.Int) error {
	if days.Valid && days.Int64 <= 0 {
		return fmt.Errorf("look-back must be a positive number of days, got %d", days.Int64)
	}
	return nil
}

type join struct {
	Table string
	Alias string
	On    string
}

// featureQuery is the shape shared by every extractor. FeatureTime must be a
// TIMESTAMP expression so it compares against labels.index_time.
type featureQuery struct {
	FeatureType  string
	Cohort       string
	Joins        []join
	FeatureTime  string
	Feature      string
	Value        string
	LookBackDays null.Int
	Filters      []string
}

func (f featureQuery) render() (string, error) {
	var buf bytes.Buffer
	if err := featureTemplate.Execute(&buf, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// statement wraps the SELECT in the create-or-append logic for the feature
// table.
func statement(ctx context.Context, checker warehouse.TableChecker, dest warehouse.TableRef, query func() (string, error)) (string, error) {
	q, err := query()
	if err != nil {
		return "", err
	}
	return warehouse.CreateOrAppend(ctx, checker, q, dest)
}

var featureTemplate = template.Must(template.New("feature").Funcs(warehouse.TemplateFuncs()).Parse(`
SELECT
    labels.observation_id,
    labels.index_time,
    {{quote .FeatureType}} as feature_type,
    {{.FeatureTime}} as feature_time,
    GENERATE_UUID() as feature_id,
    {{.Feature}} as feature,
    {{.Value}} value
FROM
    {{.Cohort}} labels
{{- range .Joins}}
LEFT JOIN
    {{.Table}} {{.Alias}}
ON
    {{.On}}
{{- end}}
WHERE
    {{.FeatureTime}} < labels.index_time
{{- if .LookBackDays.Valid}}
AND
    TIMESTAMP_ADD({{.FeatureTime}}, INTERVAL 24 * {{.LookBackDays.Int64}} HOUR) >= labels.index_time
{{- end}}
{{- range .Filters}}
AND
    {{.}}
{{- end}}
`))
