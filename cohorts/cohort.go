// Package cohorts builds labeled observation tables from STARR lab results.
//
// Each cohort is a single CREATE OR REPLACE TABLE statement: lab components
// are filtered by unit, pivoted to one label column per component, and
// optionally sampled per calendar year of the index time.
package cohorts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// CohortBuilder names the table a cohort is written to.
type CohortBuilder struct {
	Project string
	Dataset string
	Table   string
}

func (c CohortBuilder) Destination() warehouse.TableRef {
	return warehouse.TableRef{Project: c.Project, Dataset: c.Dataset, Table: c.Table}
}

// Component is one result within a lab panel, accepted only when reported in
// one of Units.
type Component struct {
	BaseName string
	Units    []string
}

type LabPanel struct {
	GroupLabName string

	// CaseInsensitive compares UPPER(group_lab_name) to the upper-cased name.
	CaseInsensitive bool

	// RequireValue drops results with a null ord_num_value before pivoting.
	RequireValue bool

	Components []Component
}

func (p LabPanel) BaseNames() []string {
	out := make([]string, 0, len(p.Components))
	for _, c := range p.Components {
		out = append(out, c.BaseName)
	}
	return out
}

// YearWindow is an inclusive range of order years.
type YearWindow struct {
	From int
	To   int
}

func (y YearWindow) Validate() error {
	if y.From <= 0 || y.To <= 0 {
		return fmt.Errorf("year window %d-%d must have both bounds set", y.From, y.To)
	}
	if y.From > y.To {
		return fmt.Errorf("year window starts at %d, after it ends at %d", y.From, y.To)
	}
	return nil
}

// LabPanelCohort selects every order of a lab panel where all components
// resulted, labeled with each component's value.
type LabPanelCohort struct {
	CohortBuilder

	// JobName is the name reported to BigQuery and in logs.
	JobName string

	// Source is the lab_result table.
	Source warehouse.TableRef

	Panel LabPanel
	Years YearWindow

	// SampleCap keeps at most this many observations per index year. When
	// null, every observation is kept.
	SampleCap null.Int
}

var _ warehouse.Job = (*LabPanelCohort)(nil)

func (c *LabPanelCohort) Name() string {
	return c.JobName
}

func (c *LabPanelCohort) Validate() error {
	if err := c.Destination().Validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Panel.GroupLabName == "" {
		return errors.New("lab panel has no group lab name")
	}
	if len(c.Panel.Components) == 0 {
		return fmt.Errorf("lab panel %q has no components", c.Panel.GroupLabName)
	}

	seen := make(map[string]struct{})
	for _, comp := range c.Panel.Components {
		// The base name becomes part of the label_<base_name> column
		if !warehouse.ValidColumn(comp.BaseName) {
			return fmt.Errorf("component base name %q cannot be used as a column suffix", comp.BaseName)
		}
		if _, exists := seen[comp.BaseName]; exists {
			return fmt.Errorf("component %s is listed twice", comp.BaseName)
		}
		seen[comp.BaseName] = struct{}{}

		if len(comp.Units) == 0 {
			return fmt.Errorf("component %s has no accepted units", comp.BaseName)
		}
	}

	if err := c.Years.Validate(); err != nil {
		return err
	}
	if c.SampleCap.Valid && c.SampleCap.Int64 <= 0 {
		return fmt.Errorf("sample cap must be positive, got %d", c.SampleCap.Int64)
	}

	return nil
}

// Query renders the CREATE OR REPLACE TABLE statement. It touches no state,
// so identical parameters always give identical text.
func (c *LabPanelCohort) Query() (string, error) {
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", c.JobName, err)
	}

	var buf bytes.Buffer
	err := cohortTemplate.Execute(&buf, map[string]interface{}{
		"destination": c.Destination().String(),
		"source":      c.Source.String(),
		"panel":       c.Panel,
		"baseNames":   c.Panel.BaseNames(),
		"years":       c.Years,
		"sampleCap":   c.SampleCap,
	})
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (c *LabPanelCohort) Statement(_ context.Context, _ warehouse.TableChecker) (string, error) {
	return c.Query()
}

// unitMatch renders the reference_unit predicate: a plain comparison for a
// single unit, IN (...) for several.
func unitMatch(units []string) string {
	if len(units) == 1 {
		return "=" + warehouse.Quote(units[0])
	}
	return " IN (" + warehouse.QuoteList(units) + ")"
}

func cohortFuncs() template.FuncMap {
	funcs := warehouse.TemplateFuncs()
	funcs["unitMatch"] = unitMatch
	return funcs
}

var cohortTemplate = template.Must(template.New("cohort").Funcs(cohortFuncs()).Parse(`
CREATE OR REPLACE TABLE
{{.destination}}
AS (
WITH lab_results as (
SELECT DISTINCT
    anon_id,
    order_id_coded,
    order_time_utc as index_time,
    ordering_mode,
    base_name,
    ord_num_value label
FROM
    {{.source}}
WHERE
{{- if .panel.CaseInsensitive}}
    UPPER(group_lab_name) = {{quote (upper .panel.GroupLabName)}}
{{- else}}
    group_lab_name = {{quote .panel.GroupLabName}}
{{- end}}
AND
    ({{range $i, $c := .panel.Components}}{{if $i}}
    OR {{end}}(base_name={{quote $c.BaseName}} AND reference_unit{{unitMatch $c.Units}}){{end}})
AND
    EXTRACT(YEAR FROM order_time_utc) BETWEEN {{.years.From}} and {{.years.To}}
{{- if .panel.RequireValue}}
AND
    ord_num_value IS NOT NULL
{{- end}}
),
-- Pivot lab result to wide
cohort_wide as (
    SELECT
        *
    FROM
        lab_results
    PIVOT (
        MAX(label) as label -- should be max of one value or no value
        FOR base_name in ({{quoteList .baseNames}})
    )
    WHERE
        -- only keep orders where every component resulted
{{- range $i, $b := .baseNames}}
        {{if $i}}AND {{end}}label_{{$b}} is not NULL
{{- end}}
)
SELECT
    anon_id, order_id_coded as observation_id, index_time,
    ordering_mode{{range .baseNames}}, label_{{.}}{{end}}
FROM
    (SELECT *,
        ROW_NUMBER() OVER (PARTITION BY EXTRACT(YEAR FROM index_time)
                           ORDER BY RAND())
                AS seqnum
    FROM cohort_wide
    )
{{- if .sampleCap.Valid}}
WHERE
    seqnum <= {{.sampleCap.Int64}}
{{- end}}
)
`))
