// Package jobs reads a YAML description of cohort and extractor jobs and runs
// them in order against the warehouse.
package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/carbocation/genomisc"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/cohorts"
	"github.com/alee2022/AIHC-EHR-2023/extractors"
	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// Defaults are the locations jobs resolve unqualified names against. Values
// set in a jobs file override the ones passed to Resolve.
type Defaults struct {
	Project        string `yaml:"project"`
	Dataset        string `yaml:"dataset"`
	SourceProject  string `yaml:"source_project"`
	SourceDataset  string `yaml:"source_dataset"`
	MappingProject string `yaml:"mapping_project"`
	MappingDataset string `yaml:"mapping_dataset"`
}

func (d Defaults) merge(override Defaults) Defaults {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return Defaults{
		Project:        pick(d.Project, override.Project),
		Dataset:        pick(d.Dataset, override.Dataset),
		SourceProject:  pick(d.SourceProject, override.SourceProject),
		SourceDataset:  pick(d.SourceDataset, override.SourceDataset),
		MappingProject: pick(d.MappingProject, override.MappingProject),
		MappingDataset: pick(d.MappingDataset, override.MappingDataset),
	}
}

func (d Defaults) Source() warehouse.DatasetRef {
	return warehouse.DatasetRef{Project: d.SourceProject, Dataset: d.SourceDataset}
}

// File is the on-disk representation of a batch of jobs. Cohorts run before
// extractors, each in file order, since extractors read cohort tables.
type File struct {
	Defaults   Defaults        `yaml:"defaults"`
	Cohorts    []CohortSpec    `yaml:"cohorts"`
	Extractors []ExtractorSpec `yaml:"extractors"`
}

type Years struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ComponentSpec struct {
	BaseName string   `yaml:"base_name"`
	Units    []string `yaml:"units"`
}

type PanelSpec struct {
	GroupLabName    string          `yaml:"group_lab_name"`
	CaseInsensitive bool            `yaml:"case_insensitive"`
	RequireValue    bool            `yaml:"require_value"`
	Components      []ComponentSpec `yaml:"components"`
}

// CohortSpec names either a predefined cohort or, when Panel is set, a custom
// lab panel cohort called Name.
type CohortSpec struct {
	Name      string     `yaml:"name"`
	Table     string     `yaml:"table"`
	Dataset   string     `yaml:"dataset,omitempty"`
	Years     *Years     `yaml:"years,omitempty"`
	SampleCap *int64     `yaml:"sample_cap,omitempty"`
	NoSample  bool       `yaml:"no_sample,omitempty"`
	Panel     *PanelSpec `yaml:"panel,omitempty"`
}

type ExtractorSpec struct {
	Name          string `yaml:"name"`
	Cohort        string `yaml:"cohort"`
	Features      string `yaml:"features"`
	LookBackDays  *int64 `yaml:"look_back_days,omitempty"`
	FeatureColumn string `yaml:"feature_column,omitempty"`
	Mapping       string `yaml:"mapping,omitempty"`
}

// Load reads and decodes a jobs file. A leading ~ is expanded to the home
// directory.
func Load(path string) (*File, error) {
	path = genomisc.ExpandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing jobs file %s: %w", path, err)
	}

	if len(f.Cohorts)+len(f.Extractors) == 0 {
		return nil, fmt.Errorf("jobs file %s defines no jobs", path)
	}

	return &f, nil
}

// Write saves f as YAML. A leading ~ is expanded to the home directory.
func Write(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling jobs file: %w", err)
	}
	return os.WriteFile(genomisc.ExpandHome(path), data, 0o644)
}

// Init writes the example jobs file for dataset to path. It refuses to
// overwrite an existing file.
func Init(path, dataset string) error {
	path = genomisc.ExpandHome(path)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	return Write(path, Example(dataset))
}

// Resolve turns every cohort and extractor entry into a job, checking all of
// them before any is run.
func (f *File) Resolve(base Defaults) ([]warehouse.Job, error) {
	d := base.merge(f.Defaults)

	out := make([]warehouse.Job, 0, len(f.Cohorts)+len(f.Extractors))
	for i, spec := range f.Cohorts {
		job, err := spec.resolve(d)
		if err != nil {
			return nil, fmt.Errorf("cohort %d (%s): %w", i, spec.Name, err)
		}
		out = append(out, job)
	}

	for i, spec := range f.Extractors {
		job, err := spec.resolve(d)
		if err != nil {
			return nil, fmt.Errorf("extractor %d (%s): %w", i, spec.Name, err)
		}
		out = append(out, job)
	}

	return out, nil
}

func (s CohortSpec) resolve(d Defaults) (*cohorts.LabPanelCohort, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("no name given")
	}
	if s.Table == "" {
		return nil, fmt.Errorf("no table given")
	}

	builder := cohorts.CohortBuilder{Project: d.Project, Dataset: d.Dataset, Table: s.Table}
	if s.Dataset != "" {
		builder.Dataset = s.Dataset
	}

	var c *cohorts.LabPanelCohort
	if s.Panel != nil {
		c = &cohorts.LabPanelCohort{
			CohortBuilder: builder,
			JobName:       s.Name,
			Source:        d.Source().Table(cohorts.LabResultTable),
			Panel:         s.Panel.toPanel(),
			Years:         cohorts.DefaultYears,
		}
	} else {
		ctor, ok := cohorts.Lookup(s.Name)
		if !ok {
			return nil, fmt.Errorf("unknown cohort %q (known: %v); add a panel to define a custom one", s.Name, cohorts.Names())
		}
		c = ctor(builder, d.Source())
	}

	if s.Years != nil {
		years, err := cohorts.ParseYearWindow(s.Years.From, s.Years.To, c.Years)
		if err != nil {
			return nil, err
		}
		c.Years = years
	}

	switch {
	case s.NoSample && s.SampleCap != nil:
		return nil, fmt.Errorf("sample_cap and no_sample are mutually exclusive")
	case s.NoSample:
		c.SampleCap = null.Int{}
	case s.SampleCap != nil:
		c.SampleCap = null.IntFromPtr(s.SampleCap)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (p PanelSpec) toPanel() cohorts.LabPanel {
	out := cohorts.LabPanel{
		GroupLabName:    p.GroupLabName,
		CaseInsensitive: p.CaseInsensitive,
		RequireValue:    p.RequireValue,
	}
	for _, c := range p.Components {
		out.Components = append(out.Components, cohorts.Component{BaseName: c.BaseName, Units: c.Units})
	}
	return out
}

func (s ExtractorSpec) resolve(d Defaults) (warehouse.Job, error) {
	cohortTable, err := parseDatasetTable(s.Cohort, d)
	if err != nil {
		return nil, fmt.Errorf("cohort: %w", err)
	}
	featureTable, err := parseDatasetTable(s.Features, d)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}

	opts := extractors.Options{
		LookBackDays:  null.IntFromPtr(s.LookBackDays),
		FeatureColumn: s.FeatureColumn,
	}
	switch {
	case s.Mapping != "":
		if opts.Mapping, err = parseDatasetTable(s.Mapping, Defaults{Project: d.MappingProject, Dataset: d.MappingDataset}); err != nil {
			return nil, fmt.Errorf("mapping: %w", err)
		}
	case s.Name == "PatientProblemGroupExtractor" && d.MappingProject != "" && d.MappingDataset != "":
		opts.Mapping = warehouse.TableRef{
			Project: d.MappingProject,
			Dataset: d.MappingDataset,
			Table:   extractors.DefaultCCSRMapping.Table,
		}
	}

	job, err := extractors.New(s.Name, extractors.Extractor{
		CohortTable:  cohortTable,
		FeatureTable: featureTable,
		Source:       d.Source(),
	}, opts)
	if err != nil {
		return nil, err
	}

	// Surface parameter errors now instead of after earlier jobs have run
	if q, ok := job.(interface{ Query() (string, error) }); ok {
		if _, err := q.Query(); err != nil {
			return nil, err
		}
	}

	return job, nil
}

// parseDatasetTable accepts a bare table name, resolved in the default
// dataset, or anything warehouse.ParseTableRef accepts.
func parseDatasetTable(s string, d Defaults) (warehouse.TableRef, error) {
	if s == "" {
		return warehouse.TableRef{}, fmt.Errorf("no table given")
	}
	if !strings.ContainsAny(s, ".:") {
		ref := warehouse.TableRef{Project: d.Project, Dataset: d.Dataset, Table: s}
		return ref, ref.Validate()
	}
	return warehouse.ParseTableRef(s, d.Project)
}

// Run materializes jobs one at a time and stops at the first failure. The
// results of the jobs that completed are returned alongside the error.
func Run(ctx context.Context, client warehouse.Client, jobs []warehouse.Job, logger *zap.Logger) ([]*warehouse.JobResult, error) {
	results := make([]*warehouse.JobResult, 0, len(jobs))
	for i, job := range jobs {
		logger.Info("Materializing",
			zap.Int("job", i+1),
			zap.Int("of", len(jobs)),
			zap.String("name", job.Name()),
			zap.Stringer("destination", job.Destination()))

		res, err := warehouse.Materialize(ctx, client, job)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	return results, nil
}
