package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alee2022/AIHC-EHR-2023/cohorts"
	"github.com/alee2022/AIHC-EHR-2023/extractors"
	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

var testDefaults = Defaults{
	Project:        "mining-clinical-decisions",
	Dataset:        "lab_cohorts",
	SourceProject:  "som-nero-phi-jonc101",
	SourceDataset:  "shc_core_2021",
	MappingProject: "mining-clinical-decisions",
	MappingDataset: "mapdata",
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleJobs = `
defaults:
  dataset: winter23
cohorts:
  - name: CBCWithDifferentialCohortWithValue
    table: cbc_cohort
    sample_cap: 500
    years:
      from: "2017-01-01"
      to: "2019"
  - name: CBCWithDifferentialCohortWithValueNoSampling
    table: cbc_all
  - name: TroponinCohort
    table: trop_cohort
    dataset: cardio
    panel:
      group_lab_name: Troponin I
      case_insensitive: true
      require_value: true
      components:
        - base_name: TNI
          units: [ng/mL]
extractors:
  - name: MedicationExtractor
    cohort: cbc_cohort
    features: cbc_features
    look_back_days: 30
  - name: PatientProblemGroupExtractor
    cohort: mining-clinical-decisions.winter23.cbc_cohort
    features: winter23.cbc_features
`

func TestLoadAndResolve(t *testing.T) {
	f, err := Load(writeFile(t, sampleJobs))
	require.NoError(t, err)

	jobs, err := f.Resolve(testDefaults)
	require.NoError(t, err)
	require.Len(t, jobs, 5)

	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	assert.Equal(t, []string{
		"CBCWithDifferentialCohortWithValue",
		"CBCWithDifferentialCohortWithValueNoSampling",
		"TroponinCohort",
		"MedicationExtractor",
		"PatientProblemGroupExtractor",
	}, names)

	cbc := jobs[0].(*cohorts.LabPanelCohort)
	assert.Equal(t, "mining-clinical-decisions.winter23.cbc_cohort", cbc.Destination().String())
	assert.Equal(t, cohorts.YearWindow{From: 2017, To: 2019}, cbc.Years)
	assert.Equal(t, int64(500), cbc.SampleCap.Int64)

	all := jobs[1].(*cohorts.LabPanelCohort)
	assert.False(t, all.SampleCap.Valid)

	trop := jobs[2].(*cohorts.LabPanelCohort)
	assert.Equal(t, "mining-clinical-decisions.cardio.trop_cohort", trop.Destination().String())
	assert.Equal(t, "som-nero-phi-jonc101.shc_core_2021.lab_result", trop.Source.String())
	q, err := trop.Query()
	require.NoError(t, err)
	assert.Contains(t, q, "UPPER(group_lab_name) = 'TROPONIN I'")

	meds := jobs[3].(*extractors.MedicationExtractor)
	assert.Equal(t, "mining-clinical-decisions.winter23.cbc_cohort", meds.CohortTable.String())
	assert.Equal(t, "mining-clinical-decisions.winter23.cbc_features", meds.FeatureTable.String())
	assert.Equal(t, int64(30), meds.LookBackDays.Int64)

	problems := jobs[4].(*extractors.PatientProblemGroupExtractor)
	assert.Equal(t, "mining-clinical-decisions.winter23.cbc_features", problems.FeatureTable.String())
	assert.Equal(t, "mining-clinical-decisions.mapdata.ahrq_ccsr_diagnosis", problems.Mapping.String())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"empty", "defaults:\n  dataset: x\n", "defines no jobs"},
		{"unknown field", "cohorts:\n  - name: x\n    tabel: y\n", "tabel"},
		{"not yaml", "cohorts: [", "parsing jobs file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		file   File
		errMsg string
	}{
		{
			name:   "unknown cohort",
			file:   File{Cohorts: []CohortSpec{{Name: "Nope", Table: "t"}}},
			errMsg: "unknown cohort",
		},
		{
			name:   "cohort without table",
			file:   File{Cohorts: []CohortSpec{{Name: "CBCWithDifferentialCohortWithValue"}}},
			errMsg: "no table given",
		},
		{
			name:   "conflicting sampling",
			file:   File{Cohorts: []CohortSpec{{Name: "CBCWithDifferentialCohortWithValue", Table: "t", NoSample: true, SampleCap: new(int64)}}},
			errMsg: "mutually exclusive",
		},
		{
			name:   "bad years",
			file:   File{Cohorts: []CohortSpec{{Name: "CBCWithDifferentialCohortWithValue", Table: "t", Years: &Years{From: "2022"}}}},
			errMsg: "after it ends",
		},
		{
			name:   "unknown extractor",
			file:   File{Extractors: []ExtractorSpec{{Name: "Labs", Cohort: "c", Features: "f"}}},
			errMsg: "unknown extractor",
		},
		{
			name:   "negative look-back",
			file:   File{Extractors: []ExtractorSpec{{Name: "DiagnosisExtractor", Cohort: "c", Features: "f", LookBackDays: ptr(-1)}}},
			errMsg: "positive",
		},
		{
			name:   "bad feature table",
			file:   File{Extractors: []ExtractorSpec{{Name: "DiagnosisExtractor", Cohort: "c", Features: "f g"}}},
			errMsg: "features",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.file.Resolve(testDefaults)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func ptr(v int64) *int64 { return &v }

func TestExampleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	require.NoError(t, Write(path, Example("scratch")))

	f, err := Load(path)
	require.NoError(t, err)

	jobs, err := f.Resolve(testDefaults)
	require.NoError(t, err)
	assert.Len(t, jobs, 4)
	assert.Equal(t, "mining-clinical-decisions.scratch.bmp_cohort", jobs[1].Destination().String())
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, Init(path, "scratch"))

	written, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Cohorts, 2)

	err = Init(path, "other")
	assert.ErrorContains(t, err, "already exists")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, written, after)
}

func TestLoadExpandsHome(t *testing.T) {
	_, err := Load("~/healthrex-jobs-file-that-does-not-exist.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotContains(t, err.Error(), "~/")
}

type fakeClient struct {
	failOn string
	ran    []string
}

func (f *fakeClient) Run(_ context.Context, name, _ string) (*warehouse.JobResult, error) {
	if name == f.failOn {
		return nil, errors.New("quota exceeded")
	}
	f.ran = append(f.ran, name)
	return &warehouse.JobResult{JobID: name}, nil
}

func (f *fakeClient) TableExists(context.Context, warehouse.TableRef) (bool, error) {
	return false, nil
}

func TestRun(t *testing.T) {
	f, err := Load(writeFile(t, sampleJobs))
	require.NoError(t, err)
	jobs, err := f.Resolve(testDefaults)
	require.NoError(t, err)

	t.Run("runs every job in order", func(t *testing.T) {
		client := &fakeClient{}
		results, err := Run(context.Background(), client, jobs, zap.NewNop())
		require.NoError(t, err)
		assert.Len(t, results, 5)
		assert.Equal(t, "CBCWithDifferentialCohortWithValue", client.ran[0])
		assert.Equal(t, "PatientProblemGroupExtractor", client.ran[4])
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		client := &fakeClient{failOn: "TroponinCohort"}
		results, err := Run(context.Background(), client, jobs, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
		assert.Len(t, results, 2)
		assert.Len(t, client.ran, 2)
	})
}
