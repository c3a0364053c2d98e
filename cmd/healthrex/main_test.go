package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/alee2022/AIHC-EHR-2023/cohorts"
	"github.com/alee2022/AIHC-EHR-2023/extractors"
	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

func TestQualify(t *testing.T) {
	assert.Equal(t, "work.cohort", qualify("cohort", "work"))
	assert.Equal(t, "other.cohort", qualify("other.cohort", "work"))
	assert.Equal(t, "p.d.t", qualify("p.d.t", "work"))
	assert.Equal(t, "p:d.t", qualify("p:d.t", "work"))
	assert.Equal(t, "cohort", qualify("cohort", ""))
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = newLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}

func TestDisplayJob(t *testing.T) {
	c := cohorts.NewCBCWithDifferentialCohortWithValue(
		cohorts.CohortBuilder{Project: "mining-clinical-decisions", Dataset: "work", Table: "cbc"},
		warehouse.DatasetRef{Project: "som-nero-phi-jonc101", Dataset: "shc_core_2021"},
	)

	var buf bytes.Buffer
	require.NoError(t, displayJob(context.Background(), &buf, nil, c, false))

	out := buf.String()
	assert.Contains(t, out, "-- CBCWithDifferentialCohortWithValue -> mining-clinical-decisions.work.cbc\n")
	assert.Contains(t, out, "CREATE OR REPLACE TABLE")
	assert.NotContains(t, out, "/*\n")

	buf.Reset()
	require.NoError(t, displayJob(context.Background(), &buf, nil, c, true))
	assert.Contains(t, buf.String(), "GroupLabName")
}

type emptyWarehouse struct{}

func (emptyWarehouse) TableExists(context.Context, warehouse.TableRef) (bool, error) {
	return false, nil
}

func TestDisplayPlanTracksEarlierDestinations(t *testing.T) {
	source := warehouse.DatasetRef{Project: "som-nero-phi-jonc101", Dataset: "shc_core_2021"}
	features := warehouse.TableRef{Project: "mining-clinical-decisions", Dataset: "work", Table: "cbc_features"}
	base := extractors.Extractor{
		CohortTable:  warehouse.TableRef{Project: "mining-clinical-decisions", Dataset: "work", Table: "cbc"},
		FeatureTable: features,
		Source:       source,
	}

	problems, err := extractors.New("PatientProblemGroupExtractor", base, extractors.Options{})
	require.NoError(t, err)
	meds, err := extractors.New("MedicationExtractor", base, extractors.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, displayPlan(context.Background(), &buf, emptyWarehouse{}, []warehouse.Job{problems, meds}, false))

	out := buf.String()
	create := strings.Index(out, "CREATE OR REPLACE TABLE "+features.String())
	insert := strings.Index(out, "INSERT INTO "+features.String())
	require.GreaterOrEqual(t, create, 0)
	require.GreaterOrEqual(t, insert, 0)
	assert.Less(t, create, insert)
	assert.Equal(t, 1, strings.Count(out, "CREATE OR REPLACE TABLE "+features.String()))
}

func TestReportResult(t *testing.T) {
	c := cohorts.NewCBCWithDifferentialCohortWithValue(
		cohorts.CohortBuilder{Project: "mining-clinical-decisions", Dataset: "work", Table: "cbc"},
		warehouse.DatasetRef{Project: "som-nero-phi-jonc101", Dataset: "shc_core_2021"},
	)
	res := &warehouse.JobResult{
		JobID:          "cbc_1",
		StatementType:  "CREATE_TABLE_AS_SELECT",
		BytesProcessed: 1024,
		AffectedRows:   12,
		Elapsed:        2 * time.Second,
	}

	var buf bytes.Buffer
	reportResult(&buf, c, res)
	assert.Equal(t,
		"CBCWithDifferentialCohortWithValue\tmining-clinical-decisions.work.cbc\tcbc_1\tCREATE_TABLE_AS_SELECT\t1024\t12\t2s\n",
		buf.String())
}
