package cohorts

import (
	"sort"

	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// LabResultTable is the STARR table every lab cohort is drawn from.
const LabResultTable = "lab_result"

// DefaultYears is the order-year window used by the predefined cohorts.
var DefaultYears = YearWindow{From: 2015, To: 2021}

// Constructor builds a predefined cohort that writes to builder and reads
// lab results from source.
type Constructor func(builder CohortBuilder, source warehouse.DatasetRef) *LabPanelCohort

var catalog = map[string]Constructor{
	"MetabolicComprehensiveCohortWithValue":        NewMetabolicComprehensiveCohortWithValue,
	"CBCWithDifferentialCohortWithValue":           NewCBCWithDifferentialCohortWithValue,
	"CBCWithDifferentialCohortWithValueNoSampling": NewCBCWithDifferentialCohortWithValueNoSampling,
}

// Lookup returns the constructor registered under name.
func Lookup(name string) (Constructor, bool) {
	c, ok := catalog[name]
	return c, ok
}

// Names lists the predefined cohorts in sorted order.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var (
	mmolL = []string{"mmol/L", "mmol/l"}
	mgdL  = []string{"mg/dL", "mg/dl"}
	gdL   = []string{"g/dL", "g/dl"}

	// Platelet and white cell counts are reported under three equivalent
	// unit spellings.
	countPerUL = []string{"K/uL", "x10E3/uL", "Thousand/uL"}
)

// MetabolicComprehensivePanel is the comprehensive metabolic panel with its
// components normalized to conventional US units.
var MetabolicComprehensivePanel = LabPanel{
	GroupLabName: "Metabolic Panel, Comprehensive",
	Components: []Component{
		{BaseName: "NA", Units: mmolL},
		{BaseName: "K", Units: mmolL},
		{BaseName: "CO2", Units: mmolL},
		{BaseName: "BUN", Units: mgdL},
		{BaseName: "CR", Units: mgdL},
		{BaseName: "CA", Units: mgdL},
		{BaseName: "ALB", Units: gdL},
	},
}

var CBCWithDifferentialPanel = LabPanel{
	GroupLabName:    "CBC With Differential",
	CaseInsensitive: true,
	RequireValue:    true,
	Components: []Component{
		{BaseName: "WBC", Units: countPerUL},
		{BaseName: "PLT", Units: countPerUL},
		{BaseName: "HCT", Units: []string{"%"}},
		{BaseName: "HGB", Units: []string{"g/dL"}},
	},
}

// NewMetabolicComprehensiveCohortWithValue numbers observations per year but
// keeps all of them.
func NewMetabolicComprehensiveCohortWithValue(builder CohortBuilder, source warehouse.DatasetRef) *LabPanelCohort {
	return &LabPanelCohort{
		CohortBuilder: builder,
		JobName:       "MetabolicComprehensiveCohortWithValue",
		Source:        source.Table(LabResultTable),
		Panel:         MetabolicComprehensivePanel,
		Years:         DefaultYears,
	}
}

// NewCBCWithDifferentialCohortWithValue samples 2000 observations per year.
func NewCBCWithDifferentialCohortWithValue(builder CohortBuilder, source warehouse.DatasetRef) *LabPanelCohort {
	return &LabPanelCohort{
		CohortBuilder: builder,
		JobName:       "CBCWithDifferentialCohortWithValue",
		Source:        source.Table(LabResultTable),
		Panel:         CBCWithDifferentialPanel,
		Years:         DefaultYears,
		SampleCap:     null.IntFrom(2000),
	}
}

func NewCBCWithDifferentialCohortWithValueNoSampling(builder CohortBuilder, source warehouse.DatasetRef) *LabPanelCohort {
	return &LabPanelCohort{
		CohortBuilder: builder,
		JobName:       "CBCWithDifferentialCohortWithValueNoSampling",
		Source:        source.Table(LabResultTable),
		Panel:         CBCWithDifferentialPanel,
		Years:         DefaultYears,
	}
}
