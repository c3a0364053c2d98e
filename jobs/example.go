package jobs

// Example is the jobs file written by `healthrex jobs init`: the sampled CBC
// cohort, a custom basic metabolic panel, and features for the CBC cohort.
func Example(dataset string) *File {
	cap2000 := int64(2000)
	lookBack := int64(180)

	return &File{
		Defaults: Defaults{Dataset: dataset},
		Cohorts: []CohortSpec{
			{
				Name:      "CBCWithDifferentialCohortWithValue",
				Table:     "cbc_with_diff_cohort",
				SampleCap: &cap2000,
			},
			{
				Name:  "BasicMetabolicCohortWithValue",
				Table: "bmp_cohort",
				Years: &Years{From: "2015", To: "2021"},
				Panel: &PanelSpec{
					GroupLabName:    "Metabolic Panel, Basic",
					CaseInsensitive: true,
					RequireValue:    true,
					Components: []ComponentSpec{
						{BaseName: "NA", Units: []string{"mmol/L", "mmol/l"}},
						{BaseName: "K", Units: []string{"mmol/L", "mmol/l"}},
						{BaseName: "CR", Units: []string{"mg/dL", "mg/dl"}},
					},
				},
			},
		},
		Extractors: []ExtractorSpec{
			{
				Name:     "PatientProblemGroupExtractor",
				Cohort:   "cbc_with_diff_cohort",
				Features: "cbc_with_diff_features",
			},
			{
				Name:         "MedicationExtractor",
				Cohort:       "cbc_with_diff_cohort",
				Features:     "cbc_with_diff_features",
				LookBackDays: &lookBack,
			},
		},
	}
}
