package extractors

import (
	"fmt"
	"sort"

	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

// Options are the per-job settings an extractor may use. Extractors reject
// options they cannot honor rather than silently ignoring them.
type Options struct {
	LookBackDays  null.Int
	FeatureColumn string
	Mapping       warehouse.TableRef
}

type Constructor func(base Extractor, opts Options) (warehouse.Job, error)

var catalog = map[string]Constructor{
	"PatientProblemGroupExtractor": func(base Extractor, opts Options) (warehouse.Job, error) {
		if opts.LookBackDays.Valid || opts.FeatureColumn != "" {
			return nil, fmt.Errorf("PatientProblemGroupExtractor takes no look-back or feature column")
		}
		return &PatientProblemGroupExtractor{Extractor: base, Mapping: opts.Mapping}, nil
	},
	"DiagnosisExtractor": func(base Extractor, opts Options) (warehouse.Job, error) {
		if opts.FeatureColumn != "" || !opts.Mapping.IsZero() {
			return nil, fmt.Errorf("DiagnosisExtractor takes no feature column or mapping table")
		}
		return &DiagnosisExtractor{Extractor: base, LookBackDays: opts.LookBackDays}, nil
	},
	"MedicationExtractor": func(base Extractor, opts Options) (warehouse.Job, error) {
		if !opts.Mapping.IsZero() {
			return nil, fmt.Errorf("MedicationExtractor takes no mapping table")
		}
		return &MedicationExtractor{Extractor: base, LookBackDays: opts.LookBackDays, FeatureColumn: opts.FeatureColumn}, nil
	},
}

// New builds the extractor registered under name.
func New(name string, base Extractor, opts Options) (warehouse.Job, error) {
	ctor, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown extractor %q (known: %v)", name, Names())
	}
	return ctor(base, opts)
}

func Names() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
