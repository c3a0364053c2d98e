package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	projectPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	datasetPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	tablePattern   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	columnPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,299}$`)
)

// maxNameLen bounds dataset and table names. RE2 caps repeat counts at 1000,
// so the length is checked outside the patterns.
const maxNameLen = 1024

// TableRef is a fully qualified BigQuery table. It is interpolated into SQL
// as project.dataset.table, so Validate must pass before it is used.
type TableRef struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
}

func (t TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, t.Table)
}

func (t TableRef) IsZero() bool {
	return t == TableRef{}
}

// Validate checks each part against the BigQuery naming rules, restricted to
// the subset that is safe to emit without backtick quoting.
func (t TableRef) Validate() error {
	if !projectPattern.MatchString(t.Project) {
		return fmt.Errorf("invalid project ID %q in table %s", t.Project, t)
	}
	if len(t.Dataset) > maxNameLen || !datasetPattern.MatchString(t.Dataset) {
		return fmt.Errorf("invalid dataset %q in table %s", t.Dataset, t)
	}
	if len(t.Table) > maxNameLen || !tablePattern.MatchString(t.Table) {
		return fmt.Errorf("invalid table name %q in table %s", t.Table, t)
	}
	return nil
}

// DatasetRef is a project.dataset pair that source tables are resolved
// against.
type DatasetRef struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

func (d DatasetRef) Table(name string) TableRef {
	return TableRef{Project: d.Project, Dataset: d.Dataset, Table: name}
}

func (d DatasetRef) String() string {
	return d.Project + "." + d.Dataset
}

// ParseTableRef accepts project.dataset.table, the legacy project:dataset.table
// form, and dataset.table, which is resolved against defaultProject.
// Surrounding backticks are ignored.
func ParseTableRef(s, defaultProject string) (TableRef, error) {
	s = strings.Trim(strings.TrimSpace(s), "`")
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i] + "." + s[i+1:]
	}

	var ref TableRef
	switch parts := strings.Split(s, "."); len(parts) {
	case 3:
		ref = TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}
	case 2:
		if defaultProject == "" {
			return TableRef{}, fmt.Errorf("table %q has no project and no default project is configured", s)
		}
		ref = TableRef{Project: defaultProject, Dataset: parts[0], Table: parts[1]}
	default:
		return TableRef{}, fmt.Errorf("expected project.dataset.table, got %q", s)
	}

	if err := ref.Validate(); err != nil {
		return TableRef{}, err
	}

	return ref, nil
}

// ValidColumn reports whether name can be emitted as an unquoted column
// identifier.
func ValidColumn(name string) bool {
	return columnPattern.MatchString(name)
}
