package cohorts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var bareYear = regexp.MustCompile(`^\d{4}$`)

// monthYearLayouts cover month-and-year bounds, which dateparse rejects.
var monthYearLayouts = []string{"Jan 2006", "January 2006"}

// ParseYear accepts a bare year ("2015"), a month and year ("Jan 2015") or
// any date dateparse understands ("2015-01-01", "01/02/2015") and returns its
// calendar year.
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty year")
	}

	if bareYear.MatchString(s) {
		return strconv.Atoi(s)
	}

	for _, layout := range monthYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), nil
		}
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q as a year or date: %w", s, err)
	}

	return t.Year(), nil
}

// ParseYearWindow parses both bounds. Empty bounds fall back to the
// corresponding bound of fallback.
func ParseYearWindow(from, to string, fallback YearWindow) (YearWindow, error) {
	out := fallback

	var err error
	if from != "" {
		if out.From, err = ParseYear(from); err != nil {
			return YearWindow{}, err
		}
	}
	if to != "" {
		if out.To, err = ParseYear(to); err != nil {
			return YearWindow{}, err
		}
	}

	return out, out.Validate()
}
