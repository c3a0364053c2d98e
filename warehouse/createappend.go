package warehouse

import (
	"context"
	"fmt"
)

// AddCreateOrAppendLogic wraps a SELECT so that it appends to dest when the
// table already exists and creates it otherwise.
func AddCreateOrAppendLogic(query string, dest TableRef, exists bool) string {
	if exists {
		return fmt.Sprintf(`
INSERT INTO %s
(%s)
`, dest, query)
	}

	return fmt.Sprintf(`
CREATE OR REPLACE TABLE %s AS
(%s)
`, dest, query)
}

// CreateOrAppend probes dest and applies AddCreateOrAppendLogic. A failed
// probe is returned rather than treated as a missing table, since guessing
// wrong would replace existing features.
func CreateOrAppend(ctx context.Context, checker TableChecker, query string, dest TableRef) (string, error) {
	if err := dest.Validate(); err != nil {
		return "", err
	}

	exists, err := checker.TableExists(ctx, dest)
	if err != nil {
		return "", err
	}

	return AddCreateOrAppendLogic(query, dest, exists), nil
}
