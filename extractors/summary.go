package extractors

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

type FeatureCount struct {
	FeatureType  string `bigquery:"feature_type"`
	Observations int64  `bigquery:"observations"`
	Features     int64  `bigquery:"features"`
	Distinct     int64  `bigquery:"distinct_features"`
}

// SummarizeFeatures counts rows per feature_type in a feature table. An empty
// featureType counts every type.
func SummarizeFeatures(ctx context.Context, r warehouse.Reader, table warehouse.TableRef, featureType string) ([]FeatureCount, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT
    feature_type,
    COUNT(DISTINCT observation_id) observations,
    COUNT(*) features,
    COUNT(DISTINCT feature) distinct_features
FROM
    %s
WHERE
    (@FeatureType = '' OR feature_type = @FeatureType)
GROUP BY feature_type
ORDER BY feature_type ASC
`, table)

	itr, err := r.Read(ctx, sql, bigquery.QueryParameter{Name: "FeatureType", Value: featureType})
	if err != nil {
		return nil, err
	}

	return warehouse.ReadAll[FeatureCount](itr)
}
