package salesforce

import (
	"context"

	"github.com/rotisserie/eris"
)

// BulkInsertLeads splits records into batches of 200 (SF Collections API
// limit) and sends them via InsertCollection.
func BulkInsertLeads(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var allResults []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(records) {
			end = len(records)
		}

		results, err := c.InsertCollection(ctx, "Lead", records[start:end])
		if err != nil {
			return allResults, eris.Wrap(err, "sf: bulk insert leads")
		}
		allResults = append(allResults, results...)
	}
	return allResults, nil
}
