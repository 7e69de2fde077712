package dataset

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/address"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/landregistry"
)

// Refresher replaces a stored dataset from the publisher's bulk file and
// invalidates the postcode cache afterwards.
type Refresher struct {
	registry landregistry.Client
	store    store.Store
	cache    *Cache
}

func NewRefresher(registry landregistry.Client, s store.Store, cache *Cache) *Refresher {
	return &Refresher{registry: registry, store: s, cache: cache}
}

// Refresh streams the bulk file at srcURL, swaps the rows stored under the
// dataset label in one transaction, and invalidates the cache. Returns the
// number of rows loaded.
func (r *Refresher) Refresh(ctx context.Context, dataset, srcURL string) (int, error) {
	zap.L().Info("refreshing ownership dataset",
		zap.String("dataset", dataset),
		zap.String("source", srcURL))

	var rows []model.CorporateOwnerRecord
	skipped := 0
	n, err := r.registry.FetchOwnershipDataset(ctx, srcURL, func(row landregistry.OwnershipRow) error {
		// Rows are stored under the normalized postcode so lookups keyed
		// on a resolved address find them whatever the publisher's spacing.
		postcode := address.NormalizePostcode(row.Postcode)
		if postcode == "" {
			skipped++
			return nil
		}
		rows = append(rows, model.CorporateOwnerRecord{
			OwnerName:     row.ProprietorName,
			CompanyNumber: row.CompanyNumber,
			TitleNumber:   row.TitleNumber,
			AddressLine1:  row.PropertyAddress,
			Town:          row.District,
			Postcode:      postcode,
			Dataset:       dataset,
		})
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "dataset: fetch %s", dataset)
	}

	if err := r.store.ReplaceOwnershipDataset(ctx, dataset, rows); err != nil {
		return 0, eris.Wrapf(err, "dataset: replace %s", dataset)
	}
	r.cache.Invalidate()

	zap.L().Info("ownership dataset refreshed",
		zap.String("dataset", dataset),
		zap.Int("rows", len(rows)),
		zap.Int("streamed", n),
		zap.Int("skipped_no_postcode", skipped))
	return len(rows), nil
}
