package fim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
)

// ObjectGetter reads a whole object into memory.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ObjectCatalog reads the benchmark catalog from one object-store key. It
// re-fetches on every call.
type ObjectCatalog struct {
	store   ObjectGetter
	key     string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewObjectCatalog creates an ObjectCatalog reading key from store.
func NewObjectCatalog(store ObjectGetter, key string, metrics *observability.Metrics, logger *slog.Logger) *ObjectCatalog {
	return &ObjectCatalog{store: store, key: key, metrics: metrics, logger: logger}
}

// Records fetches and decodes the catalog.
func (c *ObjectCatalog) Records(ctx context.Context) ([]domain.Record, error) {
	body, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.metrics.CatalogFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch catalog %s: %w", c.key, err)
	}
	var doc domain.Catalog
	if err := json.Unmarshal(body, &doc); err != nil {
		c.metrics.CatalogFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode catalog %s: %w", c.key, err)
	}
	c.metrics.CatalogFetches.WithLabelValues("success").Inc()
	c.logger.Debug("catalog fetched", "key", c.key, "records", len(doc.Records), "bytes", len(body))
	return doc.Records, nil
}
