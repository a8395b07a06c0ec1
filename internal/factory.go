package internal

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinwatch/config"
	"github.com/vadiminshakov/skinwatch/internal/services/aggregator"
	"github.com/vadiminshakov/skinwatch/internal/services/source"
	"github.com/vadiminshakov/skinwatch/pkg/clock"
	"github.com/vadiminshakov/skinwatch/pkg/retrier"
	"go.uber.org/zap"
)

// sourceSet is what the aggregator and the price book need from the configured sources.
type sourceSet struct {
	adapters []source.Adapter
	catalogs []aggregator.Catalog
}

// newSources builds one adapter per enabled source. Bulk sources are wrapped in a catalog cache.
// This is the single point where source names are dispatched to implementations.
func newSources(cfg config.Config, client *http.Client, rec source.Recorder, clk clock.Clock, logger *zap.Logger) (sourceSet, error) {
	r := retrier.New(
		retrier.WithMaxRetries(2),
		retrier.WithInitialInterval(500*time.Millisecond),
		retrier.WithMaxInterval(2*time.Second),
	)

	var set sourceSet
	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}
		switch sc.Name {
		case config.SourceMarketCSGO:
			c := source.NewCatalog(source.NewMarketCSGO(client, sc.URL, sc.Timeout, r), cfg.CatalogTTL, clk, rec, logger)
			set.adapters = append(set.adapters, c)
			set.catalogs = append(set.catalogs, c)
		case config.SourceSkinport:
			c := source.NewCatalog(source.NewSkinport(client, sc.URL, sc.Timeout, r), cfg.CatalogTTL, clk, rec, logger)
			set.adapters = append(set.adapters, c)
			set.catalogs = append(set.catalogs, c)
		case config.SourceSteam:
			set.adapters = append(set.adapters, source.NewSteam(client, sc.URL, sc.Timeout, cfg.SteamRatePerMinute, r, rec, logger))
		default:
			return sourceSet{}, errors.Errorf("unsupported source: %s", sc.Name)
		}
	}

	eligible := 0
	for _, a := range set.adapters {
		if a.Eligibility() == source.ConsensusEligible {
			eligible++
		}
	}
	if eligible == 0 {
		return sourceSet{}, errors.New("no consensus source enabled")
	}

	return set, nil
}
