package refdata

import (
	"context"
	"errors"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

// RepositoryLoaders wires every loader to the repository's reference-data
// tables. A missing weighting row loads as nil rather than failing the
// whole refresh.
func RepositoryLoaders(repo domain.Repository) Loaders {
	return Loaders{
		Vessels:           repo.ListVessels,
		VesselsOfInterest: repo.ListVesselsOfInterest,
		Weighting: func(ctx context.Context) (*domain.Weighting, error) {
			w, err := repo.GetWeighting(ctx)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return w, err
		},
		SpeciesAliases:    repo.ListSpeciesAliases,
		ConversionFactors: repo.ListConversionFactors,
		ExporterBehaviour: repo.ListExporterBehaviour,
	}
}
