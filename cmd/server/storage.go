package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/config"
	"github.com/Nixie-Tech-LLC/signage/internal/storage"
)

// InitStorage selects the backend screenshots are uploaded to
func InitStorage(cfg *config.Config) (storage.Storage, error) {
	sc := cfg.Screenshot
	if sc.UseSpaces {
		spacesStorage, err := storage.NewSpacesStorage(storage.SpacesConfig{
			Endpoint:  sc.SpacesEndpoint,
			Region:    sc.SpacesRegion,
			Bucket:    sc.SpacesBucket,
			CDNURL:    sc.SpacesCDNURL,
			AccessKey: sc.SpacesAccessKey,
			SecretKey: sc.SpacesSecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize Spaces storage: %w", err)
		}
		log.Info().Str("cdn", sc.SpacesCDNURL).Msg("screenshots stored in DigitalOcean Spaces")
		return spacesStorage, nil
	}

	log.Info().Str("dir", sc.Dir).Msg("screenshots stored locally")
	return storage.NewLocalStorage(sc.Dir), nil
}
