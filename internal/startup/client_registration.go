// Package startup handles service initialization tasks, currently the
// seeding of OAuth2 client registrations from a YAML file at boot.
package startup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/auth"
	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/models"
)

// ClientSeeder registers clients from the seed file during startup.
// Seeding is idempotent: a client whose ID already exists is updated in
// place, so restarting the service never duplicates registrations.
type ClientSeeder struct {
	config  *config.Config
	authSvc auth.Service
	logger  *logrus.Logger
}

// NewClientSeeder creates a client seeder.
func NewClientSeeder(cfg *config.Config, authSvc auth.Service, logger *logrus.Logger) *ClientSeeder {
	return &ClientSeeder{
		config:  cfg,
		authSvc: authSvc,
		logger:  logger,
	}
}

// Seed loads the seed file and registers every client in it. Individual
// registration failures are logged and skipped so one bad entry does not
// block boot; a missing seed file is not an error.
func (cs *ClientSeeder) Seed(ctx context.Context) error {
	if !cs.config.ClientSeed.Enabled {
		return nil
	}

	seeds, err := config.LoadSeedClients(cs.config.ClientSeed.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load seed clients: %w", err)
	}
	if len(seeds) == 0 {
		cs.logger.WithField("file_path", cs.config.ClientSeed.FilePath).
			Info("No seed clients to register")
		return nil
	}

	cs.logger.WithFields(logrus.Fields{
		"file_path":    cs.config.ClientSeed.FilePath,
		"client_count": len(seeds),
	}).Info("Registering seed clients")

	for _, seed := range seeds {
		if regErr := cs.registerSeedClient(ctx, seed); regErr != nil {
			cs.logger.WithFields(logrus.Fields{
				"client_name": seed.Name,
				"error":       regErr,
			}).Error("Failed to register seed client")
		}
	}

	return nil
}

func (cs *ClientSeeder) registerSeedClient(ctx context.Context, seed config.SeedClient) error {
	grantTypes := seed.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{string(models.GrantTypeClientCredentials)}
	}

	client, _, err := cs.authSvc.RegisterClient(ctx, auth.RegisterClientParams{
		ID:              seed.ID,
		Name:            seed.Name,
		Secret:          seed.Secret,
		RedirectURIs:    seed.RedirectURIs,
		Scopes:          seed.Scopes,
		GrantTypes:      grantTypes,
		AccessTokenTTL:  seed.AccessTokenTTL,
		RefreshTokenTTL: seed.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	cs.logger.WithFields(logrus.Fields{
		"client_id":   client.ID,
		"client_name": client.Name,
		"grant_types": client.GrantTypes,
	}).Info("Seed client registered")

	return nil
}
