package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/internal/config"
	"github.com/jakechorley/crop-planner/pkg/clients/sheetsclient"
	"github.com/jakechorley/crop-planner/pkg/postgres"
)

// AppContext holds the application dependencies shared across all commands.
// The database and Sheets client are opened on first use so that optimizing a plan
// needs neither.
type AppContext struct {
	Cfg    *config.Config
	Env    string
	Logger *zap.Logger
	Ctx    context.Context

	database     *postgres.DB
	sheetsClient *sheetsclient.Client
}

// Database connects to Postgres on first use
func (a *AppContext) Database() (*postgres.DB, error) {
	if a.database != nil {
		return a.database, nil
	}
	if a.Cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured (set databaseURL or %s)", config.EnvDatabaseURL)
	}

	a.Logger.Info("Connecting to database")
	database, err := postgres.NewDB(a.Ctx, a.Cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.database = database
	return database, nil
}

// SheetsClient authorizes against Google on first use
func (a *AppContext) SheetsClient() (*sheetsclient.Client, error) {
	if a.sheetsClient != nil {
		return a.sheetsClient, nil
	}

	a.Logger.Info("Loading OAuth client configuration")
	oauthCfg, err := config.LoadOAuthClientWithEnv(a.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	a.Logger.Info("Initializing sheets client")
	client, err := sheetsclient.NewClient(a.Ctx, oauthCfg, a.Env, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	a.sheetsClient = client
	return client, nil
}

// Close releases the database pool if one was opened
func (a *AppContext) Close() {
	if a.database != nil {
		a.database.Close()
		a.database = nil
	}
}
