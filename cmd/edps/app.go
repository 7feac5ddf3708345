package main

import (
	"context"
	"fmt"

	"github.com/nkiryanov/edps/internal/apiclient"
	"github.com/nkiryanov/edps/internal/clock"
	"github.com/nkiryanov/edps/internal/credstore"
	"github.com/nkiryanov/edps/internal/dashboard"
	"github.com/nkiryanov/edps/internal/logger"
	"github.com/nkiryanov/edps/internal/router"
	"github.com/nkiryanov/edps/internal/session"
)

// App is one client process: a single session shared by router and dashboard
type App struct {
	Logger    logger.Logger
	API       *apiclient.Client
	Creds     *credstore.Store
	Session   *session.Store
	Router    *router.Router
	Dashboard *dashboard.Service
}

func NewApp(c *Config) (*App, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Credential tiers: file for remembered login, memory for this process only
	path := c.CredentialsFile
	if path == "" {
		path, err = credstore.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("error while resolving credentials file. Err: %w", err)
		}
	}
	creds, err := credstore.New(credstore.NewFileTier(path), credstore.NewMemoryTier())
	if err != nil {
		return nil, fmt.Errorf("error while creating credential store. Err: %w", err)
	}

	api := apiclient.New(c.APIBaseURL, apiclient.WithLogger(logger), apiclient.WithTimeout(c.Timeout))

	sess, err := session.New(api, creds, session.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("error while creating session. Err: %w", err)
	}

	guard := router.NewGuard(sess, creds, clock.System{}, logger)

	return &App{
		Logger:    logger,
		API:       api,
		Creds:     creds,
		Session:   sess,
		Router:    router.New(guard, logger),
		Dashboard: dashboard.New(api, logger),
	}, nil
}

// Start restores remembered session. Failure leaves session empty and is not fatal
func (a *App) Start(ctx context.Context) {
	if err := a.Session.TryAutoLogin(ctx); err != nil {
		a.Logger.Info("Auto login failed, login required", "error", err)
	}
}

// Close cancels pending refresh and keeps credential for the next run
func (a *App) Close() {
	a.Session.Close()
}
