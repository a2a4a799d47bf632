// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/doorman/lib/config"
	"github.com/bureau-foundation/doorman/lib/secret"
	"github.com/bureau-foundation/doorman/messaging"
)

// ConnectMatrix establishes the gatekeeper's Matrix session from the
// shared config section: reads the access token file, builds the
// session, and verifies the token against /whoami. Both binaries call
// this at startup; a bad token fails here rather than on the first
// real request.
func ConnectMatrix(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*messaging.Session, error) {
	userID, err := cfg.Matrix.ParseUserID()
	if err != nil {
		return nil, fmt.Errorf("matrix user ID: %w", err)
	}

	token, err := secret.ReadFromPath(cfg.Matrix.AccessTokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		token.Close()
		return nil, err
	}

	// The session takes ownership of the token buffer.
	session, err := client.SessionFromToken(userID, token)
	if err != nil {
		token.Close()
		return nil, err
	}

	actual, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("verifying access token: %w", err)
	}
	if actual != userID {
		session.Close()
		return nil, fmt.Errorf("access token belongs to %s, config says %s", actual, userID)
	}

	logger.Info("matrix session established",
		"homeserver", cfg.Matrix.HomeserverURL,
		"user", userID)
	return session, nil
}
