// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// doorman-gate serves the invite gate: a small HTTP surface that
// performs privileged room invitations after Cloudflare Turnstile
// verification and, when configured, a GitHub account-age check.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/doorman/directory"
	"github.com/bureau-foundation/doorman/gate"
	"github.com/bureau-foundation/doorman/lib/config"
	"github.com/bureau-foundation/doorman/lib/github"
	"github.com/bureau-foundation/doorman/lib/process"
	"github.com/bureau-foundation/doorman/lib/secret"
	"github.com/bureau-foundation/doorman/lib/service"
	"github.com/bureau-foundation/doorman/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the doorman config file (default: $DOORMAN_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("doorman-gate")
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.ValidateGate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := service.ConnectMatrix(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	rooms, err := directory.Build(ctx, session, logger)
	if err != nil {
		return err
	}

	turnstileSecret, err := secret.ReadFromPath(cfg.Gate.Turnstile.SecretKeyFile)
	if err != nil {
		return err
	}
	defer turnstileSecret.Close()

	verifier, err := gate.NewTurnstileVerifier(gate.TurnstileVerifierConfig{
		SecretKey: turnstileSecret,
	})
	if err != nil {
		return err
	}

	var identity *github.Client
	if cfg.Gate.GitHub != nil {
		clientSecret, err := secret.ReadFromPath(cfg.Gate.GitHub.ClientSecretFile)
		if err != nil {
			return err
		}
		defer clientSecret.Close()

		identity, err = github.NewClient(github.Config{
			ClientID:     cfg.Gate.GitHub.ClientID,
			ClientSecret: clientSecret,
			RedirectURL:  cfg.Gate.GitHub.RedirectURL,
		})
		if err != nil {
			return err
		}
	}

	gateService, err := gate.New(gate.Config{
		Session:          session,
		Rooms:            rooms,
		Turnstile:        verifier,
		SiteKey:          cfg.Gate.Turnstile.SiteKey,
		Identity:         identity,
		HighAbuseOrigins: cfg.Gate.HighAbuseOrigins,
		MinAccountAge:    cfg.Gate.MinAccountAge.Std(),
		PendingTTL:       cfg.Gate.PendingTTL.Std(),
		RequireProfile:   cfg.Gate.RequireProfile,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Gate.ListenAddress,
		Handler: gateService.Handler(),
		Logger:  logger,
	})

	logger.Info("invite gate starting",
		"listen", cfg.Gate.ListenAddress,
		"rooms", rooms.Len(),
		"identity_policy", identity != nil)

	return httpServer.Serve(ctx)
}
