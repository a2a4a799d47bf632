// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// doorman-bot runs the join challenge engine: a long-lived /sync
// consumer that challenges each joiner of a protected room with their
// personal symbol and grants posting power on a correct reaction.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/doorman/challenge"
	"github.com/bureau-foundation/doorman/lib/clock"
	"github.com/bureau-foundation/doorman/lib/config"
	"github.com/bureau-foundation/doorman/lib/process"
	"github.com/bureau-foundation/doorman/lib/ref"
	"github.com/bureau-foundation/doorman/lib/service"
	"github.com/bureau-foundation/doorman/lib/version"
	"github.com/bureau-foundation/doorman/messaging"
)

// syncFilter restricts the sync stream to the two timeline event
// types the engine consumes.
const syncFilter = `{"room":{"timeline":{"types":["m.room.member","m.reaction"]},"state":{"types":[]},"ephemeral":{"types":[]}},"presence":{"types":[]},"account_data":{"types":[]}}`

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
		version.Print("doorman-bot")
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
	if err := cfg.ValidateBot(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := service.ConnectMatrix(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	protected, err := resolveProtectedRooms(ctx, session, cfg.Bot.ProtectedRooms)
	if err != nil {
		return err
	}

	engine := challenge.New(challenge.Config{
		Session:        session,
		ProtectedRooms: protected,
		StalenessBound: cfg.Bot.StalenessBound.Std(),
		Logger:         logger,
	})

	// Advisory power-level check for each watched room. Warnings only;
	// a misconfigured room is fixed in the room, not by refusing to run.
	watched := protected
	if len(watched) == 0 {
		watched, err = session.JoinedRooms(ctx)
		if err != nil {
			return fmt.Errorf("listing joined rooms: %w", err)
		}
	}
	engine.CheckRooms(ctx, watched)

	// The initial sync establishes the stream position. Its payload is
	// discarded: everything in it predates startup and would be stale.
	since, _, err := service.InitialSync(ctx, session, syncFilter)
	if err != nil {
		return err
	}

	logger.Info("challenge engine running",
		"rooms", len(watched),
		"staleness_bound", cfg.Bot.StalenessBound.Std())

	service.RunSyncLoop(ctx, session, service.SyncConfig{
		Filter: syncFilter,
	}, since, engine.HandleSync, clock.Real(), logger)

	return nil
}

// resolveProtectedRooms parses the configured room list, resolving
// aliases to room IDs. An unresolvable alias is a startup error: a
// silently unwatched room is worse than a failed start.
func resolveProtectedRooms(ctx context.Context, session *messaging.Session, configured []string) ([]ref.RoomID, error) {
	rooms := make([]ref.RoomID, 0, len(configured))
	for _, raw := range configured {
		if strings.HasPrefix(raw, "#") {
			alias, err := ref.ParseRoomAlias(raw)
			if err != nil {
				return nil, err
			}
			roomID, err := session.ResolveAlias(ctx, alias)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", alias, err)
			}
			rooms = append(rooms, roomID)
			continue
		}
		roomID, err := ref.ParseRoomID(raw)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, roomID)
	}
	return rooms, nil
}
