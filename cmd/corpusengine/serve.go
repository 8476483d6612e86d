package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/opencontracts/corpuscore/pkg/appctx"
	"github.com/opencontracts/corpuscore/pkg/cfg"
	"github.com/opencontracts/corpuscore/pkg/dbconf"
	"github.com/opencontracts/corpuscore/pkg/store"
)

// serveConfig is the minimal config block a Gateway process hands the core
// on startup: where the relational store lives. Everything past schema
// migration (listening for RPCs, wiring the AuthorityOracle/BlobStore/
// Embedder collaborators) is the Gateway's job, named but not implemented
// here per spec.md §1's scope boundary.
type serveConfig struct {
	Database dbconf.Database `mapstructure:"database"`
}

func (c *serveConfig) ApplyDefaults() {
	c.Database.ApplyDefaults()
}

func serveCommand() *command {
	cmd := newCommand("serve")
	dbEngine := cmd.String("db-engine", "", "database engine (sqlite, mysql, postgres)")
	dbName := cmd.String("db-name", "", "database name (or DSN path for sqlite)")

	cmd.Usage = func() string {
		return "Usage: corpusengine serve [-db-engine=sqlite] [-db-name=corpus.db]"
	}
	cmd.Description = func() string {
		return "run schema migration and hold the process open for the Gateway's in-process API wiring"
	}
	cmd.Action = func() error {
		var sc serveConfig
		if err := cfg.Decode(map[string]any{
			"database": map[string]any{"engine": *dbEngine, "db_name": *dbName},
		}, &sc); err != nil {
			return err
		}

		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		ctx := appctx.WithLogger(context.Background(), &log)

		s, err := store.Open(sc.Database)
		if err != nil {
			return err
		}
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Str("engine", sc.Database.Engine).Msg("corpusengine: schema ready")

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		fmt.Println("corpusengine: store migrated; waiting for the Gateway's API wiring, Ctrl-C to exit")
		<-stop
		return nil
	}
	return cmd
}
