package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/services/logger"
	"github.com/trezcool/elearn/storage/database"
	"github.com/trezcool/elearn/storage/database/sqlboiler"
	"github.com/trezcool/elearn/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	errAndDie(database.Ping(ctx, db))

	// start CLI
	resolver := entitlement.NewResolver(
		boiledrepos.NewEntitlementRepository(db),
		sqlxrepos.NewCatalogRepository(database.OpenX(db, conf)),
		logsvc.NewRollbarLogger(logger, conf),
		conf,
	)
	cli := commandLine{
		db:      db,
		samples: resolver,
		out:     os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
