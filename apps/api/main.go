package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elearn/apps/api/echo"
	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/access"
	"github.com/trezcool/elearn/core/catalog"
	"github.com/trezcool/elearn/core/entitlement"
	"github.com/trezcool/elearn/core/quiz"
	"github.com/trezcool/elearn/core/selection"
	"github.com/trezcool/elearn/services/logger"
	"github.com/trezcool/elearn/storage/database"
	"github.com/trezcool/elearn/storage/database/dummy"
	"github.com/trezcool/elearn/storage/database/sqlboiler"
	"github.com/trezcool/elearn/storage/database/sqlx"
)

type stores struct {
	catalog     catalog.Repository
	entitlement entitlement.Repository
	quiz        quiz.Repository
	close       func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	st, err := setUpStores(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = st.close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	resolver := entitlement.NewResolver(st.entitlement, st.catalog, logger, conf)
	selector := selection.NewSelector(st.catalog, nil)
	quizSvc := quiz.NewService(st.quiz, st.catalog, selector, resolver, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	quiz.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("dbEngine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Catalog:      st.catalog,
			Entitlements: resolver,
			Gate:         access.NewGate(resolver, st.catalog),
			QuizSvc:      quizSvc,
			Validate:     validate,
			Translator:   translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStores opens the stores of the configured engine: "postgres", or "dummy" (in-memory, empty catalog).
func setUpStores(conf *core.Config) (stores, error) {
	if conf.Database.Engine == "dummy" {
		db, err := dummydb.Open()
		if err != nil {
			return stores{}, err
		}
		return stores{
			catalog:     dummydb.NewCatalogRepository(db),
			entitlement: dummydb.NewEntitlementRepository(db),
			quiz:        dummydb.NewQuizRepository(db),
			close:       func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return stores{}, err
	}
	return stores{
		catalog:     sqlxrepos.NewCatalogRepository(database.OpenX(db, conf)),
		entitlement: boiledrepos.NewEntitlementRepository(db),
		quiz:        boiledrepos.NewQuizRepository(db),
		close:       db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db); err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
