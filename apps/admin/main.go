package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/tenant"
	logsvc "github.com/trezcool/homeroom/services/logger"
	"github.com/trezcool/homeroom/storage/database"
	boiledrepos "github.com/trezcool/homeroom/storage/database/sqlboiler"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	errAndDie(logger, database.Ping(ctx, db))
	cancel()

	session := database.NewSession(db, conf.Database, logger)
	tenantRepo := boiledrepos.NewTenantRepository(db)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		accounts: account.NewService(boiledrepos.NewAccountRepository(db), tenantRepo, session),
		tenants:  tenant.NewService(tenantRepo, session),
		validate: validate,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			printError(err, translator)
		}
		db.Close()
		os.Exit(1)
	}
}

func printError(err error, translator ut.Translator) {
	if verrs, ok := errors.Cause(err).(validator.ValidationErrors); ok {
		for field, msg := range verrs.Translate(translator) {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", field, msg)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
