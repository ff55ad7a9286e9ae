package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/user"
	appfs "github.com/trezcool/sanaa/fs"
	logsvc "github.com/trezcool/sanaa/services/logger"
	"github.com/trezcool/sanaa/storage/database"
	sqlxrepos "github.com/trezcool/sanaa/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt.gz", logger)

	// start CLI
	cli := commandLine{
		migrateFunc: func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db, command, args...)
		},
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), validate, logger),
		orgs:   sqlxrepos.NewOrganizationRepository(db),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
