package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/sanaa/apps/api/echo"
	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/core/user"
	appfs "github.com/trezcool/sanaa/fs"
	emailsvc "github.com/trezcool/sanaa/services/email"
	logsvc "github.com/trezcool/sanaa/services/logger"
	"github.com/trezcool/sanaa/storage/database"
	sqlxrepos "github.com/trezcool/sanaa/storage/database/sqlx"
	"github.com/trezcool/sanaa/storage/files"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up artifact storage
	store, err := files.New(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	user.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt.gz", logger)

	tmpls, err := core.ParseEmailTemplates(appfs.FS, "assets/templates/email", conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, tmpls)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, tmpls, logger)
	}

	orgRepo := sqlxrepos.NewOrganizationRepository(db)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate, logger)
	certSvc := certificate.NewService(certificate.ServiceDeps{
		Repo:          sqlxrepos.NewCertificateRepository(db),
		Templates:     sqlxrepos.NewTemplateRepository(db),
		Organizations: orgRepo,
		Store:         store,
		Mailer:        mailSvc,
		Validate:      validate,
		Logger:        logger,
		Conf:          conf,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage.Driver)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			CertificateSvc: certSvc,
			Organizations:  orgRepo,
			Validate:       validate,
			Translator:     translator,
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
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

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db, "up"); err != nil {
		return nil, err
	}
	return db, nil
}
