package main

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/internal/database"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/repository"
	"github.com/mailvault/mailvault/server"
	"github.com/mailvault/mailvault/services"
)

func main() {
	app := &cli.App{
		Name:  "mailvault",
		Usage: "offline-first message cache and sync daemon",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
			{
				Name:   "daemon",
				Usage:  "Start the cache daemon",
				Action: runDaemon,
			},
			{
				Name:   "key-import",
				Usage:  "Import a PGP private key for an account",
				Action: runKeyImport,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true, Usage: "account id the key belongs to"},
					&cli.StringFlag{Name: "name", Required: true, Usage: "key name"},
					&cli.StringFlag{Name: "file", Required: true, Usage: "path to the armored private key"},
				},
			},
			{
				Name:   "key-remove",
				Usage:  "Remove a PGP key from an account",
				Action: runKeyRemove,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true, Usage: "account id the key belongs to"},
					&cli.StringFlag{Name: "name", Required: true, Usage: "key name"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewConnection(cfg.Database.ToConnectionConfig())
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func runMigrate(c *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}

	if err := repository.MigrateDB(db); err != nil {
		return err
	}
	log.Println("Database migration completed successfully")
	return nil
}

// setupServices builds the headless service graph for one-shot CLI commands.
func setupServices() (*services.Services, *repository.Repositories, error) {
	cfg, db, err := setup()
	if err != nil {
		return nil, nil, err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	repos := repository.InitRepositories(db)
	svcs, err := services.InitServices(cfg, db, repos, services.ExternalCapabilities{
		Prompt:   services.NoopPrompt{},
		Notifier: services.NoopNotifier{},
	}, appLogger)
	if err != nil {
		return nil, nil, err
	}
	return svcs, repos, nil
}

func runKeyImport(c *cli.Context) error {
	svcs, _, err := setupServices()
	if err != nil {
		return err
	}

	armored, err := os.ReadFile(c.String("file"))
	if err != nil {
		return errors.Wrap(err, "reading key file")
	}

	err = svcs.PgpPipeline.StoreKey(c.Context, &models.PgpKey{
		AccountID:  c.String("account"),
		Name:       c.String("name"),
		PrivateKey: string(armored),
	})
	if err != nil {
		return err
	}
	log.Printf("Key %q imported; cached bodies for account %s invalidated", c.String("name"), c.String("account"))
	return nil
}

func runKeyRemove(c *cli.Context) error {
	svcs, repos, err := setupServices()
	if err != nil {
		return err
	}

	key, err := repos.PgpKeyRepository.GetByName(c.Context, c.String("account"), c.String("name"))
	if err != nil {
		return err
	}
	if key == nil {
		return errors.Errorf("no key named %q for account %s", c.String("name"), c.String("account"))
	}

	if err := svcs.PgpPipeline.RemoveKey(c.Context, key); err != nil {
		return err
	}
	log.Printf("Key %q removed; cached bodies for account %s invalidated", key.Name, key.AccountID)
	return nil
}

func runDaemon(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("MailVault starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return err
	}
	return srv.Run()
}
