package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/classifier"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/database"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/logging"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/services"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := cli.App{
		Name:  "modctl",
		Usage: "operator tool for the anonboard moderation pipeline",
		Before: func(cctx *cli.Context) error {
			cfg := config.Load()
			logging.Setup(cfg.AppEnv)
			if err := database.Connect(cfg); err != nil {
				return err
			}
			return database.Migrate(database.DB)
		},
		After: func(cctx *cli.Context) error {
			if database.DB == nil {
				return nil
			}
			return database.Close()
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "scan",
			Usage: "classify a batch of unscanned posts",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: "maximum posts to scan",
					Value: services.DefaultScanBatch,
				},
			},
			Action: runScan,
		},
		{
			Name:   "stats",
			Usage:  "print moderation counts",
			Action: runStats,
		},
		{
			Name:      "import-config",
			Usage:     "replace the stored classifier config with a JSON file",
			ArgsUsage: "<file>",
			Action:    runImportConfig,
		},
		{
			Name:   "export-config",
			Usage:  "print the stored classifier config as JSON",
			Action: runExportConfig,
		},
	}
	app.RunAndExitOnError()
}

// newClassifier resolves rules the same way the server does: the stored
// config, falling back to CLASSIFIER_STATIC_PATH or the bundled snapshot.
func newClassifier(db *gorm.DB, cfg *config.Config) (*classifier.Classifier, error) {
	static, err := classifier.NewStaticSource(cfg.ClassifierStaticPath)
	if err != nil {
		return nil, err
	}
	provider := classifier.NewProvider(classifier.NewRepository(db), static, cfg.ClassifierCacheTTL)
	return classifier.New(provider), nil
}

func newModerationService() (*services.ModerationService, error) {
	c, err := newClassifier(database.DB, config.Load())
	if err != nil {
		return nil, err
	}
	return services.NewModerationService(database.DB, c), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runScan(cctx *cli.Context) error {
	svc, err := newModerationService()
	if err != nil {
		return err
	}
	result, err := svc.ScanUnscanned(cctx.Context, cctx.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runStats(cctx *cli.Context) error {
	svc, err := newModerationService()
	if err != nil {
		return err
	}
	stats, err := svc.GetStats(cctx.Context)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runImportConfig(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		return cli.Exit("need to provide a config file as an argument", 1)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := classifier.ParseConfig(data)
	if err != nil {
		return err
	}
	if err := classifier.NewRepository(database.DB).Import(cctx.Context, cfg); err != nil {
		return err
	}
	fmt.Printf("imported %d categories\n", len(cfg.Categories))
	return nil
}

func runExportConfig(cctx *cli.Context) error {
	cfg, err := classifier.NewRepository(database.DB).Load(cctx.Context)
	if err != nil {
		return err
	}
	return printJSON(cfg)
}
