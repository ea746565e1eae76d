package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/lms-to-minio-syncer/internal/config"
	"github.com/chmdznr/lms-to-minio-syncer/internal/db"
	"github.com/chmdznr/lms-to-minio-syncer/internal/portal"
	"github.com/chmdznr/lms-to-minio-syncer/internal/storage"
	syncer "github.com/chmdznr/lms-to-minio-syncer/internal/sync"
	"github.com/chmdznr/lms-to-minio-syncer/pkg/utils"
	"github.com/chmdznr/lms-to-minio-syncer/pkg/version"
)

var log = logrus.New()

func main() {
	config.LoadEnv()

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	dbFlag := &cli.StringFlag{
		Name:    "db",
		Usage:   "Ledger database path",
		Value:   config.DefaultLedgerPath,
		EnvVars: []string{"SYNC_DB"},
	}

	app := &cli.App{
		Name:                 "lmsync",
		Usage:                "Mirror new LMS course files into MinIO",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "Run one sync pass against the portal",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "login-url",
						Usage:   "Portal login page URL",
						EnvVars: []string{"MOODLE_LOGIN_URL"},
					},
					&cli.StringFlag{
						Name:    "username",
						Usage:   "Portal username",
						EnvVars: []string{"MOODLE_USERNAME"},
					},
					&cli.StringFlag{
						Name:    "password",
						Usage:   "Portal password",
						EnvVars: []string{"MOODLE_PASSWORD"},
					},
					&cli.StringFlag{
						Name:    "endpoint",
						Usage:   "MinIO endpoint",
						EnvVars: []string{"MINIO_ENDPOINT"},
					},
					&cli.StringFlag{
						Name:    "access-key",
						Usage:   "MinIO access key",
						EnvVars: []string{"MINIO_ACCESS_KEY"},
					},
					&cli.StringFlag{
						Name:    "secret-key",
						Usage:   "MinIO secret key",
						EnvVars: []string{"MINIO_SECRET_KEY"},
					},
					&cli.BoolFlag{
						Name:    "ssl",
						Usage:   "Use TLS for the MinIO connection",
						Value:   true,
						EnvVars: []string{"MINIO_USE_SSL"},
					},
					&cli.StringFlag{
						Name:    "bucket",
						Usage:   "Root bucket for mirrored courses",
						Value:   config.DefaultRootBucket,
						EnvVars: []string{"SYNC_BUCKET"},
					},
					&cli.StringFlag{
						Name:    "staging-dir",
						Usage:   "Directory for transient staging files",
						EnvVars: []string{"SYNC_STAGING_DIR"},
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Log skipped files too",
					},
					dbFlag,
				},
				Action: runSync,
			},
			{
				Name:   "status",
				Usage:  "Show ledger contents",
				Flags:  []cli.Flag{dbFlag},
				Action: showStatus,
			},
			{
				Name:  "reset",
				Usage: "Delete ledger records to force re-transfer",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "course",
						Usage: "Only reset records of this course",
					},
					dbFlag,
				},
				Action: resetLedger,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// portalEnumerator adapts the concrete portal client to the
// orchestrator's Enumerator interface.
type portalEnumerator struct {
	*portal.Client
}

func (p portalEnumerator) Files(ctx context.Context, courseURL string) syncer.FileSeq {
	return p.Client.Files(ctx, courseURL)
}

func runSync(c *cli.Context) error {
	cfg := config.Config{
		LoginURL:   c.String("login-url"),
		Username:   c.String("username"),
		Password:   c.String("password"),
		Endpoint:   c.String("endpoint"),
		AccessKey:  c.String("access-key"),
		SecretKey:  c.String("secret-key"),
		UseSSL:     c.Bool("ssl"),
		RootBucket: c.String("bucket"),
		LedgerPath: c.String("db"),
		StagingDir: c.String("staging-dir"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	ledger, err := db.New(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	store, err := storage.New(storage.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return err
	}

	client, err := portal.New(cfg.LoginURL, cfg.Username, cfg.Password)
	if err != nil {
		return err
	}

	ctx := context.Background()
	started := time.Now()
	log.WithFields(logrus.Fields{
		"portal": cfg.LoginURL,
		"bucket": cfg.RootBucket,
	}).Info("starting sync")

	if err := client.Login(ctx); err != nil {
		return err
	}

	s := syncer.New(ledger, portalEnumerator{client}, store, syncer.Config{
		RootName:   cfg.RootBucket,
		StagingDir: cfg.StagingDir,
	}, log)

	stats, err := s.Run(ctx)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"courses":  stats.Courses,
		"uploaded": stats.UploadedFiles,
		"skipped":  stats.SkippedFiles,
		"size":     utils.FormatSize(stats.UploadedSize),
		"elapsed":  utils.FormatDuration(time.Since(started)),
	}).Info("sync complete")
	return nil
}

func showStatus(c *cli.Context) error {
	ledger, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	stats, err := ledger.Stats()
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Ledger: %s\n", c.String("db"))
	fmt.Printf("Total synced files: %d\n", stats.TotalRecords)
	for _, course := range stats.Courses {
		fmt.Printf("  %-40s %d\n", course.Course, course.Records)
	}

	recent, err := ledger.RecentRecords(10)
	if err != nil {
		return fmt.Errorf("failed to list recent records: %w", err)
	}
	if len(recent) > 0 {
		fmt.Println("Most recent:")
		for _, r := range recent {
			fmt.Printf("  %s  %s / %s\n", r.SyncedAt.Format("2006-01-02 15:04:05"), r.Course, r.FileName)
		}
	}
	return nil
}

func resetLedger(c *cli.Context) error {
	ledger, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	removed, err := ledger.Reset(c.String("course"))
	if err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}

	fmt.Printf("Removed %d ledger record(s); matching files will be re-transferred on the next run\n", removed)
	return nil
}
