package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/migrate"
)

const serviceName = "epos-migrate"

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

type dbCommand func(ctx context.Context, m *migrate.Migrator, opts options) error

var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		applied, err := m.Up(ctx)
		fmt.Println("applied migrations:", applied)
		return err
	},
	"down": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.Down(ctx)
	},
	"redo": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.Redo(ctx)
	},
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		states, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range states {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Printf("%-8s %d %s\n", mark, s.Version, s.Path)
		}
		return nil
	},
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		target, err := strconv.ParseInt(opts.version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -version %q (expected YYYYMMDDHHMMSS): %w", opts.version, err)
		}
		return m.To(ctx, target)
	},
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: "+commandList())
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: embedded set; create writes to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) (err error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.Validate(migrate.Source(opts.dir)); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}

	command, ok := dbCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q (want %s)", opts.cmd, commandList())
	}

	logg := logger.New(logger.Options{ServiceName: serviceName})
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	m, err := migrate.NewMigrator(sqlDB, migrate.Source(opts.dir))
	if err != nil {
		return err
	}

	if err := command(ctx, m, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		return err
	}
	logg.Info(ctx, "migration finished")
	return nil
}

func commandList() string {
	names := []string{"create", "validate"}
	for name := range dbCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
