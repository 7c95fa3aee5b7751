package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/coachcredits-backend/pkg/config"
	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration title for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	source := migrate.Embedded()
	if *dir != "" {
		source = os.DirFS(*dir)
	}

	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.Scaffold(target, *name, time.Now())
		if err != nil {
			fail("create: %v", err)
		}
		fmt.Println(path)
		return
	case "validate":
		if err := migrate.Lint(source); err != nil {
			fail("validate:\n%v", err)
		}
		fmt.Println("migrations ok")
		return
	}

	step, err := runnerStep(*cmd, *version)
	if err != nil {
		fail("%v", err)
	}
	if err := runAgainstDB(*cmd, source, step); err != nil {
		os.Exit(1)
	}
}

type runnerFunc func(*migrate.Runner, context.Context) error

func runnerStep(cmd, version string) (runnerFunc, error) {
	switch cmd {
	case "up":
		return (*migrate.Runner).Up, nil
	case "down":
		return (*migrate.Runner).Down, nil
	case "status":
		return (*migrate.Runner).Status, nil
	case "version":
		target, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("-version must be YYYYMMDDHHMMSS: %w", err)
		}
		return func(r *migrate.Runner, ctx context.Context) error { return r.To(ctx, target) }, nil
	}
	return nil, fmt.Errorf("unknown -cmd %q", cmd)
}

func runAgainstDB(cmd string, source fs.FS, step runnerFunc) error {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "migrate.config", err)
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "migrate.db", err)
		return err
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "migrate.db", err)
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, source, logg)
	if err != nil {
		logg.Error(ctx, "migrate.provider", err)
		return err
	}
	if err := step(runner, ctx); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
