// Command migrate applies the quiz_results and question bank schema.
//
//	migrate [-dir migrations] [-database URL] up [N]
//	migrate down [N|all]
//	migrate goto <version>
//	migrate version
//	migrate force <version>
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/logger"
)

// migrator is the part of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Migrate(version uint) error
	Force(version int) error
	Version() (uint, bool, error)
}

type command struct {
	name  string
	steps int
	all   bool
	ver   int
}

var errUsage = errors.New("usage")

// parseCommand turns the positional arguments into a command. Down without
// a count rolls back a single migration; "down all" empties the schema.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	cmd := command{name: args[0]}
	rest := args[1:]

	switch cmd.name {
	case "up":
		if len(rest) == 0 {
			cmd.all = true
			return cmd, nil
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("up: step count must be a positive integer, got %q", rest[0])
		}
		cmd.steps = n
	case "down":
		switch {
		case len(rest) == 0:
			cmd.steps = 1
		case rest[0] == "all":
			cmd.all = true
		default:
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 1 {
				return command{}, fmt.Errorf("down: expected a step count or \"all\", got %q", rest[0])
			}
			cmd.steps = n
		}
	case "goto", "force":
		if len(rest) == 0 {
			return command{}, fmt.Errorf("%s: version argument required", cmd.name)
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil || (v < 0 && cmd.name == "goto") {
			return command{}, fmt.Errorf("%s: invalid version %q", cmd.name, rest[0])
		}
		cmd.ver = v
	case "version":
	default:
		return command{}, errUsage
	}
	return cmd, nil
}

// run executes cmd. A schema that is already current is not an error.
func run(m migrator, cmd command, log zerolog.Logger) error {
	var err error
	switch cmd.name {
	case "up":
		if cmd.all {
			err = m.Up()
		} else {
			err = m.Steps(cmd.steps)
		}
	case "down":
		if cmd.all {
			err = m.Down()
		} else {
			err = m.Steps(-cmd.steps)
		}
	case "goto":
		err = m.Migrate(uint(cmd.ver))
	case "force":
		err = m.Force(cmd.ver)
	case "version":
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", cmd.name).Msg("Schema already at target version")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.name, err)
	}

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		log.Info().Str("command", cmd.name).Msg("Schema is empty")
	case verr != nil:
		return fmt.Errorf("read version: %w", verr)
	case dirty:
		log.Warn().Uint("version", version).Msg("Schema is dirty, fix the failed migration then run force")
	default:
		log.Info().Str("command", cmd.name).Uint("version", version).Msg("Schema version")
	}
	return nil
}

func main() {
	cfg := config.Load()

	var dir, dbURL string
	flag.StringVar(&dir, "dir", "migrations", "directory holding the NNNNNN_name.{up,down}.sql files")
	flag.StringVar(&dbURL, "database", cfg.DatabaseURL, "Postgres URL, defaults to DATABASE_URL")
	flag.Usage = printUsage
	flag.Parse()

	log := logger.Component(logger.Setup(cfg.LogLevel, cfg.LogFormat), "migrate")

	cmd, err := parseCommand(flag.Args())
	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid arguments")
	}
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+dir, dbURL)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("Failed to open migrations")
	}
	defer m.Close()

	if err := run(m, cmd, log); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		m.Close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [flags] <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up [N]          apply all pending migrations, or the next N")
	fmt.Fprintln(os.Stderr, "  down [N|all]    roll back one migration, N of them, or all")
	fmt.Fprintln(os.Stderr, "  goto <version>  migrate up or down to version")
	fmt.Fprintln(os.Stderr, "  version         print the current schema version")
	fmt.Fprintln(os.Stderr, "  force <version> mark version as applied without running it")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}
