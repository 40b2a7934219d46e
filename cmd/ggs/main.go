// Command ggs annotates a corpus and writes the phase outputs as JSONL.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"

	"github.com/cognicore/ggs/internal/logging"
	"github.com/cognicore/ggs/pkg/ggs/config"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Version is the release of the command.
var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "ggs",
		Usage:                  "Annotate a scripture corpus and compute co-occurrence and tagging statistics",
		Version:                fmt.Sprintf("%s (schema %s)", Version, schema.Version),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.yaml, .yml or .toml)",
				Value:   "ggs.yaml",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Write logs as JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run every phase over a JSONL corpus",
				Flags: append(engineFlags(),
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   "out",
					},
				),
				Action: runCommand,
			},
			{
				Name:  "lint",
				Usage: "Check the lexicon for shared, colliding and near-duplicate aliases",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output findings as JSON lines",
					},
					&cli.Float64Flag{
						Name:  "near-duplicate",
						Usage: "Similarity threshold for near-duplicate aliases (0 disables)",
						Value: 0.8,
					},
				},
				Action: lintCommand,
			},
			{
				Name:      "manifest",
				Usage:     "Print the manifest of a previous run from the cache",
				ArgsUsage: "<run-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "cache",
						Usage: "SQLite cache path (overrides run.cache_path)",
					},
				},
				Action: manifestCommand,
			},
			{
				Name:  "evaluate",
				Usage: "Score the tagger against a gold set and sweep threshold variants",
				Flags: append(engineFlags(),
					&cli.StringFlag{
						Name:     "gold",
						Aliases:  []string{"g"},
						Usage:    "Gold labels as JSONL",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "variants",
						Usage: "Threshold variants to sweep (.yaml, .yml or .toml)",
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Directory for evaluation.json and evaluation_metrics.csv",
						Value:   "out",
					},
				),
				Action: evaluateCommand,
			},
		},
	}
}

// engineFlags are shared by every command that runs the pipeline.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "Corpus lines as JSONL, - for stdin",
			Required: true,
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Parallel workers (0 = config value)",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Recompute every phase, ignoring the cache",
		},
		&cli.StringFlag{
			Name:  "cache",
			Usage: "SQLite cache path (overrides run.cache_path)",
		},
		&cli.StringSliceFlag{
			Name:  "invalidate",
			Usage: "Drop the cache entry of a phase before running (repeatable, 'all' for every phase)",
		},
	}
}

func newLogger(c *cli.Context) *log.Logger {
	return logging.New(logging.Params{
		Debug:  c.Bool("debug"),
		JSON:   c.Bool("log-json"),
		Writer: c.App.ErrWriter,
	})
}

// loadConfig reads the config file. A missing file is only tolerated for
// the default path, in which case the built-in defaults apply.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !c.IsSet("config") {
		return config.Default(), nil
	}
	return config.Config{}, fmt.Errorf("failed to load config from %s: %w", path, err)
}
