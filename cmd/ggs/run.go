package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/cognicore/ggs/pkg/ggs"
	"github.com/cognicore/ggs/pkg/ggs/config"
	"github.com/cognicore/ggs/pkg/ggs/ingest"
	"github.com/cognicore/ggs/pkg/ggs/pipeline"
	"github.com/cognicore/ggs/pkg/ggs/store"
	"github.com/cognicore/ggs/pkg/ggs/store/memstore"
	"github.com/cognicore/ggs/pkg/ggs/store/sqlite"
)

func runCommand(c *cli.Context) error {
	res, err := runEngine(c)
	if err != nil {
		return err
	}
	out := c.String("out")
	if err := writeOutputs(out, res); err != nil {
		return err
	}
	newLogger(c).Info("outputs written", "dir", out, "run", res.RunID)
	return nil
}

// runEngine loads the configuration and lexicon, opens the cache and runs
// every phase over --input.
func runEngine(c *cli.Context) (*ggs.Result, error) {
	ctx := c.Context
	logger := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	comp, err := (&config.Loader{Config: cfg}).Load()
	if err != nil {
		return nil, err
	}

	lines, err := readInput(c.String("input"), c.App.Reader)
	if err != nil {
		return nil, err
	}
	logger.Info("corpus loaded", "lines", len(lines), "entities", comp.Index.Stats().Entities)

	st, err := openStore(ctx, c.String("cache"), cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	engine, err := ggs.New(ggs.Options{
		Components: comp,
		Store:      st,
		Logger:     logger,
		Workers:    c.Int("workers"),
		Force:      c.Bool("force"),
	})
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	for _, phase := range c.StringSlice("invalidate") {
		if phase == "all" {
			phase = ""
		}
		if err := engine.Invalidate(ctx, phase); err != nil {
			return nil, err
		}
	}
	return engine.Run(ctx, ggs.Input{Lines: lines})
}

func manifestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("manifest needs exactly one run id", 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	path := c.String("cache")
	if path == "" {
		path = cfg.Run.CachePath
	}
	if path == "" {
		return cli.Exit("no cache configured; set --cache or run.cache_path", 2)
	}
	st, err := sqlite.OpenSQLite(c.Context, path)
	if err != nil {
		return err
	}
	defer st.Close()

	m, ok, err := pipeline.LoadManifest(c.Context, st, c.Args().First())
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("no manifest for run %s", c.Args().First()), 1)
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// openStore opens the SQLite cache when a path is configured and falls
// back to an in-memory store otherwise.
func openStore(ctx context.Context, flagPath string, cfg config.Config) (store.Store, error) {
	path := flagPath
	if path == "" {
		path = cfg.Run.CachePath
	}
	if path == "" {
		return memstore.New(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	return sqlite.OpenSQLite(ctx, path)
}

func readInput(path string, stdin io.Reader) ([]ingest.RawLine, error) {
	if path == "-" {
		return readRawLines(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return readRawLines(f)
}

func readRawLines(r io.Reader) ([]ingest.RawLine, error) {
	lines, err := pipeline.DecodeJSONL[ingest.RawLine](bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return lines, nil
}

// writeOutputs writes one <stream>.jsonl per output stream plus
// manifest.json.
func writeOutputs(dir string, res *ggs.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, s := range res.Streams() {
		if err := writeFile(filepath.Join(dir, s.Name+".jsonl"), s.Encode); err != nil {
			return err
		}
	}
	return writeFile(filepath.Join(dir, "manifest.json"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(res.Manifest)
	})
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
