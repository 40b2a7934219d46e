package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cognicore/ggs/pkg/ggs/config"
	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/lexicon"
	"github.com/cognicore/ggs/pkg/ggs/normalize"
	"github.com/cognicore/ggs/pkg/ggs/pipeline"
)

// lintCommand reports lexicon problems the loader tolerates. It fails
// when any finding or skipped entry is an ERROR.
func lintCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	findings, issues, err := lintLexicon(cfg, float32(c.Float64("near-duplicate")))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		if err := pipeline.EncodeJSONL(c.App.Writer, findings); err != nil {
			return err
		}
	} else {
		for _, iss := range issues {
			fmt.Fprintf(c.App.Writer, "[%s] %s: %s\n", iss.Severity, iss.Type, iss.Message)
		}
		for _, f := range findings {
			fmt.Fprintf(c.App.Writer, "[%s] %s %q: %s\n", f.Severity, f.Check, f.Form, f.Message)
		}
		fmt.Fprintf(c.App.Writer, "%d findings, %d skipped entries\n", len(findings), len(issues))
	}

	errs := len(issues)
	for _, f := range findings {
		if f.Severity == internalerr.SeverityError {
			errs++
		}
	}
	if errs > 0 {
		return cli.Exit(fmt.Sprintf("lint: %d errors", errs), 1)
	}
	return nil
}

func lintLexicon(cfg config.Config, nearDuplicate float32) ([]lexicon.Finding, internalerr.Issues, error) {
	paths, err := cfg.Lexicon.ExpandPaths()
	if err != nil {
		return nil, nil, err
	}
	loaded, err := lexicon.LoadFiles(paths)
	if err != nil {
		return nil, nil, err
	}

	opts := lexicon.DefaultLintOptions()
	opts.NearDuplicate = nearDuplicate
	policy := cfg.Corpus.Normalize
	opts.Normalize = func(s string) string { return normalize.Normalize(s, policy) }
	if cfg.Lexicon.Polysemy != "" {
		opts.Polysemy, err = lexicon.LoadPolysemy(cfg.Lexicon.Polysemy)
		if err != nil {
			return nil, nil, err
		}
	}
	return lexicon.Lint(loaded.Entities, opts), loaded.Issues, nil
}
