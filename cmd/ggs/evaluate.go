package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/cognicore/ggs/pkg/ggs/evaluate"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// baselineVariant names the configured thresholds in a sweep.
const baselineVariant = "baseline"

func evaluateCommand(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	gold, err := readGold(c.String("gold"))
	if err != nil {
		return err
	}

	var variants map[string]tagging.Config
	if path := c.String("variants"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read variants: %w", err)
		}
		variants, err = evaluate.ParseVariants(data, filepath.Ext(path), cfg.Tagging)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, ok := variants[baselineVariant]; !ok {
			variants[baselineVariant] = cfg.Tagging
		}
	}

	res, err := runEngine(c)
	if err != nil {
		return err
	}
	rep := evaluate.Run(gold, res.Tags, variants)

	out := c.String("out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeFile(filepath.Join(out, "evaluation.json"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(rep)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(out, "evaluation_metrics.csv"), func(w io.Writer) error {
		return evaluate.WriteCSV(w, rep.Metrics)
	}); err != nil {
		return err
	}

	m := rep.Metrics
	for _, cm := range m.PerCategory {
		fmt.Fprintf(c.App.Writer, "%-28s P=%.3f R=%.3f F1=%.3f (n=%d)\n", cm.Category, cm.Precision, cm.Recall, cm.F1, cm.Support)
	}
	fmt.Fprintf(c.App.Writer, "%-28s P=%.3f R=%.3f F1=%.3f (aligned %d/%d)\n", "MACRO",
		m.MacroPrecision, m.MacroRecall, m.MacroF1, m.TotalAligned, m.TotalGold)
	for _, p := range rep.Sweep {
		fmt.Fprintf(c.App.Writer, "variant %-20s macro F1=%.3f\n", p.Name, p.Metrics.MacroF1)
	}
	logger.Info("evaluation written", "dir", out, "errors", len(rep.Errors), "run", res.RunID)
	return nil
}

func readGold(path string) ([]evaluate.GoldLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gold labels: %w", err)
	}
	defer f.Close()
	gold, err := evaluate.LoadGold(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return gold, nil
}
