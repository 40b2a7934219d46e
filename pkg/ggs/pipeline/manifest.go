package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/store"
)

// Run status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// PhaseReport is one phase's entry in the manifest.
type PhaseReport struct {
	Phase       string      `json:"phase"`
	InputHash   string      `json:"input_hash"`
	OutputHash  string      `json:"output_hash,omitempty"`
	ArtifactKey string      `json:"artifact_key,omitempty"`
	Records     int         `json:"records"`
	Cache       CacheStatus `json:"cache"`
	internalerr.Summary
}

// Manifest describes a run: what went in, which component versions ran
// and what each phase produced.
type Manifest struct {
	SchemaVersion      string             `json:"schema_version"`
	RunID              string             `json:"run_id"`
	Status             string             `json:"status"`
	InputHash          string             `json:"input_hash"`
	InputLines         int                `json:"input_lines"`
	LexiconHash        string             `json:"lexicon_hash"`
	LexiconFiles       map[string]string  `json:"lexicon_files,omitempty"`
	ConfigHash         string             `json:"config_hash"`
	NormalizationSteps []string           `json:"normalization_steps"`
	Versions           map[string]string  `json:"versions"`
	Phases             []PhaseReport      `json:"phases"`
	Fatal              *internalerr.Issue `json:"fatal,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	FinishedAt         time.Time          `json:"finished_at"`
}

// Phase returns the report for a phase.
func (m *Manifest) Phase(name string) (PhaseReport, bool) {
	for _, p := range m.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseReport{}, false
}

// SaveManifest writes m to the store under its run ID.
func SaveManifest(ctx context.Context, s store.Store, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.PutManifest(ctx, m.RunID, data); err != nil {
		return fmt.Errorf("store manifest %s: %w", m.RunID, err)
	}
	return nil
}

// LoadManifest reads the manifest of a run.
func LoadManifest(ctx context.Context, s store.Store, runID string) (*Manifest, bool, error) {
	data, ok, err := s.GetManifest(ctx, runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decode manifest %s: %w", runID, err)
	}
	return &m, true, nil
}
