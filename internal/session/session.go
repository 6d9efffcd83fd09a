// Package session owns the baseline/current configuration pair of an
// assessment. The baseline is frozen when the session starts; only the
// current configuration changes, through SetCurrent or strategy toggles.
package session

import (
	"log/slog"
	"time"

	"github.com/YumeNoTenshi/ecoscan/internal/lca"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
)

// Source records how an assessment's baseline was established.
type Source string

const (
	SourceDefaults Source = "defaults"
	SourceManual   Source = "manual"
	SourceImport   Source = "import"
	SourceFallback Source = "fallback"
	SourceDiscover Source = "discover"
	SourceHistory  Source = "history"
)

// Metrics pairs the estimates of the baseline and current configurations.
type Metrics struct {
	Baseline models.LifecycleMetrics `json:"baseline"`
	Current  models.LifecycleMetrics `json:"current"`
}

// Session is a single assessment. It is not safe for concurrent use; the
// Manager serialises access per session.
type Session struct {
	ID        string
	Source    Source
	CreatedAt time.Time

	baseline models.WorkloadConfig
	current  models.WorkloadConfig
	logger   *slog.Logger
}

// New validates cfg and uses it as both baseline and current.
func New(id string, source Source, cfg models.WorkloadConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)
	valid, subs := Validate(cfg)
	logSubstitutions(logger, subs)
	return &Session{
		ID:        id,
		Source:    source,
		CreatedAt: time.Now(),
		baseline:  valid,
		current:   valid.Clone(),
		logger:    logger,
	}
}

// Baseline returns a copy of the frozen baseline.
func (s *Session) Baseline() models.WorkloadConfig {
	return s.baseline.Clone()
}

// Current returns a copy of the current configuration.
func (s *Session) Current() models.WorkloadConfig {
	return s.current.Clone()
}

// SetCurrent replaces the current configuration after validating it.
func (s *Session) SetCurrent(cfg models.WorkloadConfig) []Substitution {
	valid, subs := Validate(cfg)
	logSubstitutions(s.logger, subs)
	s.current = valid
	return subs
}

// Metrics estimates both configurations. Nothing is cached.
func (s *Session) Metrics() Metrics {
	return Metrics{
		Baseline: lca.Estimate(s.baseline),
		Current:  lca.Estimate(s.current),
	}
}

// Strategies evaluates every catalogue strategy against this session.
func (s *Session) Strategies() []strategy.Evaluation {
	return strategy.EvaluateAll(s.current, s.baseline)
}

// Toggle applies or reverts one strategy on the current configuration.
func (s *Session) Toggle(id string) (strategy.Action, error) {
	next, action, err := strategy.Toggle(id, s.current, s.baseline)
	if err != nil {
		return "", err
	}
	s.current = next
	s.logger.Debug("strategy toggled", "strategy", id, "action", action)
	return action, nil
}
