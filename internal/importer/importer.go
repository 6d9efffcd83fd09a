// Package importer turns an uploaded project document into a candidate
// workload configuration. Extraction is best effort: a document that yields
// nothing usable is replaced by a fixed high-carbon baseline so the
// assessment can always proceed.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/YumeNoTenshi/ecoscan/internal/ecotags"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// MaxDocumentBytes is how much of a document is handed to an extractor.
const MaxDocumentBytes = 15000

// ParseError reports that a document could not be turned into a config.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("import parse failure: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

var errNoFields = errors.New("document contains no workload fields")

// Extractor produces a candidate config from a raw document. The candidate
// may be partial or name unknown hardware and regions; callers validate it.
type Extractor interface {
	Extract(ctx context.Context, doc []byte) (models.WorkloadConfig, error)
}

// StructuredExtractor reads YAML or JSON documents, optionally wrapped as
// YAML frontmatter in a markdown file.
type StructuredExtractor struct{}

var knownFields = map[string]bool{
	"hardwareModel": true, "gpuCount": true, "trainingHours": true,
	"trainingRegion": true, "inferenceRegion": true, "monthlyRequests": true,
	"avgLatencySeconds": true, "projectLifetimeYears": true,
	"auditNotes": true, "recommendations": true,
}

func (StructuredExtractor) Extract(ctx context.Context, doc []byte) (models.WorkloadConfig, error) {
	if err := ctx.Err(); err != nil {
		return models.WorkloadConfig{}, err
	}
	if fm, ok := frontmatter(doc); ok {
		doc = fm
	}

	var fields map[string]any
	if err := yaml.Unmarshal(doc, &fields); err != nil {
		return models.WorkloadConfig{}, &ParseError{Cause: err}
	}
	found := false
	for k := range fields {
		if knownFields[k] {
			found = true
			break
		}
	}
	if !found {
		return models.WorkloadConfig{}, &ParseError{Cause: errNoFields}
	}

	var cfg models.WorkloadConfig
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return models.WorkloadConfig{}, &ParseError{Cause: err}
	}
	return cfg, nil
}

// frontmatter returns the YAML block of a document that starts with a ---
// delimiter line.
func frontmatter(doc []byte) ([]byte, bool) {
	const delim = "---\n"
	if !bytes.HasPrefix(doc, []byte(delim)) {
		return nil, false
	}
	rest := doc[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, false
	}
	return rest[:idx], true
}

// truncate cuts doc to at most n bytes without splitting a UTF-8 sequence.
func truncate(doc []byte, n int) []byte {
	if len(doc) <= n {
		return doc
	}
	for n > 0 && !utf8.RuneStart(doc[n]) {
		n--
	}
	return doc[:n]
}

// FallbackBaseline is the clearly labeled high-carbon profile used when a
// document cannot be parsed.
func FallbackBaseline() models.WorkloadConfig {
	return models.WorkloadConfig{
		HardwareModel:        "NVIDIA A100",
		GPUCount:             16,
		TrainingHours:        1200,
		TrainingRegion:       "USA (Virginia/Coal)",
		InferenceRegion:      "China (Coal)",
		MonthlyRequests:      650000,
		AvgLatencySeconds:    3.2,
		ProjectLifetimeYears: 3,
		AuditNotes:           []string{"Unable to parse file specifics", "Defaulting to high-risk profile"},
		Recommendations:      []string{"Check file format", "Manually adjust parameters"},
	}
}

// Result is the outcome of an import.
type Result struct {
	Config   models.WorkloadConfig
	Fallback bool  // Config is FallbackBaseline
	Cause    error // why the fallback was used
}

type Importer struct {
	extractor Extractor
	tags      *ecotags.TagManager
	logger    *slog.Logger
}

func New(extractor Extractor, tags *ecotags.TagManager, logger *slog.Logger) *Importer {
	if extractor == nil {
		extractor = StructuredExtractor{}
	}
	if tags == nil {
		tags = ecotags.NewTagManager()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{extractor: extractor, tags: tags, logger: logger}
}

// Import never fails: an extraction error yields the fallback baseline.
// A candidate without notes or recommendations is annotated from its eco tags.
func (im *Importer) Import(ctx context.Context, doc []byte) Result {
	cfg, err := im.extractor.Extract(ctx, truncate(doc, MaxDocumentBytes))
	if err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) {
			err = &ParseError{Cause: err}
		}
		im.logger.Warn("document import failed, using fallback baseline", "error", err)
		return Result{Config: FallbackBaseline(), Fallback: true, Cause: err}
	}
	return Result{Config: im.tags.Annotate(cfg)}
}
