package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/oakfield-research/qex-cli/internal/config"
	"github.com/oakfield-research/qex-cli/internal/model"
	"github.com/oakfield-research/qex-cli/internal/raster"
	"github.com/oakfield-research/qex-cli/internal/resilience"
	"github.com/oakfield-research/qex-cli/internal/store"
	"github.com/oakfield-research/qex-cli/internal/tei"
	"github.com/oakfield-research/qex-cli/pkg/anthropic"
)

// Options tunes a pipeline invocation.
type Options struct {
	// Stages restricts which stages may call the model. Nil runs everything.
	// A restricted stage whose result is already persisted is loaded instead.
	Stages map[string]bool

	// NoResume forces every stage to recompute, ignoring persisted results.
	NoResume bool

	// Guidance carries extra reviewer instructions for the extraction prompts.
	Guidance []string
}

func (o Options) stageEnabled(stage string) bool {
	return o.Stages == nil || o.Stages[stage]
}

// Pipeline wires the extraction stages together with shared infrastructure.
// The Anthropic client and rate limiter are shared across documents; each
// document gets its own LLMRunner so cost accrues per run.
type Pipeline struct {
	cfg        *config.Config
	st         store.Store
	client     anthropic.Client
	limiter    *rate.Limiter
	rasterizer *raster.Rasterizer
	rules      *Ruleset
}

// New builds a Pipeline.
func New(cfg *config.Config, st store.Store, client anthropic.Client) (*Pipeline, error) {
	rules, err := LoadRuleset(cfg.Classify.RulesetPath)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		st:         st,
		client:     client,
		limiter:    NewRateLimiter(cfg.Anthropic.CallsPerMinute),
		rasterizer: raster.New(cfg.Vision.PdftoppmPath, cfg.Vision.DPI),
		rules:      rules,
	}, nil
}

// ProcessBatch runs the pipeline over many documents with bounded
// concurrency. One document failing is logged and recorded on its run; the
// rest keep going.
func (p *Pipeline) ProcessBatch(ctx context.Context, keys []string, opts Options) error {
	limit := p.cfg.Batch.MaxConcurrentDocuments
	if limit <= 0 {
		limit = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, key := range keys {
		g.Go(func() error {
			if err := p.ProcessDocument(ctx, key, opts); err != nil {
				zap.L().Error("document failed",
					zap.String("key", key),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessDocument runs the full stage sequence for one document key. Stage
// outputs persist as they complete, so a rerun picks up where the last
// attempt stopped unless NoResume is set.
func (p *Pipeline) ProcessDocument(ctx context.Context, key string, opts Options) error {
	run, err := p.st.CreateRun(ctx, key)
	if err != nil {
		return err
	}
	if err := p.st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return err
	}

	start := time.Now()
	summary, err := p.process(ctx, key, opts)
	if summary == nil {
		summary = &model.RunSummary{}
	}
	summary.DurationSecs = time.Since(start).Seconds()

	status := model.RunStatusComplete
	if err != nil {
		status = model.RunStatusFailed
		summary.Error = err.Error()
	}
	if serr := p.st.UpdateRunSummary(ctx, run.ID, summary); serr != nil {
		zap.L().Error("persist run summary", zap.String("run_id", run.ID), zap.Error(serr))
	}
	if serr := p.st.UpdateRunStatus(ctx, run.ID, status); serr != nil {
		zap.L().Error("persist run status", zap.String("run_id", run.ID), zap.Error(serr))
	}

	zap.L().Info("run finished",
		zap.String("key", key),
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Float64("estimated_cost_usd", summary.EstimatedCostUSD),
		zap.Float64("duration_secs", summary.DurationSecs),
	)
	return err
}

func (p *Pipeline) process(ctx context.Context, key string, opts Options) (*model.RunSummary, error) {
	summary := &model.RunSummary{}

	if opts.NoResume {
		if err := p.st.DeleteStageResults(ctx, key); err != nil {
			return summary, err
		}
	}

	teiPath := filepath.Join(p.cfg.Paths.TEIDir, key+".tei.xml")
	f, err := os.Open(teiPath)
	if err != nil {
		return summary, eris.Wrapf(err, "pipeline: open %s", teiPath)
	}
	doc, err := tei.ParseFile(f, key)
	f.Close()
	if err != nil {
		return summary, err
	}

	llm := NewLLMRunner(p.client, p.limiter, resilience.APIRetryConfig(
		p.cfg.Anthropic.MaxRetries, p.cfg.Anthropic.RetryInitialBackoff()),
		p.cfg.Anthropic.Temperature, p.cfg.Anthropic.TopP)
	defer func() { summary.EstimatedCostUSD = llm.EstimatedCost() }()

	ac := p.cfg.Anthropic

	// Discover
	discovery := &model.DiscoveryResult{}
	skipped, err := runStage(ctx, p, key, model.StageDiscover, opts, discovery, func(ctx context.Context) error {
		d := NewDiscoverer(llm, p.cfg.Discovery, ac.Model, ac.MaxTokens)
		out, err := d.Discover(ctx, doc)
		if err != nil {
			return err
		}
		*discovery = *out
		return nil
	})
	if err != nil {
		return summary, err
	}
	noteSkip(summary, model.StageDiscover, skipped)
	summary.TablesDiscovered = len(discovery.Tables)
	summary.Warnings = append(summary.Warnings, discovery.Warnings...)

	// Classify
	classified := &model.ClassifyResult{}
	skipped, err = runStage(ctx, p, key, model.StageClassify, opts, classified, func(ctx context.Context) error {
		c, err := NewClassifier(p.cfg.Classify.Strategy, p.rules, p.cfg.Classify.ResultsThreshold, llm, ac.Model, ac.MaxTokens)
		if err != nil {
			return err
		}
		out, err := c.Classify(ctx, doc, discovery.Tables)
		if err != nil {
			return err
		}
		*classified = *out
		return nil
	})
	if err != nil {
		return summary, err
	}
	noteSkip(summary, model.StageClassify, skipped)
	results := classified.ResultsTables()
	summary.ResultsTables = len(results)
	summary.Warnings = append(summary.Warnings, classified.Warnings...)

	// Extract
	extraction := &model.ExtractionResult{}
	skipped, err = runStage(ctx, p, key, model.StageExtract, opts, extraction, func(ctx context.Context) error {
		e := NewExtractor(llm, p.cfg.Extract, ac.Model, ac.MaxTokens)
		out, err := e.Extract(ctx, doc, results, opts.Guidance)
		if err != nil {
			return err
		}
		*extraction = *out
		return nil
	})
	if err != nil {
		return summary, err
	}
	noteSkip(summary, model.StageExtract, skipped)
	summary.Warnings = append(summary.Warnings, extraction.Warnings...)

	// Vision fallback
	vision := &model.ExtractionResult{}
	skipped, err = runStage(ctx, p, key, model.StageVision, opts, vision, func(ctx context.Context) error {
		missing, warnings := MissingTables(classified, extraction, p.cfg.Vision.Trigger)
		out := &model.ExtractionResult{Warnings: warnings}
		if len(missing) > 0 {
			ve := NewVisionExtractor(llm, p.rasterizer, p.cfg.Vision, ac.VisionModel, ac.MaxTokens)
			vr, err := ve.Extract(ctx, key, filepath.Join(p.cfg.Paths.PDFDir, key+".pdf"), missing)
			if err != nil {
				return err
			}
			vr.Warnings = append(warnings, vr.Warnings...)
			out = vr
		}
		*vision = *out
		return nil
	})
	if err != nil {
		return summary, err
	}
	noteSkip(summary, model.StageVision, skipped)
	summary.VisionOutcomes = len(vision.Outcomes)
	summary.Warnings = append(summary.Warnings, vision.Warnings...)

	outcomes := append(append([]model.OutcomeRecord{}, extraction.Outcomes...), vision.Outcomes...)
	summary.OutcomesExtracted = len(outcomes)

	// Aggregate
	agg := &model.AggregateResult{}
	skipped, err = runStage(ctx, p, key, model.StageAggregate, opts, agg, func(context.Context) error {
		*agg = *Aggregate(outcomes)
		return nil
	})
	if err != nil {
		return summary, err
	}
	noteSkip(summary, model.StageAggregate, skipped)
	summary.OutcomeGroups = len(agg.Groups)

	// Postprocess
	post := &model.PostprocessResult{}
	skipped, err = runStage(ctx, p, key, model.StagePostprocess, opts, post, func(context.Context) error {
		*post = *Postprocess(key, agg)
		return nil
	})
	if err != nil {
		return summary, err
	}
	noteSkip(summary, model.StagePostprocess, skipped)
	summary.FlatRecords = len(post.Records)
	if post.Report != nil {
		summary.Warnings = append(summary.Warnings, post.Report.QualityWarnings...)
	}

	if err := WriteOutputs(p.cfg.Paths.OutputDir, key, post); err != nil {
		return summary, err
	}

	return summary, nil
}

// runStage loads a persisted stage result when resuming, otherwise computes
// and persists it. out must be a pointer; compute fills it in place. Returns
// whether the stage was skipped via resume.
func runStage(ctx context.Context, p *Pipeline, key, stage string, opts Options, out any, compute func(context.Context) error) (bool, error) {
	if !opts.NoResume {
		payload, err := p.st.GetStageResult(ctx, key, stage)
		if err != nil {
			return false, err
		}
		if payload != nil {
			if err := json.Unmarshal(payload, out); err != nil {
				return false, eris.Wrapf(err, "pipeline: decode persisted %s result for %s", stage, key)
			}
			zap.L().Info("stage resumed from store",
				zap.String("key", key),
				zap.String("stage", stage),
			)
			return true, nil
		}
	}

	if !opts.stageEnabled(stage) {
		return false, eris.Errorf("pipeline: stage %s excluded but no stored result for %s", stage, key)
	}

	start := time.Now()
	if err := compute(ctx); err != nil {
		zap.L().Error("stage failed",
			zap.String("key", key),
			zap.String("stage", stage),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return false, eris.Wrapf(err, "pipeline: stage %s for %s", stage, key)
	}
	zap.L().Info("stage complete",
		zap.String("key", key),
		zap.String("stage", stage),
		zap.Duration("elapsed", time.Since(start)),
	)

	payload, err := json.Marshal(out)
	if err != nil {
		return false, eris.Wrapf(err, "pipeline: encode %s result for %s", stage, key)
	}
	if err := p.st.SaveStageResult(ctx, key, stage, payload); err != nil {
		return false, err
	}

	// Stage results also land in the output directory for inspection without
	// a database client.
	docDir := filepath.Join(p.cfg.Paths.OutputDir, key)
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return false, eris.Wrapf(err, "pipeline: create output dir %s", docDir)
	}
	if err := os.WriteFile(filepath.Join(docDir, stage+".json"), payload, 0o644); err != nil {
		return false, eris.Wrapf(err, "pipeline: write %s.json for %s", stage, key)
	}
	return false, nil
}

func noteSkip(summary *model.RunSummary, stage string, skipped bool) {
	if skipped {
		summary.StagesSkipped = append(summary.StagesSkipped, stage)
	}
}

// ValidateStages checks a user-supplied stage list against the known stages
// and returns it as a set.
func ValidateStages(stages []string) (map[string]bool, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	known := map[string]bool{}
	for _, s := range model.AllStages {
		known[s] = true
	}
	set := map[string]bool{}
	for _, s := range stages {
		if !known[s] {
			return nil, eris.Errorf("pipeline: unknown stage %q (valid: %v)", s, model.AllStages)
		}
		set[s] = true
	}
	return set, nil
}
