// Package classifier turns one survey row into a Pre-VD segment using
// self-consistency sampling of a generative model followed by fixed
// business rules.
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSampleCount is used when the caller passes a non-positive count.
	DefaultSampleCount = 3
	// MaxSampleCount is the upper bound boundary layers clamp to.
	MaxSampleCount = 7

	temperatureStep = 0.02
)

// Model produces one raw JSON answer for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
	Name() string
}

// Options tune the orchestrator.
type Options struct {
	// Sequential runs sampling rounds one after another instead of concurrently.
	Sequential bool
	Logger     *zap.Logger
}

// Classifier runs the self-consistency loop. It holds no per-call state and
// is safe for concurrent use.
type Classifier struct {
	model      Model
	sequential bool
	log        *zap.Logger
}

// New creates a new classifier backed by model
func New(model Model, opts Options) *Classifier {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		model:      model,
		sequential: opts.Sequential,
		log:        log.Named("classifier"),
	}
}

// ModelName is the configured model identifier.
func (c *Classifier) ModelName() string { return c.model.Name() }

// PromptVersion is the rubric version stamped on every run.
func (c *Classifier) PromptVersion() string { return PromptVersion }

// SystemRubric is the fixed rubric text.
func (c *Classifier) SystemRubric() string { return systemRubric }

// BaseTemperature is the first-round temperature for a run of n samples.
func BaseTemperature(n int) float64 {
	if n > 1 {
		return 0.35
	}
	return 0.1
}

// RoundTemperature is the temperature of round i (zero based).
func RoundTemperature(n, i int) float64 {
	return BaseTemperature(n) + float64(i)*temperatureStep
}

// Classify samples the model sampleCount times and reconciles the votes.
// Any failed round fails the whole call.
func (c *Classifier) Classify(ctx context.Context, in Input, sampleCount int) (*Result, error) {
	if sampleCount <= 0 {
		sampleCount = DefaultSampleCount
	}
	start := time.Now()

	votes, err := c.sample(ctx, in, sampleCount)
	if err != nil {
		c.log.Warn("classification failed",
			zap.Int("row", in.RowIndex),
			zap.Int("samples", sampleCount),
			zap.Error(err))
		return nil, err
	}

	majority, confidence := SelectByMajority(votes)
	rep, ok := Representative(votes, majority)

	normalized := in.Normalized
	understood := Unknown
	rationale := "No rationale."
	var signals, usedColumns []string
	var coreReason string
	if ok {
		normalized = rep.NormalizedData
		understood = rep.CoreValueUnderstood
		rationale = rep.Rationale
		signals = rep.WarningSignals
		usedColumns = rep.UsedColumns
		coreReason = rep.CoreValueReason
	}
	if usedColumns == nil {
		usedColumns = []string{}
	}

	final := ApplyCoreValueRule(majority, normalized, understood)
	modelAbuser, abuserReason := DetectAbuserByModel(votes)
	abuser := DetectAbuser(normalized) || modelAbuser
	discovery := DetectDiscoveryType(normalized, signals)

	res := &Result{
		FinalLabel:          final,
		Confidence:          round(confidence, 4),
		Rationale:           rationale,
		WarningSignals:      warningSignals(signals, abuserReason, abuser, discovery),
		IsAbuser:            abuser,
		IsDiscoveryType:     discovery,
		NormalizedData:      normalized,
		UsedColumns:         usedColumns,
		CoreValueUnderstood: understood,
		CoreValueReason:     coreReason,
		Votes:               votes,
		Latency:             time.Since(start),
	}

	c.log.Debug("row classified",
		zap.Int("row", in.RowIndex),
		zap.String("majority", majority.String()),
		zap.String("final", final.String()),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("latency", res.Latency))
	return res, nil
}

func (c *Classifier) sample(ctx context.Context, in Input, n int) ([]Vote, error) {
	prompt := BuildPrompt(in)
	headers := in.headers()
	votes := make([]Vote, n)

	if c.sequential {
		for i := range n {
			v, err := c.round(ctx, prompt, headers, n, i)
			if err != nil {
				return nil, err
			}
			votes[i] = v
		}
		return votes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			v, err := c.round(gctx, prompt, headers, n, i)
			if err != nil {
				return err
			}
			votes[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return votes, nil
}

func (c *Classifier) round(ctx context.Context, prompt string, headers []string, n, i int) (Vote, error) {
	raw, err := c.model.Generate(ctx, prompt, RoundTemperature(n, i))
	if err != nil {
		return Vote{}, fmt.Errorf("sample %d/%d: %w", i+1, n, err)
	}
	v, err := ParseVote(raw, headers)
	if err != nil {
		return Vote{}, fmt.Errorf("sample %d/%d: %w", i+1, n, err)
	}
	return v, nil
}
