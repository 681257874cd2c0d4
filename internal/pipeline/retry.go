package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/refset/prevd-classifier/internal/classifier"
)

// retryable is implemented by transport errors that may succeed on a later attempt.
type retryable interface {
	Retryable() bool
}

func isRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r) && r.Retryable()
}

// classify runs the engine, retrying the whole row on transient transport
// failures when row retries are configured.
func (p *Pipeline) classify(ctx context.Context, in classifier.Input, n int) (*classifier.Result, error) {
	if p.opts.RowRetries == 0 {
		return p.engine.Classify(ctx, in, n)
	}

	backoff := p.opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	b := retry.WithMaxRetries(p.opts.RowRetries, retry.NewFibonacci(backoff))

	var res *classifier.Result
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := p.engine.Classify(ctx, in, n)
		if err != nil {
			if isRetryable(err) {
				p.log.Warn("retrying row", zap.Int("row", in.RowIndex), zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
