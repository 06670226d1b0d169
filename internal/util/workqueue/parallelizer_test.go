package workqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeUntil(t *testing.T) {
	var sum int64
	ParallelizeUntil(context.Background(), 4, 100, func(piece int) {
		atomic.AddInt64(&sum, int64(piece))
	})
	assert.EqualValues(t, 4950, sum)
}

func TestParallelizeErr(t *testing.T) {
	errs := ParallelizeErr(context.Background(), 3, func(ctx context.Context, piece int) error {
		return nil
	})
	assert.Equal(t, []error{nil, nil, nil}, errs)
	assert.NoError(t, FirstError(errs))

	boom := errors.New("boom")
	errs = ParallelizeErr(context.Background(), 3, func(ctx context.Context, piece int) error {
		if piece == 1 {
			return boom
		}
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, errs[1], boom)
	assert.ErrorIs(t, FirstError(errs), boom)
}

func TestParallelizeErrPanic(t *testing.T) {
	errs := ParallelizeErr(context.Background(), 2, func(ctx context.Context, piece int) error {
		if piece == 0 {
			panic("bad piece")
		}
		return nil
	})
	assert.ErrorContains(t, errs[0], "bad piece")
}
