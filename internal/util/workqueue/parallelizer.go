package workqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

type DoWorkPieceFunc func(piece int)

type DoWorkPieceErrFunc func(ctx context.Context, piece int) error

// ParallelizeUntil is a framework that allows for parallelizing N
// independent pieces of work until done or the context is canceled.
func ParallelizeUntil(ctx context.Context, workers, pieces int, doWorkPiece DoWorkPieceFunc) {
	var stop <-chan struct{}
	if ctx != nil {
		stop = ctx.Done()
	}

	toProcess := make(chan int, pieces)
	for i := 0; i < pieces; i++ {
		toProcess <- i
	}
	close(toProcess)

	if pieces < workers {
		workers = pieces
	}

	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer func() {
				wg.Done()
				if r := recover(); r != nil {
					zap.L().Error("work has panic", zap.Any("panic", r))
					debug.PrintStack()
				}
			}()
			for piece := range toProcess {
				select {
				case <-stop:
					return
				default:
					doWorkPiece(piece)
				}
			}
		}()
	}
	wg.Wait()
}

// ParallelizeErr 所有 piece 并发执行，返回按 piece 下标排列的错误
// 任一 piece 出错会取消其余 piece 的 ctx；未执行的 piece 记为 ctx 错误
func ParallelizeErr(ctx context.Context, pieces int, doWorkPiece DoWorkPieceErrFunc) []error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, pieces)
	done := make([]bool, pieces)
	ParallelizeUntil(ctx, pieces, pieces, func(piece int) {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("work piece has panic", zap.Int("piece", piece), zap.Any("panic", r))
				errs[piece] = fmt.Errorf("piece %d panic: %v", piece, r)
				cancel()
			}
		}()
		err := doWorkPiece(ctx, piece)
		done[piece] = true
		if err != nil {
			errs[piece] = err
			cancel()
		}
	})
	for i := range errs {
		if errs[i] == nil && !done[i] {
			errs[i] = ctx.Err()
		}
	}
	return errs
}

// FirstError 返回第一个非 ctx 取消导致的错误
func FirstError(errs []error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if err == context.Canceled {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}
