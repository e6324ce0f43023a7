package cachepool

import (
	"context"
	"errors"
	"fmt"
)

// WithDeferred runs fn and then commits pool's deferred queue, on every exit
// path: normal return, error return and panic. A failed commit is joined into
// the returned error; a panic from fn is re-raised after the commit.
//
//	err := cachepool.WithDeferred(ctx, pool, func(ctx context.Context) error {
//		for _, u := range users {
//			it, _ := pool.NewItem(u.ID)
//			if _, err := pool.SaveDeferred(ctx, it.Set(u)); err != nil {
//				return err
//			}
//		}
//		return nil
//	})
func WithDeferred[V any](ctx context.Context, pool ItemPool[V], fn func(context.Context) error) (err error) {
	defer func() {
		cerr := commitErr(ctx, pool)
		if r := recover(); r != nil {
			panic(r)
		}
		err = errors.Join(err, cerr)
	}()
	return fn(ctx)
}

type errCommitter interface {
	commit(ctx context.Context) error
}

func commitErr[V any](ctx context.Context, pool ItemPool[V]) error {
	if c, ok := pool.(errCommitter); ok {
		return c.commit(ctx)
	}
	if !pool.Commit(ctx) {
		return &CommitError{Errs: []error{fmt.Errorf("%T: commit reported failure", pool)}}
	}
	return nil
}
