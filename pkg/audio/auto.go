package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
)

type pingCloser interface {
	io.Closer
	Ping(context.Context) error
}

// lastSuccessful remembers which backend factory worked the last
// time, so that it is tried first next time.
type lastSuccessful[F comparable] struct {
	locker  sync.Mutex
	factory F
}

func (l *lastSuccessful[F]) get() F {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.factory
}

func (l *lastSuccessful[F]) set(factory F) {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.factory = factory
}

func tryFactory[T pingCloser, F any](
	ctx context.Context,
	factory F,
	newFn func(F) (T, error),
) (T, error) {
	var zero T
	backend, err := newFn(factory)
	logger.Debugf(ctx, "initializing %T result is %v", factory, err)
	if err != nil {
		return zero, fmt.Errorf("unable to initialize %T: %w", factory, err)
	}

	err = backend.Ping(ctx)
	logger.Debugf(ctx, "pinging %T result is %v", backend, err)
	if err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Debugf(ctx, "unable to close %T: %v", backend, closeErr)
		}
		return zero, fmt.Errorf("unable to ping %T: %w", backend, err)
	}

	return backend, nil
}

func initFirstWorking[T pingCloser, F comparable](
	ctx context.Context,
	last *lastSuccessful[F],
	factories []F,
	newFn func(F) (T, error),
) (T, error) {
	var zeroFactory F
	if factory := last.get(); factory != zeroFactory {
		backend, err := tryFactory(ctx, factory, newFn)
		if err == nil {
			return backend, nil
		}
	}

	var mErr *multierror.Error
	for _, factory := range factories {
		backend, err := tryFactory(ctx, factory, newFn)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}
		last.set(factory)
		return backend, nil
	}

	var zero T
	if mErr == nil {
		return zero, fmt.Errorf("no backends are registered")
	}
	return zero, mErr.ErrorOrNil()
}
