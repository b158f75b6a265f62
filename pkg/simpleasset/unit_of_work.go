package simpleasset

import (
	"context"
	"errors"
	"fmt"
)

// WithUnitOfWork opens a unit of work, runs fn inside it and then commits
// exactly once on success or rolls back exactly once on error or panic.
func WithUnitOfWork(ctx context.Context, factory UnitOfWorkFactory, fn func(uow UnitOfWork) error) (err error) {
	uow, err := factory.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(uow); err != nil {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back unit of work: %w", rbErr))
		}
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unit of work: %w", err)
	}
	return nil
}
