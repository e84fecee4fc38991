package repository

import (
	"context"
	"errors"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
)

// MultiSink fans a result out to every sink and joins their errors.
type MultiSink []drepo.ResultSink

func (m MultiSink) Export(ctx context.Context, r *models.StrategyResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Export(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
