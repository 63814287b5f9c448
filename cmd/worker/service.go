package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	pinger
}

type ServiceParams struct {
	Logger    *logger.Logger
	DB        pinger
	Redis     pinger
	PubSub    pinger
	Consumers map[string]runner
	// Metrics, when set, is served until the consumers stop.
	Metrics *http.Server
}

// Service runs the domain event consumers side by side. The first consumer to
// fail cancels the others.
type Service struct {
	logg      *logger.Logger
	deps      []dependency
	consumers map[string]runner
	metrics   *http.Server
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Redis == nil:
		return nil, errors.New("redis client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case len(p.Consumers) == 0:
		return nil, errors.New("at least one consumer is required")
	}
	return &Service{
		logg:      p.Logger,
		deps:      []dependency{{"database", p.DB}, {"redis", p.Redis}, {"pubsub", p.PubSub}},
		consumers: p.Consumers,
		metrics:   p.Metrics,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		s.logg.Error(ctx, "worker not ready", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, consumer := range s.consumers {
		g.Go(func() error {
			err := consumer.Run(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				// A consumer that returns ends the whole group.
				return context.Canceled
			}
			s.logg.Error(s.logg.WithField(gctx, "consumer", name), "consumer stopped unexpectedly", err)
			return fmt.Errorf("%s: %w", name, err)
		})
	}
	if s.metrics != nil {
		g.Go(func() error {
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return s.metrics.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
