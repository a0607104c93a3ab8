package certificates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Regenerator is the part of the Service the worker drives.
type Regenerator interface {
	RegenerateAssets(ctx context.Context, certificateID uuid.UUID) (*CertificateView, error)
	HealAssets(ctx context.Context, certificateID uuid.UUID) (bool, error)
}

// WorkerConfig defines regeneration worker configuration.
type WorkerConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Worker drains the regeneration queue on a ticker.
type Worker struct {
	queue       *RedisQueue
	regen       Regenerator
	config      WorkerConfig
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewWorker(queue *RedisQueue, regen Regenerator, config WorkerConfig) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	return &Worker{
		queue:       queue,
		regen:       regen,
		config:      config,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

func (w *Worker) Start() {
	if !w.config.Enabled {
		log.Info().Msg("regeneration worker disabled")
		close(w.stoppedChan)
		return
	}
	log.Info().Dur("interval", w.config.Interval).Int("batch", w.config.BatchSize).Msg("regeneration worker starting")
	go w.run()
}

func (w *Worker) Stop() {
	if !w.config.Enabled {
		return
	}
	close(w.stopChan)
	<-w.stoppedChan
	log.Info().Msg("regeneration worker stopped")
}

func (w *Worker) run() {
	defer close(w.stoppedChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			w.Tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

// Tick processes one batch and returns how many jobs were taken off the queue.
func (w *Worker) Tick(ctx context.Context) int {
	jobs, err := w.queue.Dequeue(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("regeneration worker: dequeue failed")
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			// Put unprocessed work back for the next run.
			_ = w.queue.Enqueue(context.WithoutCancel(ctx), job)
			continue
		}
		w.process(ctx, job)
	}
	return len(jobs)
}

func (w *Worker) process(ctx context.Context, job RegenerationJob) {
	logger := log.With().Str("certificate_id", job.CertificateID.String()).Bool("force", job.Force).Int("attempts", job.Attempts).Logger()

	var err error
	if job.Force {
		_, err = w.regen.RegenerateAssets(ctx, job.CertificateID)
	} else {
		var rendered bool
		rendered, err = w.regen.HealAssets(ctx, job.CertificateID)
		if err == nil && !rendered {
			logger.Debug().Msg("certificate assets already usable")
			return
		}
	}
	if err == nil {
		logger.Info().Msg("certificate regeneration job done")
		return
	}
	if errors.Is(err, ErrNotFound) {
		logger.Warn().Msg("certificate gone, dropping regeneration job")
		return
	}

	job.Attempts++
	if job.Attempts >= w.config.MaxAttempts {
		logger.Error().Err(err).Msg("certificate regeneration failed permanently")
		return
	}
	logger.Warn().Err(err).Msg("certificate regeneration failed, requeueing")
	if qerr := w.queue.Enqueue(context.WithoutCancel(ctx), job); qerr != nil {
		logger.Error().Err(qerr).Msg("could not requeue regeneration job")
	}
}
