package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper removes expired entries and reports how many were dropped.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// CleanupJob periodically sweeps expired pending authorization states. The
// redis-backed state store expires entries natively and does not need one.
type CleanupJob struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(sweeper Sweeper, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.sweeper.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired auth states")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up expired auth states")
	}
}
