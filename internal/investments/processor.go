package investments

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor periodically settles matured investments
type Processor struct {
	service       *Service
	checkInterval time.Duration
}

func NewProcessor(service *Service) *Processor {
	return &Processor{
		service:       service,
		checkInterval: 15 * time.Minute,
	}
}

// Start begins the maturity processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "investment_processor").Logger()
	logger.Info().Msg("starting investment maturity processor")

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down investment maturity processor")
			return
		case <-ticker.C:
			completed, err := p.service.CompleteMatured(time.Now())
			if err != nil {
				logger.Error().Err(err).Msg("failed to process matured investments")
				continue
			}
			if completed > 0 {
				logger.Info().Int("completed", completed).Msg("settled matured investments")
			}
		}
	}
}
