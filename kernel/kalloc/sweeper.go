package kalloc

import (
	"github.com/robfig/cron/v3"

	"github.com/compozy/kernelguard/pkg/logger"
)

// Sweeper periodically touches every live allocation's first byte so the
// OS is less likely to page secure memory out under pressure (spec.md
// §4.10 "a background sweeper can touch pages to keep them resident").
type Sweeper struct {
	alloc *Allocator
	log   logger.Logger
	cron  *cron.Cron
}

// NewSweeper schedules a touch pass on the given cron spec (standard
// five-field syntax or a descriptor such as "@every 30s"; robfig/cron runs
// @every intervals shorter than one second once a second).
func NewSweeper(alloc *Allocator, log logger.Logger, spec string) (*Sweeper, error) {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	s := &Sweeper{alloc: alloc, log: log, cron: cron.New()}
	if _, err := s.cron.AddFunc(spec, s.touch); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the background schedule; call Stop to tear it down.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop cancels the schedule and waits for any in-flight touch to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

func (s *Sweeper) touch() {
	live := s.alloc.Live()
	for _, payload := range live {
		if len(payload) > 0 {
			_ = payload[0]
		}
	}
	s.log.Debug("secure memory sweep complete", "blocks", len(live))
}
