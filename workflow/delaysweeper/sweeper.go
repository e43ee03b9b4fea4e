package delaysweeper

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/robfig/cron/v3"
)

const (
	defaultSweepSpec = "* * * * *"
	defaultBatchSize = 10
)

// Sweeper re-drives executions whose DELAY deadline has elapsed. The engine
// never holds a timer: the deadline lives in the schedule and in state, and
// this worker issues the resuming Advance call with no user input.
type Sweeper struct {
	schedule  workflow.DelaySchedule
	engine    workflow.Engine
	cronSched cron.Schedule
	batchSize int64
	running   bool
	stopChan  chan struct{}
}

// NewSweeper builds a sweeper firing on the given cron spec
// (minute-resolution, five fields). An invalid spec falls back to every
// minute.
func NewSweeper(schedule workflow.DelaySchedule, engine workflow.Engine, sweepSpec string) *Sweeper {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	if sweepSpec == "" {
		sweepSpec = defaultSweepSpec
	}
	cronSched, err := parser.Parse(sweepSpec)
	if err != nil {
		log.Printf("⚠️  Invalid sweep spec %q, falling back to %q: %v", sweepSpec, defaultSweepSpec, err)
		cronSched, _ = parser.Parse(defaultSweepSpec)
	}

	return &Sweeper{
		schedule:  schedule,
		engine:    engine,
		cronSched: cronSched,
		batchSize: defaultBatchSize,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.running {
		log.Println("⚠️  Delay sweeper already running")
		return
	}

	s.running = true
	log.Println("🚀 Starting delay sweeper...")

	go s.sweepLoop(ctx)
}

// Stop stops the background sweep loop.
func (s *Sweeper) Stop() {
	if !s.running {
		return
	}

	log.Println("🛑 Stopping delay sweeper...")
	close(s.stopChan)
	s.running = false
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	for {
		next := s.cronSched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("⏹️  Delay sweeper stopped (context done)")
			return
		case <-s.stopChan:
			timer.Stop()
			log.Println("⏹️  Delay sweeper stopped")
			return
		case <-timer.C:
			if err := s.sweep(ctx); err != nil {
				log.Printf("❌ Error sweeping due resumes: %v", err)
			}
		}
	}
}

// sweep claims due entries and resumes each execution. Claiming happens in
// the schedule, so concurrent sweepers never resume the same execution twice.
func (s *Sweeper) sweep(ctx context.Context) error {
	due, err := s.schedule.Due(ctx, time.Now(), s.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	log.Printf("📋 Found %d due resumes to process", len(due))

	for _, resume := range due {
		go s.resumeExecution(context.Background(), resume)
	}

	return nil
}

func (s *Sweeper) resumeExecution(ctx context.Context, resume workflow.DelayedResume) {
	log.Printf("▶️  Resuming delayed execution: %s", resume.ExecutionID)

	_, err := s.engine.Advance(ctx, workflow.AdvanceRequest{
		ExecutionID: resume.ExecutionID,
		SessionID:   resume.SessionID,
	})
	if err != nil {
		// Terminal executions are expected here: a cancel can race the
		// sweeper. Anything else is worth a loud log line.
		if errx.IsType(err, errx.TypeBusiness) || errx.IsType(err, errx.TypeNotFound) {
			log.Printf("ℹ️  Skipping resume for %s: %v", resume.ExecutionID, err)
			return
		}
		log.Printf("❌ Failed to resume execution %s: %v", resume.ExecutionID, err)
		return
	}

	log.Printf("✅ Resumed delayed execution: %s", resume.ExecutionID)
}
