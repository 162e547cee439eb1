package worker

import (
	"context"
	"log"
	"time"

	"calldeck/config"
	"calldeck/engine"

	"github.com/robfig/cron/v3"
)

// SequenceWorker drives the follow-up engine on a schedule. Every minute it
// asks the engine to process all step executions that have come due.
type SequenceWorker struct {
	Engine *engine.Engine
	Logger *log.Logger
}

func NewSequenceWorker(eng *engine.Engine, logger *log.Logger) *SequenceWorker {
	return &SequenceWorker{
		Engine: eng,
		Logger: logger,
	}
}

func (sw *SequenceWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(5 * time.Second)

	sw.Logger.Println("Sequence worker started")

	c := cron.New()
	_, err := c.AddFunc("* * * * *", sw.tick)
	if err != nil {
		sw.Logger.Printf("Failed to schedule sequence worker: %v", err)
		return
	}
	c.Start()

	<-ctx.Done()
	sw.Logger.Println("Sequence worker shutting down...")
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func (sw *SequenceWorker) tick() {
	processed, err := sw.Engine.ProcessDue(time.Now(), config.AppConfig.WorkerBatchLimit)
	if err != nil {
		sw.Logger.Printf("Error processing due steps: %v", err)
		return
	}
	if processed > 0 {
		sw.Logger.Printf("Processed %d due step(s)", processed)
	}
}
