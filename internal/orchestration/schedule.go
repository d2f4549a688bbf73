package orchestration

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Schedule runs fn on the cron spec until ctx is done. A run still in
// progress when the next tick fires causes that tick to be skipped.
// Schedule blocks and returns nil once running jobs have finished.
func Schedule(ctx context.Context, spec string, fn func(context.Context)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		log.Printf("sync cron: tick %q", spec)
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	log.Printf("sync cron: scheduled %q", spec)
	<-ctx.Done()
	<-c.Stop().Done()
	log.Printf("sync cron: stopped")
	return nil
}
