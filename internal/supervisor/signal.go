package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// RelaySignals registers for termination signals (SIGINT and SIGTERM by
// default) and invokes RequestShutdown exactly once on the first one;
// signals arriving while already stopping are ignored. The returned cancel
// function unregisters the handler.
func (s *Supervisor) RelaySignals(timeout time.Duration, sigs ...os.Signal) (cancel func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				once.Do(func() {
					s.log.Info("termination signal received", "signal", sig.String())
					go func() {
						if err := s.RequestShutdown(timeout); err != nil {
							s.log.Error("shutdown failed", "error", err)
						}
					}()
				})
			}
		}
	}()

	var cancelOnce sync.Once
	return func() {
		cancelOnce.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
