package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mentions.scheduler")

type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

type pending struct {
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// Scheduler runs debounced tasks per key and periodic background tasks.
//
// Every Debounce call under a key gets the next sequence number for that key
// and cancels whatever was pending or running under it: a superseded task
// never starts, or sees its context cancelled if it already did.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]*pending
	seq      map[string]uint64
	stopChan chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewScheduler creates a new Scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		pending:  make(map[string]*pending),
		seq:      make(map[string]uint64),
		stopChan: make(chan struct{}),
	}
}

// Debounce runs task after delay unless another Debounce under the same key
// supersedes it first. It returns the sequence number of this request.
func (s *Scheduler) Debounce(key string, delay time.Duration, task Task) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(key)
	s.seq[key]++
	seq := s.seq[key]
	if s.stopped {
		return seq
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pending{seq: seq, cancel: cancel}
	s.wg.Add(1)
	p.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		defer cancel()
		if ctx.Err() != nil {
			return
		}
		err := task.Execute(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warningf("%s (seq %d) failed: %v", task.Name, seq, err)
		}

		s.mu.Lock()
		if cur, ok := s.pending[key]; ok && cur == p {
			delete(s.pending, key)
		}
		s.mu.Unlock()
	})
	s.pending[key] = p
	return seq
}

// Stopped reports whether Stop was called. Debounce still hands out
// sequence numbers afterwards but never runs the task.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Latest returns the sequence number of the most recent request under key.
func (s *Scheduler) Latest(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[key]
}

// IsLatest reports whether seq is still the most recent request under key.
func (s *Scheduler) IsLatest(key string, seq uint64) bool {
	return s.Latest(key) == seq
}

// Cancel abandons the task pending or running under key. The sequence is
// advanced so late results of the cancelled task are recognizably stale.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		s.cancelLocked(key)
		s.seq[key]++
	}
}

func (s *Scheduler) cancelLocked(key string) {
	p, ok := s.pending[key]
	if !ok {
		return
	}
	delete(s.pending, key)
	p.cancel()
	if p.timer.Stop() {
		// never fired, so its deferred Done will not run
		s.wg.Done()
	}
}

// SchedulePeriodicTask runs task every interval until the scheduler stops.
func (s *Scheduler) SchedulePeriodicTask(interval time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		defer cancel()
		for {
			select {
			case <-ticker.C:
				if err := task.Execute(ctx); err != nil {
					log.Errorf("periodic task %s failed: %v", task.Name, err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
	log.Infof("Scheduled %s every %s.", task.Name, interval)
}

// Stop cancels pending tasks, stops periodic ones and waits for running
// tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	for key := range s.pending {
		s.cancelLocked(key)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("Scheduler stopped.")
}
