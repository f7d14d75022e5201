package worker

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// SpawnFunc starts the worker process for a slot. Injected so tests can
// supervise stand-in processes.
type SpawnFunc func(slot int) (*exec.Cmd, error)

// SlotStatus is the externally visible state of one supervised slot.
type SlotStatus struct {
	Slot     int  `json:"slot"`
	PID      int  `json:"pid"`
	Alive    bool `json:"alive"`
	Restarts int  `json:"restarts"`
}

type slot struct {
	cmd      *exec.Cmd
	exited   chan struct{}
	restarts int
}

// Supervisor keeps a fixed pool of worker processes alive. A process that
// exits for any reason is respawned into the same slot on the next liveness
// tick; crash loops are damped only by the tick interval.
type Supervisor struct {
	count    int
	spawn    SpawnFunc
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	slots []*slot
}

// NewSupervisor creates a Supervisor for count slots.
func NewSupervisor(count int, spawn SpawnFunc, interval time.Duration, logger *slog.Logger) *Supervisor {
	if count <= 0 {
		count = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Supervisor{
		count:    count,
		spawn:    spawn,
		interval: interval,
		logger:   logger.With("component", "supervisor"),
		slots:    make([]*slot, count),
	}
}

// Run spawns the pool and supervises it until ctx is done, then terminates
// every child.
func (s *Supervisor) Run(ctx context.Context) error {
	for i := 0; i < s.count; i++ {
		if err := s.spawnSlot(i); err != nil {
			s.logger.Error("failed to spawn worker", "slot", i, "error", err)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *Supervisor) spawnSlot(i int) error {
	cmd, err := s.spawn(i)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	sl := &slot{cmd: cmd, exited: make(chan struct{})}
	s.mu.Lock()
	if old := s.slots[i]; old != nil {
		sl.restarts = old.restarts
	}
	s.slots[i] = sl
	s.mu.Unlock()

	s.logger.Info("worker spawned", "slot", i, "pid", cmd.Process.Pid)
	go func() {
		cmd.Wait()
		close(sl.exited)
	}()
	return nil
}

// reap respawns every slot whose process has exited.
func (s *Supervisor) reap() {
	for i := 0; i < s.count; i++ {
		s.mu.Lock()
		sl := s.slots[i]
		s.mu.Unlock()

		if sl == nil {
			if err := s.spawnSlot(i); err != nil {
				s.logger.Error("failed to spawn worker", "slot", i, "error", err)
			}
			continue
		}

		select {
		case <-sl.exited:
		default:
			continue
		}

		s.logger.Warn("worker exited, respawning", "slot", i, "pid", sl.cmd.Process.Pid)
		sl.restarts++
		if err := s.spawnSlot(i); err != nil {
			s.logger.Error("failed to respawn worker", "slot", i, "error", err)
		}
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	slots := make([]*slot, len(s.slots))
	copy(slots, s.slots)
	s.mu.Unlock()

	for i, sl := range slots {
		if sl == nil {
			continue
		}
		select {
		case <-sl.exited:
			continue
		default:
		}
		s.logger.Info("stopping worker", "slot", i, "pid", sl.cmd.Process.Pid)
		sl.cmd.Process.Kill()
	}
	for _, sl := range slots {
		if sl != nil {
			<-sl.exited
		}
	}
}

// Status reports the current state of every slot.
func (s *Supervisor) Status() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SlotStatus, s.count)
	for i, sl := range s.slots {
		st := SlotStatus{Slot: i}
		if sl != nil {
			st.PID = sl.cmd.Process.Pid
			st.Restarts = sl.restarts
			select {
			case <-sl.exited:
			default:
				st.Alive = true
			}
		}
		out[i] = st
	}
	return out
}
