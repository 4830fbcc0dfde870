package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ExitForced is the process exit code used when a second interrupt arrives
const ExitForced = 6

// ShutdownState describes where the coordinator is in its lifecycle
type ShutdownState int32

const (
	// StateArmed waits for the first interrupt
	StateArmed ShutdownState = iota
	// StateNotified has a pending clean shutdown request
	StateNotified
	// StateClosed has consumed the request or was torn down
	StateClosed
)

func (s ShutdownState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateNotified:
		return "notified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Shutdown turns interrupts into one clean shutdown request, and any further
// interrupt into an immediate forced exit
type Shutdown struct {
	state     atomic.Int32
	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	signals   chan os.Signal
	logger    *slog.Logger
	exit      func(int)
}

// NewShutdown builds an armed coordinator. exit is called with ExitForced on a second interrupt.
func NewShutdown(logger *slog.Logger, exit func(int)) *Shutdown {
	if exit == nil {
		exit = os.Exit
	}
	return &Shutdown{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
		exit:   exit,
	}
}

// Arm installs SIGINT and SIGTERM delivery
func (s *Shutdown) Arm() {
	s.signals = make(chan os.Signal, 1)
	signal.Notify(s.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range s.signals {
			s.Interrupt()
		}
	}()
}

// State returns the current state
func (s *Shutdown) State() ShutdownState {
	return ShutdownState(s.state.Load())
}

// Interrupt records one exit request
func (s *Shutdown) Interrupt() {
	if s.state.CompareAndSwap(int32(StateArmed), int32(StateNotified)) {
		s.notify <- struct{}{}
		s.logger.Info("started clean shutdown")
		return
	}
	s.logger.Warn("second exit request; dying")
	s.exit(ExitForced)
}

// Wait blocks for up to timeout. It returns true when a shutdown was requested
// or the coordinator was closed.
func (s *Shutdown) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.notify:
		s.state.Store(int32(StateClosed))
		return true
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

// Close tears the coordinator down. Interrupts after Close force an exit.
func (s *Shutdown) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}
