// Package progress defines the progress-reporting and cooperative-cancellation
// protocol threaded through every long-running client operation.
//
// Cancellation is polled, not preemptive: the core checks IsCanceled before
// each network round-trip and aborts between requests, never mid-request.
package progress

import "sync/atomic"

// Monitor receives progress updates for one operation and carries its
// cancellation flag.
//
// Contract:
//   - Begin is called once, before any work, with the total number of units.
//   - Progressed reports completed units; the sum never exceeds the total.
//   - Done is invoked exactly once on every exit path (success, error,
//     cancellation). Use Finish to get that guarantee from a defer.
type Monitor interface {
	Begin(name string, totalUnits int)
	SetName(name string)
	Progressed(units int)
	IsCanceled() bool
	SetCanceled(canceled bool)
	Done()
}

// Finish runs fn framed by Begin/Done on m, so Done fires on every exit path.
func Finish(m Monitor, name string, totalUnits int, fn func() error) error {
	m.Begin(name, totalUnits)
	defer m.Done()
	return fn()
}

// Sub returns a monitor for work nested inside an already-framed operation:
// it shares the parent's cancellation flag but discards the nested Begin/Done
// pair, keeping the parent's framing intact.
func Sub(parent Monitor) Monitor { return &subMonitor{parent: parent} }

type subMonitor struct {
	parent Monitor
}

func (m *subMonitor) Begin(string, int) {}

func (m *subMonitor) SetName(string) {}

func (m *subMonitor) Progressed(int) {}

func (m *subMonitor) IsCanceled() bool { return m.parent.IsCanceled() }

func (m *subMonitor) SetCanceled(c bool) { m.parent.SetCanceled(c) }

func (m *subMonitor) Done() {}

// NilMonitor discards progress and supports cancellation only. The zero value
// is ready to use.
type NilMonitor struct {
	canceled atomic.Bool
}

func (m *NilMonitor) Begin(string, int) {}

func (m *NilMonitor) SetName(string) {}

func (m *NilMonitor) Progressed(int) {}

func (m *NilMonitor) IsCanceled() bool { return m.canceled.Load() }

func (m *NilMonitor) SetCanceled(c bool) { m.canceled.Store(c) }

func (m *NilMonitor) Done() {}
