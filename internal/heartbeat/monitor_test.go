package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/mvelimir/skeep/internal/session"
)

// fakeTransport acknowledges or fails probes on demand.
type fakeTransport struct {
	mu     sync.Mutex
	err    error
	probes atomic.Int32
	closed chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{closed: make(chan struct{})}
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeTransport) Probe(ctx context.Context) error {
	f.probes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) Closed() <-chan struct{} { return f.closed }

var _ session.Transport = (*fakeTransport)(nil)

const testInterval = 30 * time.Second

// advance moves the mock clock one heartbeat interval, yielding before
// and after so the watch goroutine observes the tick.
func advance(mock *clock.Mock) {
	time.Sleep(5 * time.Millisecond)
	mock.Add(testInterval)
	time.Sleep(5 * time.Millisecond)
}

func TestLivenessLossAfterExactlyKMisses(t *testing.T) {
	mock := clock.NewMock()
	m := NewMonitor(testInterval, 3, mock, nil)
	defer m.StopAll()

	tr := newFakeTransport()
	tr.setErr(errors.New("no ack"))

	var lost atomic.Int32
	m.Watch(context.Background(), "s1", tr, Hooks{
		Alive: func(time.Time) {},
		Lost:  func() { lost.Add(1) },
	})

	advance(mock)
	advance(mock)
	require.Equal(t, int32(0), lost.Load(), "lost before K misses")

	advance(mock)
	require.Eventually(t, func() bool { return lost.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The watch has exited; further ticks must not re-fire.
	advance(mock)
	advance(mock)
	require.Equal(t, int32(1), lost.Load())
}

func TestAckResetsMissCount(t *testing.T) {
	mock := clock.NewMock()
	m := NewMonitor(testInterval, 3, mock, nil)
	defer m.StopAll()

	tr := newFakeTransport()
	var lost atomic.Int32
	var aliveAt atomic.Int64
	m.Watch(context.Background(), "s1", tr, Hooks{
		Alive: func(at time.Time) { aliveAt.Store(at.UnixNano()) },
		Lost:  func() { lost.Add(1) },
	})

	// Two misses, then an ack, then two more misses: never reaches K=3.
	tr.setErr(errors.New("no ack"))
	advance(mock)
	advance(mock)

	tr.setErr(nil)
	advance(mock)
	require.Eventually(t, func() bool { return aliveAt.Load() == mock.Now().UnixNano() }, time.Second, 5*time.Millisecond)

	tr.setErr(errors.New("no ack"))
	advance(mock)
	advance(mock)
	require.Equal(t, int32(0), lost.Load())

	// Third consecutive miss crosses the threshold.
	advance(mock)
	require.Eventually(t, func() bool { return lost.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTransportClosureFiresLost(t *testing.T) {
	mock := clock.NewMock()
	m := NewMonitor(testInterval, 3, mock, nil)
	defer m.StopAll()

	tr := newFakeTransport()
	var lost atomic.Int32
	m.Watch(context.Background(), "s1", tr, Hooks{
		Alive: func(time.Time) {},
		Lost:  func() { lost.Add(1) },
	})

	close(tr.closed)
	require.Eventually(t, func() bool { return lost.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStopCancelsWatchWithoutLost(t *testing.T) {
	mock := clock.NewMock()
	m := NewMonitor(testInterval, 3, mock, nil)

	tr := newFakeTransport()
	tr.setErr(errors.New("no ack"))
	var lost atomic.Int32
	m.Watch(context.Background(), "s1", tr, Hooks{
		Alive: func(time.Time) {},
		Lost:  func() { lost.Add(1) },
	})

	m.Stop("s1")
	m.StopAll()

	advance(mock)
	advance(mock)
	advance(mock)
	require.Equal(t, int32(0), lost.Load())
}

func TestWatchSupersedesPrevious(t *testing.T) {
	mock := clock.NewMock()
	m := NewMonitor(testInterval, 3, mock, nil)
	defer m.StopAll()

	old := newFakeTransport()
	fresh := newFakeTransport()
	var lost atomic.Int32
	hooks := Hooks{Alive: func(time.Time) {}, Lost: func() { lost.Add(1) }}

	m.Watch(context.Background(), "s1", old, hooks)
	m.Watch(context.Background(), "s1", fresh, hooks)
	time.Sleep(10 * time.Millisecond)

	advance(mock)
	require.Eventually(t, func() bool { return fresh.probes.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(0), old.probes.Load(), "superseded transport must not be probed")
	require.Equal(t, int32(0), lost.Load())
}
