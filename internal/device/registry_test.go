package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/messenger-wemo/internal/events"
)

type fakeSwitch struct {
	mu       sync.Mutex
	state    BinaryState
	getErr   error
	setErr   error
	delay    time.Duration
	gets     atomic.Int32
	sets     atomic.Int32
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (f *fakeSwitch) enter() func() {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	return func() { f.inflight.Add(-1) }
}

func (f *fakeSwitch) GetBinaryState(ctx context.Context) (BinaryState, error) {
	defer f.enter()()
	f.gets.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.getErr
}

func (f *fakeSwitch) SetBinaryState(ctx context.Context, s BinaryState) error {
	defer f.enter()()
	f.sets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.state = s
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(sw Switch) *Registry {
	return NewRegistry(
		map[string]string{"SN-LAMP": "lamp"},
		func(Info) Switch { return sw },
		time.Second,
		events.NewHub(16),
		testLogger(),
	)
}

func TestBinaryStateToggle(t *testing.T) {
	assert.Equal(t, On, Off.Toggle())
	assert.Equal(t, Off, On.Toggle())
	assert.Equal(t, Off, Off.Toggle().Toggle())
}

func TestParseBinaryState(t *testing.T) {
	tests := []struct {
		in      string
		want    BinaryState
		wantErr bool
	}{
		{"0", Off, false},
		{"1", On, false},
		{"8", Off, false},
		{"1|1457700000|0|0", On, false},
		{"", Off, true},
		{"on", Off, true},
	}
	for _, tt := range tests {
		got, err := ParseBinaryState(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRegisterIgnoresUnconfigured(t *testing.T) {
	r := newTestRegistry(&fakeSwitch{})

	assert.False(t, r.Register(Info{SerialNumber: "SN-OTHER"}))
	assert.Empty(t, r.Devices())
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := newTestRegistry(&fakeSwitch{})
	info := Info{SerialNumber: "SN-LAMP", BaseURL: "http://10.0.0.2:49153"}

	assert.True(t, r.Register(info))
	info.BaseURL = "http://10.0.0.2:49154"
	assert.True(t, r.Register(info))

	devices := r.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "lamp", devices[0].Label)
	assert.Equal(t, "http://10.0.0.2:49154", devices[0].BaseURL)
}

func TestRegisterRefreshUsesNewHandle(t *testing.T) {
	first := &fakeSwitch{}
	second := &fakeSwitch{state: On}
	handles := []Switch{first, second}
	r := NewRegistry(map[string]string{"SN-LAMP": "lamp"}, func(Info) Switch {
		h := handles[0]
		handles = handles[1:]
		return h
	}, time.Second, nil, testLogger())

	r.Register(Info{SerialNumber: "SN-LAMP"})
	r.Register(Info{SerialNumber: "SN-LAMP"})

	got, err := r.Toggle(context.Background(), "lamp")
	require.NoError(t, err)
	assert.Equal(t, Off, got)
	assert.Equal(t, int32(0), first.gets.Load())
	assert.Equal(t, int32(1), second.sets.Load())
}

func TestToggleComplementLaw(t *testing.T) {
	for _, start := range []BinaryState{Off, On} {
		sw := &fakeSwitch{state: start}
		r := newTestRegistry(sw)
		r.Register(Info{SerialNumber: "SN-LAMP"})

		got, err := r.Toggle(context.Background(), "lamp")
		require.NoError(t, err)
		assert.Equal(t, start.Toggle(), got)

		snap, ok := r.Lookup("lamp")
		require.True(t, ok)
		require.NotNil(t, snap.LastKnownState)
		assert.Equal(t, start.Toggle(), *snap.LastKnownState)

		got, err = r.Toggle(context.Background(), "lamp")
		require.NoError(t, err)
		assert.Equal(t, start, got)
		assert.Equal(t, start, sw.state)
	}
}

func TestToggleUnregisteredMakesNoCall(t *testing.T) {
	sw := &fakeSwitch{}
	r := newTestRegistry(sw)

	_, err := r.Toggle(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	// Configured but not yet discovered is indistinguishable.
	_, err = r.Toggle(context.Background(), "lamp")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	assert.Equal(t, int32(0), sw.gets.Load())
	assert.Equal(t, int32(0), sw.sets.Load())
}

func TestToggleQueryFailureLeavesStateUnchanged(t *testing.T) {
	sw := &fakeSwitch{state: On, getErr: errors.New("connection refused")}
	r := newTestRegistry(sw)
	r.Register(Info{SerialNumber: "SN-LAMP"})

	_, err := r.Toggle(context.Background(), "lamp")

	var commErr *CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, PhaseQuery, commErr.Phase)
	assert.False(t, commErr.StateAmbiguous())
	assert.Equal(t, int32(0), sw.sets.Load())
	assert.Equal(t, On, sw.state)
}

func TestToggleCommandFailureIsAmbiguous(t *testing.T) {
	sw := &fakeSwitch{state: Off}
	r := newTestRegistry(sw)
	r.Register(Info{SerialNumber: "SN-LAMP"})

	_, err := r.Toggle(context.Background(), "lamp")
	require.NoError(t, err)

	sw.setErr = errors.New("timeout")
	_, err = r.Toggle(context.Background(), "lamp")

	var commErr *CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, PhaseCommand, commErr.Phase)
	assert.True(t, commErr.StateAmbiguous())
	assert.ErrorContains(t, err, "timeout")

	snap, _ := r.Lookup("lamp")
	assert.Nil(t, snap.LastKnownState)
}

func TestConcurrentTogglesDoNotInterleave(t *testing.T) {
	sw := &fakeSwitch{state: Off, delay: 20 * time.Millisecond}
	r := newTestRegistry(sw)
	r.Register(Info{SerialNumber: "SN-LAMP"})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Toggle(context.Background(), "lamp")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, sw.overlap.Load(), "device round trips overlapped")
	assert.Equal(t, int32(2), sw.sets.Load())
	assert.Equal(t, Off, sw.state, "two toggles must return to the start state")
}

func TestToggleSurvivesCallerCancellation(t *testing.T) {
	sw := &fakeSwitch{state: Off}
	r := newTestRegistry(sw)
	r.Register(Info{SerialNumber: "SN-LAMP"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := r.Toggle(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, On, got)
}

func TestRunConsumesUntilClosed(t *testing.T) {
	r := newTestRegistry(&fakeSwitch{})
	found := make(chan Info, 3)
	found <- Info{SerialNumber: "SN-OTHER"}
	found <- Info{SerialNumber: "SN-LAMP"}
	found <- Info{SerialNumber: "SN-LAMP"}
	close(found)

	require.NoError(t, r.Run(context.Background(), found))
	assert.Len(t, r.Devices(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newTestRegistry(&fakeSwitch{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, make(chan Info))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTogglePublishesEvents(t *testing.T) {
	hub := events.NewHub(8)
	sw := &fakeSwitch{state: Off}
	r := NewRegistry(map[string]string{"SN-LAMP": "lamp"}, func(Info) Switch { return sw }, time.Second, hub, testLogger())
	r.Register(Info{SerialNumber: "SN-LAMP"})

	_, err := r.Toggle(context.Background(), "lamp")
	require.NoError(t, err)

	snap := hub.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, events.TypeDeviceRegistered, snap[0].Type)
	assert.Equal(t, events.TypeDeviceToggled, snap[1].Type)
}

func TestLabelsMatchCaseInsensitively(t *testing.T) {
	sw := &fakeSwitch{state: On}
	r := NewRegistry(map[string]string{"SN-LAMP": "Lamp"}, func(Info) Switch { return sw }, time.Second, nil, testLogger())
	r.Register(Info{SerialNumber: "SN-LAMP"})

	snap, ok := r.Lookup(" lamp ")
	require.True(t, ok)
	assert.Equal(t, "Lamp", snap.Label)

	got, err := r.Toggle(context.Background(), "LAMP")
	require.NoError(t, err)
	assert.Equal(t, Off, got)
}
