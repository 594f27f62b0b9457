package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/video-system/go-slam-capture/pkg/engine"
	"github.com/video-system/go-slam-capture/pkg/sink"
	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

// events records teardown order across fakes
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeSource struct {
	frames     int // -1 = endless
	read       int
	releases   int
	releaseErr error
	ev         *events
}

func (s *fakeSource) Name() string   { return "fake" }
func (s *fakeSource) IsOpened() bool { return true }

func (s *fakeSource) ReadFrame(ctx context.Context) (*source.Frame, error) {
	if s.frames >= 0 && s.read >= s.frames {
		return nil, nil
	}
	s.read++
	return &source.Frame{
		Data:     make([]byte, 2*2*3),
		Width:    2,
		Height:   2,
		Format:   source.FormatBGR24,
		Sequence: int64(s.read),
	}, nil
}

func (s *fakeSource) Release() error {
	s.releases++
	s.ev.add("release")
	return s.releaseErr
}

type fakeResolver struct {
	src *fakeSource
	err error
}

func (r *fakeResolver) Resolve(ctx context.Context, raw string) (source.Source, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.src, nil
}

type fakeEngine struct {
	stamps    []timestamp.Timestamp
	shutdowns int
	ev        *events
	// track decides the result of the n-th call (1-based)
	track func(n int) (engine.Pose, error)
}

func (e *fakeEngine) Track(ctx context.Context, frame *source.Frame, ts timestamp.Timestamp) (engine.Pose, error) {
	e.stamps = append(e.stamps, ts)
	if e.track != nil {
		return e.track(len(e.stamps))
	}
	return engine.IdentityPose(), nil
}

func (e *fakeEngine) Shutdown(ctx context.Context) error {
	e.shutdowns++
	e.ev.add("shutdown")
	return nil
}

// stepClock advances by step on every read
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type recordingSink struct {
	obs []sink.Observation
}

func (s *recordingSink) Observe(obs sink.Observation) error {
	s.obs = append(s.obs, obs)
	return nil
}

func (s *recordingSink) Close() error { return nil }

type harness struct {
	ev        *events
	src       *fakeSource
	eng       *fakeEngine
	resolver  *fakeResolver
	sink      *recordingSink
	engineErr error
	created   int
}

func newHarness(frames int) *harness {
	ev := &events{}
	src := &fakeSource{frames: frames, ev: ev}
	return &harness{
		ev:       ev,
		src:      src,
		eng:      &fakeEngine{ev: ev},
		resolver: &fakeResolver{src: src},
		sink:     &recordingSink{},
	}
}

func (h *harness) driver(t *testing.T, cfg *Config, clock timestamp.Clock) *Driver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if clock == nil {
		clock = &stepClock{now: time.UnixMilli(1_700_000_000_000), step: 33 * time.Millisecond}
	}
	return New(cfg, h.resolver,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(clock),
		WithSink(h.sink),
		WithEngineFactory(func(ctx context.Context, ec engine.Config) (engine.Engine, error) {
			h.created++
			if h.engineErr != nil {
				return nil, h.engineErr
			}
			return h.eng, nil
		}),
	)
}

func assertTeardown(t *testing.T, h *harness, want []string) {
	t.Helper()
	got := h.ev.list()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestRunExhaustsSource(t *testing.T) {
	h := newHarness(10)
	d := h.driver(t, nil, nil)

	err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ExitCode(err) != 0 {
		t.Errorf("ExitCode = %d, want 0", ExitCode(err))
	}

	if len(h.eng.stamps) != 10 {
		t.Fatalf("Track calls = %d, want 10", len(h.eng.stamps))
	}
	for i := 1; i < len(h.eng.stamps); i++ {
		if h.eng.stamps[i] <= h.eng.stamps[i-1] {
			t.Errorf("timestamp %d (%s) not after %s", i, h.eng.stamps[i], h.eng.stamps[i-1])
		}
	}
	assertTeardown(t, h, []string{"shutdown", "release"})

	if d.State() != StateShutDown {
		t.Errorf("State = %s, want shut_down", d.State())
	}
	st := d.Status()
	if st.FramesRead != 10 || st.FramesTracked != 10 {
		t.Errorf("counters = %+v", st.Counters)
	}
	if st.Exit != "exhausted" {
		t.Errorf("Exit = %q, want exhausted", st.Exit)
	}
	if st.LastPosition == nil {
		t.Error("expected last position after tracked frames")
	}
	if len(h.sink.obs) != 10 {
		t.Errorf("sink saw %d observations, want 10", len(h.sink.obs))
	}
}

func TestRunSourceResolutionFails(t *testing.T) {
	h := newHarness(0)
	h.resolver.err = fmt.Errorf("%w: no camera", source.ErrSourceResolution)
	d := h.driver(t, nil, nil)

	err := d.Run(context.Background())
	if !errors.Is(err, ErrSourceResolution) {
		t.Fatalf("Run error = %v, want ErrSourceResolution", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode(err))
	}
	if h.created != 0 {
		t.Errorf("engine constructed %d times, want 0", h.created)
	}
	assertTeardown(t, h, nil)
	if d.State() != StateShutDown {
		t.Errorf("State = %s, want shut_down", d.State())
	}
}

func TestRunEngineInitFails(t *testing.T) {
	h := newHarness(5)
	h.engineErr = errors.New("vocabulary not found")
	d := h.driver(t, nil, nil)

	err := d.Run(context.Background())
	if !errors.Is(err, ErrEngineInit) {
		t.Fatalf("Run error = %v, want ErrEngineInit", err)
	}
	if len(h.eng.stamps) != 0 {
		t.Errorf("Track called %d times, want 0", len(h.eng.stamps))
	}
	if h.src.read != 0 {
		t.Errorf("read %d frames before engine was up", h.src.read)
	}
	// Source was opened, so it is released; engine never existed
	assertTeardown(t, h, []string{"release"})
}

func TestRunInterrupted(t *testing.T) {
	h := newHarness(-1)
	d := h.driver(t, nil, nil)
	h.eng.track = func(n int) (engine.Pose, error) {
		if n == 3 {
			d.RequestStop("test")
			d.RequestStop("again")
		}
		return engine.IdentityPose(), nil
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The in-flight iteration completes; no further frame is read
	if len(h.eng.stamps) != 3 {
		t.Errorf("Track calls = %d, want 3", len(h.eng.stamps))
	}
	if h.src.read != 3 {
		t.Errorf("frames read = %d, want 3", h.src.read)
	}
	st := d.Status()
	if st.Exit != "interrupted" || st.StopReq != "test" {
		t.Errorf("Exit = %q, StopReq = %q", st.Exit, st.StopReq)
	}
	assertTeardown(t, h, []string{"shutdown", "release"})
}

func TestRunContextCancelled(t *testing.T) {
	h := newHarness(-1)
	d := h.driver(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.eng.track = func(n int) (engine.Pose, error) {
		if n == 2 {
			cancel()
		}
		return engine.IdentityPose(), nil
	}

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.eng.stamps) != 2 {
		t.Errorf("Track calls = %d, want 2", len(h.eng.stamps))
	}
	assertTeardown(t, h, []string{"shutdown", "release"})
}

func TestRunFrameLimit(t *testing.T) {
	h := newHarness(-1)
	cfg := DefaultConfig()
	cfg.Loop.MaxFrames = 5
	d := h.driver(t, cfg, nil)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.eng.stamps) != 5 {
		t.Errorf("Track calls = %d, want 5", len(h.eng.stamps))
	}
	if got := d.Status().Exit; got != "frame_limit" {
		t.Errorf("Exit = %q, want frame_limit", got)
	}
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestTimestampsStrictlyIncrease(t *testing.T) {
	h := newHarness(3)
	base := time.UnixMilli(1_700_000_000_000)
	d := h.driver(t, nil, fixedClock(base))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []int64{1_700_000_000_000, 1_700_000_000_001, 1_700_000_000_002}
	if len(h.eng.stamps) != len(want) {
		t.Fatalf("Track calls = %d, want %d", len(h.eng.stamps), len(want))
	}
	for i, ts := range h.eng.stamps {
		if ts.Millis() != want[i] {
			t.Errorf("stamp %d = %d ms, want %d", i, ts.Millis(), want[i])
		}
	}
	if got := d.Status().Adjustments; got != 2 {
		t.Errorf("Adjustments = %d, want 2", got)
	}
}

func TestTrackingFailuresAreNotFatal(t *testing.T) {
	h := newHarness(6)
	d := h.driver(t, nil, nil)
	h.eng.track = func(n int) (engine.Pose, error) {
		switch n % 3 {
		case 1:
			return engine.EmptyPose, nil
		case 2:
			return engine.IdentityPose(), errors.New("not initialized")
		default:
			return engine.IdentityPose(), nil
		}
	}

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := d.Status()
	if st.FramesRead != 6 || st.FramesTracked != 2 || st.TrackingFailures != 4 {
		t.Errorf("counters = %+v", st.Counters)
	}
	if len(h.sink.obs) != 6 {
		t.Fatalf("sink saw %d observations, want 6", len(h.sink.obs))
	}
	// A failed track never reaches the sink with a pose
	if !h.sink.obs[1].Pose.Empty() {
		t.Error("errored track should produce an empty pose")
	}
}

func TestRunEngineTerminated(t *testing.T) {
	h := newHarness(-1)
	d := h.driver(t, nil, nil)
	h.eng.track = func(n int) (engine.Pose, error) {
		if n == 2 {
			return engine.EmptyPose, fmt.Errorf("%w: broken pipe", engine.ErrTerminated)
		}
		return engine.IdentityPose(), nil
	}

	err := d.Run(context.Background())
	if !errors.Is(err, engine.ErrTerminated) {
		t.Fatalf("Run error = %v, want ErrTerminated", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode(err))
	}
	if h.src.read != 2 {
		t.Errorf("frames read = %d, want 2", h.src.read)
	}
	assertTeardown(t, h, []string{"shutdown", "release"})
	if got := d.Status().Exit; got != "failed" {
		t.Errorf("Exit = %q, want failed", got)
	}
}

func TestRunPanicStillTearsDown(t *testing.T) {
	h := newHarness(-1)
	d := h.driver(t, nil, nil)
	h.eng.track = func(n int) (engine.Pose, error) {
		panic("engine blew up")
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		d.Run(context.Background())
	}()

	if h.eng.shutdowns != 1 || h.src.releases != 1 {
		t.Errorf("shutdowns = %d, releases = %d, want 1 each", h.eng.shutdowns, h.src.releases)
	}
	assertTeardown(t, h, []string{"shutdown", "release"})
	if d.State() != StateShutDown {
		t.Errorf("State = %s, want shut_down", d.State())
	}
}

func TestRunReleaseError(t *testing.T) {
	h := newHarness(1)
	h.src.releaseErr = errors.New("device busy")
	d := h.driver(t, nil, nil)

	err := d.Run(context.Background())
	if err == nil {
		t.Fatal("expected release error")
	}
	if ExitCode(err) != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode(err))
	}
	if h.eng.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", h.eng.shutdowns)
	}
}

func TestRunBadMode(t *testing.T) {
	h := newHarness(1)
	cfg := DefaultConfig()
	cfg.Engine.Mode = "lidar"
	d := h.driver(t, cfg, nil)

	err := d.Run(context.Background())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Run error = %v, want ErrConfiguration", err)
	}
	if h.created != 0 {
		t.Errorf("engine constructed %d times, want 0", h.created)
	}
	assertTeardown(t, h, []string{"release"})
}
