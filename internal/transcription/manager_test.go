package transcription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"warm-transfer-service/internal/events"
	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/stt"
)

// scriptedAdapter records sent audio and lets the test drive callbacks.
type scriptedAdapter struct {
	mu      sync.Mutex
	cb      stt.Callback
	chunks  [][]byte
	sendErr error
	closed  bool
}

func (a *scriptedAdapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

func (a *scriptedAdapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	chunk := make([]byte, len(audio))
	copy(chunk, audio)
	a.chunks = append(a.chunks, chunk)
	return nil
}

func (a *scriptedAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *scriptedAdapter) chunkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

func (a *scriptedAdapter) chunkSizes() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	sizes := make([]int, len(a.chunks))
	for i, c := range a.chunks {
		sizes[i] = len(c)
	}
	return sizes
}

func (a *scriptedAdapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *scriptedAdapter) emit(res stt.Result) {
	a.mu.Lock()
	cb := a.cb
	a.mu.Unlock()
	cb.OnResult(res)
}

func (a *scriptedAdapter) fail(err error) {
	a.mu.Lock()
	cb := a.cb
	a.mu.Unlock()
	cb.OnError(err)
}

func newTestManager(adapter *scriptedAdapter) *Manager {
	factory := func(ctx context.Context) (stt.Adapter, error) { return adapter, nil }
	return NewManager(factory, DefaultChunkBytes, events.New(&events.Config{Enabled: false}), zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStart_IsIdempotentWhileActive(t *testing.T) {
	m := newTestManager(&scriptedAdapter{})
	ctx := context.Background()

	if err := m.Start(ctx, "room1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx, "room1"); err != nil {
		t.Fatalf("second start should be a no-op success: %v", err)
	}
	if !m.IsActive("room1") {
		t.Error("session should be active")
	}
}

func TestStart_FactoryFailure(t *testing.T) {
	factory := func(ctx context.Context) (stt.Adapter, error) {
		return nil, errors.New("no credentials")
	}
	m := NewManager(factory, 0, events.New(&events.Config{Enabled: false}), zerolog.Nop())

	if err := m.Start(context.Background(), "room1"); err == nil {
		t.Fatal("expected start error")
	}
	if _, ok := m.Status("room1"); ok {
		t.Error("failed start must not leave a session behind")
	}
}

func TestIngest_DispatchesFullChunksInOrder(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	// 1.5 chunks: one dispatch, half a chunk left buffered.
	m.Ingest("room1", make([]byte, DefaultChunkBytes))
	m.Ingest("room1", make([]byte, DefaultChunkBytes/2))

	waitFor(t, func() bool { return adapter.chunkCount() == 1 })

	// The second half completes the chunk.
	m.Ingest("room1", make([]byte, DefaultChunkBytes/2))
	waitFor(t, func() bool { return adapter.chunkCount() == 2 })

	sizes := adapter.chunkSizes()
	if len(sizes) != 2 {
		t.Errorf("expected 2 chunks dispatched, got %d", len(sizes))
	}
	for _, size := range sizes {
		if size != DefaultChunkBytes {
			t.Errorf("chunk size %d, want %d", size, DefaultChunkBytes)
		}
	}
}

func TestScenario_SilenceThenHello(t *testing.T) {
	// Feed 3200 bytes of silence twice, then a final "hello" via the
	// callback path: the summary text is exactly "hello".
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	silence := make([]byte, 3200)
	m.Ingest("room1", silence)
	m.Ingest("room1", silence)
	waitFor(t, func() bool { return adapter.chunkCount() == 2 })

	adapter.emit(stt.Result{Text: "hello", IsFinal: true, Confidence: 0.9})
	waitFor(t, func() bool { return len(m.Segments("room1")) == 1 })

	if got := m.SummaryText("room1"); got != "hello" {
		t.Errorf("expected summary %q, got %q", "hello", got)
	}
}

func TestHandleResult_DropsEmptySegments(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	adapter.emit(stt.Result{Text: "   ", IsFinal: true})
	adapter.emit(stt.Result{Text: "", IsFinal: false})
	adapter.emit(stt.Result{Text: "kept", IsFinal: true})

	waitFor(t, func() bool { return len(m.Segments("room1")) == 1 })

	segs := m.Segments("room1")
	if segs[0].Text != "kept" {
		t.Errorf("expected only the non-empty segment, got %+v", segs)
	}
}

func TestHandleResult_SpeakerFromWordAnnotations(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	adapter.emit(stt.Result{
		Text:    "tagged",
		IsFinal: true,
		Words:   []models.WordInfo{{Word: "tagged", SpeakerTag: 2}},
	})
	adapter.emit(stt.Result{Text: "untagged", IsFinal: true})

	waitFor(t, func() bool { return len(m.Segments("room1")) == 2 })

	segs := m.Segments("room1")
	if segs[0].Speaker != "speaker-2" {
		t.Errorf("expected speaker-2, got %s", segs[0].Speaker)
	}
	if segs[1].Speaker != "unknown" {
		t.Errorf("expected unknown speaker, got %s", segs[1].Speaker)
	}
}

func TestSummaryText_FinalOnlySpaceJoined(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	adapter.emit(stt.Result{Text: "draft", IsFinal: false})
	adapter.emit(stt.Result{Text: "first part", IsFinal: true})
	adapter.emit(stt.Result{Text: "another draft", IsFinal: false})
	adapter.emit(stt.Result{Text: "second part", IsFinal: true})

	waitFor(t, func() bool { return len(m.Segments("room1")) == 4 })

	if got := m.SummaryText("room1"); got != "first part second part" {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestSegments_Monotonic(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	adapter.emit(stt.Result{Text: "one", IsFinal: true})
	waitFor(t, func() bool { return len(m.Segments("room1")) == 1 })
	before := m.Segments("room1")

	adapter.emit(stt.Result{Text: "two", IsFinal: true})
	waitFor(t, func() bool { return len(m.Segments("room1")) == 2 })
	after := m.Segments("room1")

	// Later reads are supersets by append of earlier ones.
	for i, seg := range before {
		if after[i].Text != seg.Text {
			t.Errorf("segment %d changed: %q -> %q", i, seg.Text, after[i].Text)
		}
	}
}

func TestStop_IsIdempotentAndTolerant(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)

	// Stop with no session at all.
	if err := m.Stop("ghost"); err != nil {
		t.Fatalf("stop on absent session should succeed: %v", err)
	}

	m.Start(context.Background(), "room1")
	if err := m.Stop("room1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	waitFor(t, func() bool {
		state, ok := m.Status("room1")
		return ok && state == StateStopped
	})
	if !adapter.isClosed() {
		t.Error("upstream adapter should be closed")
	}

	if err := m.Stop("room1"); err != nil {
		t.Fatalf("second stop should succeed: %v", err)
	}
}

// stallingAdapter parks SendAudio until released, simulating a slow
// upstream write.
type stallingAdapter struct {
	scriptedAdapter
	release chan struct{}
	stalled chan struct{}
	once    sync.Once
}

func (a *stallingAdapter) SendAudio(ctx context.Context, audio []byte) error {
	a.once.Do(func() { close(a.stalled) })
	<-a.release
	return a.scriptedAdapter.SendAudio(ctx, audio)
}

func TestStop_LandsWhileDispatchStalled(t *testing.T) {
	// A slow upstream write parks the session loop; enough frames then
	// saturate the event queue. Stop must still tear the session down
	// once the write returns, adapter closed included.
	adapter := &stallingAdapter{
		release: make(chan struct{}),
		stalled: make(chan struct{}),
	}
	factory := func(ctx context.Context) (stt.Adapter, error) { return adapter, nil }
	m := NewManager(factory, DefaultChunkBytes, events.New(&events.Config{Enabled: false}), zerolog.Nop())
	m.Start(context.Background(), "room1")

	m.Ingest("room1", make([]byte, DefaultChunkBytes))
	<-adapter.stalled

	for i := 0; i < 300; i++ {
		m.Ingest("room1", make([]byte, DefaultChunkBytes))
	}

	if err := m.Stop("room1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(adapter.release)

	waitFor(t, func() bool { return !m.IsActive("room1") })
	waitFor(t, func() bool { return adapter.isClosed() })

	state, ok := m.Status("room1")
	if !ok || state != StateStopped {
		t.Errorf("expected stopped session, got %v ok=%v", state, ok)
	}
}

func TestUpstreamError_KeepsSegments(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	adapter.emit(stt.Result{Text: "captured before failure", IsFinal: true})
	waitFor(t, func() bool { return len(m.Segments("room1")) == 1 })

	adapter.fail(errors.New("stream reset"))
	waitFor(t, func() bool { return !m.IsActive("room1") })

	if got := m.SummaryText("room1"); got != "captured before failure" {
		t.Errorf("segments must survive upstream failure, got %q", got)
	}
	state, ok := m.Status("room1")
	if !ok || state != StateStopped {
		t.Errorf("expected stopped session, got %v ok=%v", state, ok)
	}
}

func TestClear_DestroysSegments(t *testing.T) {
	adapter := &scriptedAdapter{}
	m := newTestManager(adapter)
	m.Start(context.Background(), "room1")

	adapter.emit(stt.Result{Text: "gone soon", IsFinal: true})
	waitFor(t, func() bool { return len(m.Segments("room1")) == 1 })

	m.Clear("room1")

	if _, ok := m.Status("room1"); ok {
		t.Error("cleared session should be absent")
	}
	if got := m.Segments("room1"); len(got) != 0 {
		t.Errorf("cleared session should have no segments, got %v", got)
	}
}

func TestIngest_UnknownSessionIsDropped(t *testing.T) {
	m := newTestManager(&scriptedAdapter{})
	// Must not panic or create a session.
	m.Ingest("ghost", make([]byte, 100))
	if _, ok := m.Status("ghost"); ok {
		t.Error("ingest must not create sessions")
	}
}
