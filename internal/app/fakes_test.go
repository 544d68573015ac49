package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// memFS is an in-memory ports.BufferFS.
type memFS struct {
	mu    sync.Mutex
	base  string
	files map[string][]byte
}

func newMemFS(base string) *memFS {
	return &memFS{base: base, files: make(map[string][]byte)}
}

func (m *memFS) List() ([]domain.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var segs []domain.Segment
	for name, data := range m.files {
		s, ok := domain.ParseSegmentName(m.base, name)
		if !ok {
			continue
		}
		s.Length = int64(len(data))
		segs = append(segs, s)
	}
	domain.SortSegments(segs)
	return segs, nil
}

type nopReadSeekCloser struct{ *bytes.Reader }

func (nopReadSeekCloser) Close() error { return nil }

func (m *memFS) Open(name string) (io.ReadSeekCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return nopReadSeekCloser{bytes.NewReader(append([]byte(nil), data...))}, nil
}

func (m *memFS) Create(name string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok {
		return nil, fs.ErrExist
	}
	m.files[name] = nil
	return &memWriter{fs: m, name: name}, nil
}

func (m *memFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return fs.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

func (m *memFS) put(name, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = []byte(data)
}

func (m *memFS) names() []string {
	segs, _ := m.List()
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Name
	}
	return out
}

type memWriter struct {
	fs   *memFS
	name string
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	if _, ok := w.fs.files[w.name]; !ok {
		return 0, fs.ErrNotExist
	}
	w.fs.files[w.name] = append(w.fs.files[w.name], p...)
	return len(p), nil
}

func (w *memWriter) Close() error { return nil }

// fakeIngester records every posted batch and answers with respond, or
// Accepted when respond is nil.
type fakeIngester struct {
	mu      sync.Mutex
	respond func(batch *domain.Batch) domain.Outcome
	batches [][]string
	posted  chan struct{}
}

func newFakeIngester(respond func(*domain.Batch) domain.Outcome) *fakeIngester {
	return &fakeIngester{respond: respond, posted: make(chan struct{}, 100)}
}

func (f *fakeIngester) Post(ctx context.Context, batch *domain.Batch, _ ports.PostMetadata) domain.Outcome {
	f.mu.Lock()
	payloads := make([]string, len(batch.Events))
	for i, ev := range batch.Events {
		payloads[i] = string(ev.Payload)
	}
	f.batches = append(f.batches, payloads)
	respond := f.respond
	f.mu.Unlock()

	select {
	case f.posted <- struct{}{}:
	default:
	}
	if respond == nil {
		return domain.Outcome{Kind: domain.OutcomeAccepted, StatusCode: 201}
	}
	return respond(batch)
}

func (f *fakeIngester) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

// Events flattens every posted batch.
func (f *fakeIngester) Events() []string {
	var out []string
	for _, b := range f.Batches() {
		out = append(out, b...)
	}
	return out
}

// script answers with outcomes in order, then Accepted.
func script(outcomes ...domain.Outcome) func(*domain.Batch) domain.Outcome {
	var mu sync.Mutex
	return func(*domain.Batch) domain.Outcome {
		mu.Lock()
		defer mu.Unlock()
		if len(outcomes) == 0 {
			return domain.Outcome{Kind: domain.OutcomeAccepted, StatusCode: 201}
		}
		out := outcomes[0]
		outcomes = outcomes[1:]
		return out
	}
}

type fakeBookmarks struct {
	mu      sync.Mutex
	bm      domain.Bookmark
	saveErr error
	saves   int
}

func (f *fakeBookmarks) Load(context.Context) (domain.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bm, nil
}

func (f *fakeBookmarks) Save(_ context.Context, bm domain.Bookmark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.bm = bm
	f.saves++
	return nil
}

type fakeQuarantine struct {
	mu       sync.Mutex
	payloads map[string][]string
}

func (f *fakeQuarantine) Retain(reason string, payload []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = make(map[string][]string)
	}
	f.payloads[reason] = append(f.payloads[reason], string(payload))
	return true, nil
}

func (f *fakeQuarantine) Get(reason string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[reason]
}

func newTestLevels() *LevelController {
	c, err := NewLevelController(nil, nil, 0, mockLogger{}, &Counters{})
	if err != nil {
		panic(err)
	}
	return c
}

func testEvent(i int) domain.Event {
	return domain.NewEvent([]byte(fmt.Sprintf(`{"@mt":"event %d"}`, i)), domain.LevelInformation)
}

func testPayload(i int) string {
	return fmt.Sprintf(`{"@mt":"event %d"}`, i)
}

// fixedClock is a settable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// produce runs producers goroutines that each enqueue perProducer events
// tagged with the producer and its sequence number, and waits for them.
func produce(producers, perProducer int, enqueue func(domain.Event)) {
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for n := 0; n < perProducer; n++ {
				payload := fmt.Sprintf(`{"p":%d,"n":%d}`, p, n)
				enqueue(domain.NewEvent([]byte(payload), domain.LevelInformation))
			}
		}(p)
	}
	wg.Wait()
}

// checkDeliveredOnce fails unless events holds every produced event exactly
// once with each producer's events in sequence order.
func checkDeliveredOnce(t *testing.T, events []string, producers, perProducer int) {
	t.Helper()
	if len(events) != producers*perProducer {
		t.Errorf("delivered %d events, want %d", len(events), producers*perProducer)
	}
	next := make([]int, producers)
	for _, ev := range events {
		var p, n int
		if _, err := fmt.Sscanf(ev, `{"p":%d,"n":%d}`, &p, &n); err != nil || p < 0 || p >= producers {
			t.Fatalf("unexpected event %q", ev)
		}
		if n != next[p] {
			t.Fatalf("producer %d: got event %d, want %d", p, n, next[p])
		}
		next[p]++
	}
	for p, n := range next {
		if n != perProducer {
			t.Errorf("producer %d: delivered %d events, want %d", p, n, perProducer)
		}
	}
}
