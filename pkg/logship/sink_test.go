package logship_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/logship/pkg/logship"
)

// =============================================================================
// Test Utilities
// =============================================================================

// ingestServer records the events of every accepted request.
type ingestServer struct {
	*httptest.Server

	status atomic.Int32

	mu       sync.Mutex
	events   []string
	requests int
	header   http.Header
}

func newIngestServer(t *testing.T) *ingestServer {
	t.Helper()
	s := &ingestServer{header: http.Header{}}
	s.status.Store(http.StatusCreated)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		code := int(s.status.Load())

		s.mu.Lock()
		s.requests++
		if code/100 == 2 {
			for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
				s.events = append(s.events, line)
			}
		}
		for k, v := range s.header {
			w.Header()[k] = v
		}
		s.mu.Unlock()

		w.WriteHeader(code)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ingestServer) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *ingestServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func payload(i int) string {
	return fmt.Sprintf(`{"@t":"2026-10-19T00:00:00Z","@m":"event %d"}`, i)
}

func event(i int) logship.Event {
	return logship.NewEvent([]byte(payload(i)), logship.LevelInformation)
}

func testConfig(url string) logship.Config {
	cfg := logship.DefaultConfig()
	cfg.ServerURL = url
	cfg.Period = time.Hour
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

// recordingHandler implements logship.EventHandler.
type recordingHandler struct {
	mu      sync.Mutex
	states  []string
	shipped int
	errors  int
}

func (h *recordingHandler) OnStateChange(e logship.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e.Current.String())
}

func (h *recordingHandler) OnSendSuccess(e logship.SendSuccessEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shipped += e.EventCount
}

func (h *recordingHandler) OnSendError(e logship.SendErrorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
}

// =============================================================================
// Configuration
// =============================================================================

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*logship.Config)
		wantErr error
	}{
		{"missing server URL", func(c *logship.Config) { c.ServerURL = "" }, logship.ErrInvalidConfig},
		{"relative server URL", func(c *logship.Config) { c.ServerURL = "localhost:5341" }, logship.ErrInvalidConfig},
		{"negative buffer limit", func(c *logship.Config) {
			c.BufferBaseFilename = filepath.Join(t.TempDir(), "buffer")
			c.BufferSizeLimitBytes = -1
		}, logship.ErrInvalidConfig},
		{"negative event body limit", func(c *logship.Config) { c.EventBodyLimitBytes = -2 }, logship.ErrInvalidConfig},
		{"audit with buffer", func(c *logship.Config) {
			c.Audit = true
			c.BufferBaseFilename = filepath.Join(t.TempDir(), "buffer")
		}, logship.ErrInvalidConfig},
		{"buffer limit without buffer", func(c *logship.Config) { c.BufferFileSizeLimitBytes = 1024 }, logship.ErrInvalidConfig},
		{"local and server switches", func(c *logship.Config) {
			c.MinimumLevel = logship.NewLevelSwitch(logship.LevelWarning)
			c.ServerLevelSwitch = logship.NewLevelSwitch(logship.LevelDebug)
		}, logship.ErrLevelConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://localhost:5341")
			tt.mutate(&cfg)
			if _, err := logship.New(cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_SelectsMode(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*logship.Config)
		want   logship.Mode
	}{
		{"batched", func(c *logship.Config) {}, logship.ModeBatched},
		{"durable", func(c *logship.Config) { c.BufferBaseFilename = filepath.Join(t.TempDir(), "buffer") }, logship.ModeDurable},
		{"audit", func(c *logship.Config) { c.Audit = true }, logship.ModeAudit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://localhost:5341/")
			tt.mutate(&cfg)
			s, err := logship.New(cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer s.Close()
			if s.Mode() != tt.want {
				t.Errorf("Mode() = %v, want %v", s.Mode(), tt.want)
			}
		})
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestSink_Lifecycle(t *testing.T) {
	srv := newIngestServer(t)
	handler := &recordingHandler{}
	s, err := logship.New(testConfig(srv.URL), logship.WithEventHandler(handler))
	if err != nil {
		t.Fatal(err)
	}

	if s.Status() != logship.StateStopped {
		t.Errorf("initial Status() = %v, want Stopped", s.Status())
	}
	if err := s.Stop(); !errors.Is(err, logship.ErrNotRunning) {
		t.Errorf("Stop() before Start = %v, want ErrNotRunning", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, logship.ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
	if s.Status() != logship.StateRunning {
		t.Errorf("Status() = %v, want Running", s.Status())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Emit(ctx, event(0)); !errors.Is(err, logship.ErrClosed) {
		t.Errorf("Emit() after Stop = %v, want ErrClosed", err)
	}
	if err := s.Start(ctx); !errors.Is(err, logship.ErrClosed) {
		t.Errorf("Start() after Stop = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() after Stop = %v", err)
	}

	want := []string{"Starting", "Running", "Stopping", "Stopped"}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if !reflect.DeepEqual(handler.states, want) {
		t.Errorf("state changes = %v, want %v", handler.states, want)
	}
}

// =============================================================================
// Batched mode
// =============================================================================

func TestSink_BatchedFlushesOnStop(t *testing.T) {
	srv := newIngestServer(t)
	handler := &recordingHandler{}
	cfg := testConfig(srv.URL)
	cfg.BatchPostingLimit = 2
	s, err := logship.New(cfg, logship.WithEventHandler(handler))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var want []string
	for i := 0; i < 5; i++ {
		if err := s.Emit(ctx, event(i)); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		want = append(want, payload(i))
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := srv.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("server events = %v, want %v", got, want)
	}
	if got := s.Stats().ShippedEvents; got != 5 {
		t.Errorf("ShippedEvents = %d, want 5", got)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.shipped != 5 {
		t.Errorf("OnSendSuccess events = %d, want 5", handler.shipped)
	}
}

func TestSink_WriteFormatsRecord(t *testing.T) {
	srv := newIngestServer(t)
	s, err := logship.New(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	err = s.Write(context.Background(), logship.Record{
		Timestamp:       time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Level:           logship.LevelWarning,
		MessageTemplate: "Disk {Volume} is full",
		Properties:      map[string]any{"Volume": "/data"},
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events := srv.Events()
	if len(events) != 1 {
		t.Fatalf("server received %d events, want 1", len(events))
	}
	for _, want := range []string{`"@mt":"Disk {Volume} is full"`, `"@l":"Warning"`, `"Volume":"/data"`} {
		if !strings.Contains(events[0], want) {
			t.Errorf("event %s does not contain %s", events[0], want)
		}
	}
}

func TestSink_LocalMinimumLevelFilters(t *testing.T) {
	srv := newIngestServer(t)
	srv.header.Set("X-Seq-MinimumLevelAccepted", "Fatal")

	local := logship.NewLevelSwitch(logship.LevelWarning)
	cfg := testConfig(srv.URL)
	cfg.MinimumLevel = local
	s, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	_ = s.Emit(ctx, logship.NewEvent([]byte(payload(0)), logship.LevelInformation))
	_ = s.Emit(ctx, logship.NewEvent([]byte(payload(1)), logship.LevelError))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if got := srv.Events(); len(got) != 1 || got[0] != payload(1) {
		t.Errorf("server events = %v, want only the Error event", got)
	}
	if got := s.MinimumLevel(); got != logship.LevelWarning {
		t.Errorf("MinimumLevel() = %v, want the local Warning", got)
	}
	if got := s.Stats().DirectivesIgnored; got != 1 {
		t.Errorf("DirectivesIgnored = %d, want 1", got)
	}
}

// =============================================================================
// Durable mode
// =============================================================================

func TestSink_DurableKeepsEventsAcrossRestart(t *testing.T) {
	srv := newIngestServer(t)
	srv.status.Store(http.StatusServiceUnavailable)

	cfg := testConfig(srv.URL)
	cfg.BufferBaseFilename = filepath.Join(t.TempDir(), "logs", "buffer")

	first, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	var want []string
	for i := 0; i < 3; i++ {
		_ = first.Emit(ctx, event(i))
		want = append(want, payload(i))
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(srv.Events()) != 0 {
		t.Fatal("server accepted events while unavailable")
	}
	if got := first.Stats().TransientFailures; got == 0 {
		t.Error("TransientFailures = 0, want the failed final delivery counted")
	}

	srv.status.Store(http.StatusCreated)
	second, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := second.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if got := srv.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("server events = %v, want %v", got, want)
	}
}

func TestSink_DurableShipsWhileRunning(t *testing.T) {
	srv := newIngestServer(t)
	cfg := testConfig(srv.URL)
	cfg.BufferBaseFilename = filepath.Join(t.TempDir(), "buffer")
	cfg.Period = 10 * time.Millisecond

	s, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		_ = s.Emit(ctx, event(i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(srv.Events()) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Drain(ctx); !errors.Is(err, logship.ErrAlreadyRunning) {
		t.Errorf("Drain() while running = %v, want ErrAlreadyRunning", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	if got := len(srv.Events()); got != 4 {
		t.Errorf("server received %d events, want 4", got)
	}
}

func TestSink_DurableBufferIsExclusive(t *testing.T) {
	cfg := testConfig("http://localhost:5341")
	cfg.BufferBaseFilename = filepath.Join(t.TempDir(), "buffer")

	first, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := logship.New(cfg); !errors.Is(err, logship.ErrBufferLocked) {
		t.Fatalf("second New() error = %v, want ErrBufferLocked", err)
	}

	// Nothing to ship, so Close does not reach the unreachable server.
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	third, err := logship.New(cfg)
	if err != nil {
		t.Fatalf("New() after Close error = %v", err)
	}
	_ = third.Close()
}

// stalledClient holds every request until released, ignoring cancellation.
type stalledClient struct {
	started chan struct{}
	release chan struct{}
}

func (c *stalledClient) Do(req *http.Request) (*http.Response, error) {
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-c.release
	return &http.Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestSink_ShutdownTimeoutKeepsBufferLocked(t *testing.T) {
	cfg := testConfig("http://localhost:5341")
	cfg.BufferBaseFilename = filepath.Join(t.TempDir(), "buffer")
	cfg.ShutdownTimeout = 50 * time.Millisecond

	client := &stalledClient{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := logship.New(cfg, logship.WithHTTPClient(client))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(context.Background(), event(0)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not post the event")
	}

	if err := s.Stop(); !errors.Is(err, logship.ErrShutdownTimeout) {
		t.Fatalf("Stop() = %v, want ErrShutdownTimeout", err)
	}
	if s.Status() != logship.StateCrashed {
		t.Errorf("Status() = %v, want Crashed", s.Status())
	}
	if _, err := logship.New(cfg); !errors.Is(err, logship.ErrBufferLocked) {
		t.Fatalf("New() while worker is stalled = %v, want ErrBufferLocked", err)
	}

	close(client.release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		next, err := logship.New(cfg)
		if err == nil {
			_ = next.Close()
			break
		}
		if !errors.Is(err, logship.ErrBufferLocked) || time.Now().After(deadline) {
			t.Fatalf("New() after worker returned = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSink_DrainRequiresDurableMode(t *testing.T) {
	s, err := logship.New(testConfig("http://localhost:5341"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Drain(context.Background()); !errors.Is(err, logship.ErrNotDurable) {
		t.Errorf("Drain() = %v, want ErrNotDurable", err)
	}
}

// =============================================================================
// Audit mode
// =============================================================================

func TestSink_AuditReportsEachFailure(t *testing.T) {
	srv := newIngestServer(t)
	cfg := testConfig(srv.URL)
	cfg.Audit = true
	s, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	srv.status.Store(http.StatusInternalServerError)
	err = s.Emit(ctx, event(0))
	var auditErr *logship.AuditError
	if !errors.As(err, &auditErr) || !auditErr.Transient() {
		t.Fatalf("Emit() error = %v, want transient *AuditError", err)
	}

	srv.status.Store(http.StatusCreated)
	if err := s.Emit(ctx, event(1)); err != nil {
		t.Errorf("Emit() after recovery = %v, want nil", err)
	}
	if got := srv.Events(); len(got) != 1 || got[0] != payload(1) {
		t.Errorf("server events = %v", got)
	}
	if srv.Requests() != 2 {
		t.Errorf("requests = %d, want one per Emit", srv.Requests())
	}
}

func TestSink_ServerLevelSwitchFollowsDirective(t *testing.T) {
	srv := newIngestServer(t)
	srv.header.Set("X-Seq-MinimumLevelAccepted", "Warning")

	shared := logship.NewLevelSwitch(logship.LevelVerbose)
	cfg := testConfig(srv.URL)
	cfg.Audit = true
	cfg.ServerLevelSwitch = shared
	s, err := logship.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Emit(ctx, event(0)); err != nil {
		t.Fatal(err)
	}
	if shared.Level() != logship.LevelWarning {
		t.Errorf("shared switch = %v, want Warning", shared.Level())
	}

	if err := s.Emit(ctx, event(1)); err != nil {
		t.Fatal(err)
	}
	if srv.Requests() != 1 {
		t.Errorf("requests = %d, want the Information event filtered", srv.Requests())
	}
}
