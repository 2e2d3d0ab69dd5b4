package task

import (
	"errors"
	"sync"
	"testing"

	"rookit/internal/logging"
)

type fakeHandle struct {
	id       string
	aborts   int
	abortErr error
	panicMsg string
	onAbort  func()
	mu       sync.Mutex
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Abort() error {
	h.mu.Lock()
	h.aborts++
	h.mu.Unlock()
	if h.onAbort != nil {
		h.onAbort()
	}
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.abortErr
}

func (h *fakeHandle) abortCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborts
}

func TestStackSizeTracksPushesMinusPops(t *testing.T) {
	s := NewStack(logging.Discard())
	ops := []string{"push", "push", "pop", "push", "pop", "pop", "pop", "push"}
	pushes, pops := 0, 0
	for i, op := range ops {
		switch op {
		case "push":
			if err := s.Push(&fakeHandle{id: string(rune('a' + i))}); err != nil {
				t.Fatalf("Push: %v", err)
			}
			pushes++
		case "pop":
			if _, ok := s.PopCurrent(); ok {
				pops++
			}
		}
		if got, want := s.Size(), pushes-pops; got != want {
			t.Fatalf("after op %d (%s) Size()=%d, want %d", i, op, got, want)
		}
	}
}

func TestStackPopEmpty(t *testing.T) {
	s := NewStack(logging.Discard())
	h, ok := s.PopCurrent()
	if ok || h != nil {
		t.Fatalf("PopCurrent on empty = (%v, %v), want (nil, false)", h, ok)
	}
	if s.Size() != 0 {
		t.Fatalf("Size()=%d, want 0", s.Size())
	}
	if _, ok := s.Current(); ok {
		t.Fatal("Current on empty should report false")
	}
}

func TestStackPushPushPop(t *testing.T) {
	s := NewStack(logging.Discard())
	h1 := &fakeHandle{id: "h1"}
	h2 := &fakeHandle{id: "h2"}
	_ = s.Push(h1)
	_ = s.Push(h2)

	if cur, _ := s.Current(); cur != h2 {
		t.Fatalf("Current()=%v, want h2", cur)
	}
	if h1.abortCount() != 0 {
		t.Fatal("pushing h2 must not abort h1")
	}

	popped, ok := s.PopCurrent()
	if !ok || popped != h2 {
		t.Fatalf("PopCurrent=(%v,%v), want h2", popped, ok)
	}
	if h2.abortCount() != 1 {
		t.Fatalf("h2 aborts=%d, want 1", h2.abortCount())
	}
	if cur, _ := s.Current(); cur != h1 {
		t.Fatalf("Current()=%v after pop, want h1", cur)
	}
	if h1.abortCount() != 0 {
		t.Fatalf("h1 aborts=%d, want 0", h1.abortCount())
	}
	if s.Size() != 1 {
		t.Fatalf("Size()=%d, want 1", s.Size())
	}
}

func TestStackPopSurvivesAbortFailure(t *testing.T) {
	s := NewStack(logging.Discard())
	_ = s.Push(&fakeHandle{id: "ok"})
	_ = s.Push(&fakeHandle{id: "err", abortErr: errors.New("abort failed")})
	_ = s.Push(&fakeHandle{id: "panic", panicMsg: "boom"})

	if h, ok := s.PopCurrent(); !ok || h.ID() != "panic" {
		t.Fatalf("PopCurrent=(%v,%v), want panic", h, ok)
	}
	if h, ok := s.PopCurrent(); !ok || h.ID() != "err" {
		t.Fatalf("PopCurrent=(%v,%v), want err", h, ok)
	}
	if s.Size() != 1 {
		t.Fatalf("Size()=%d, want 1", s.Size())
	}
}

func TestStackPopAbortsWhileStillOnTop(t *testing.T) {
	tests := []struct {
		name     string
		abortErr error
		panicMsg string
	}{
		{name: "clean"},
		{name: "abort error", abortErr: errors.New("abort failed")},
		{name: "abort panic", panicMsg: "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStack(logging.Discard())
			sizeAtAbort := -1
			topAtAbort := ""
			h := &fakeHandle{id: "top", abortErr: tt.abortErr, panicMsg: tt.panicMsg}
			h.onAbort = func() {
				sizeAtAbort = s.Size()
				if cur, ok := s.Current(); ok {
					topAtAbort = cur.ID()
				}
			}
			_ = s.Push(h)

			if got, ok := s.PopCurrent(); !ok || got.ID() != "top" {
				t.Fatalf("PopCurrent=(%v,%v), want top", got, ok)
			}
			if sizeAtAbort != 1 || topAtAbort != "top" {
				t.Fatalf("during Abort size=%d top=%q, want 1 %q", sizeAtAbort, topAtAbort, "top")
			}
			if s.Size() != 0 {
				t.Fatalf("Size()=%d, want 0", s.Size())
			}
		})
	}
}

func TestStackDuplicateAndFind(t *testing.T) {
	s := NewStack(logging.Discard())
	h := &fakeHandle{id: "same"}
	if err := s.Push(h); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := s.Push(&fakeHandle{id: "same"}); !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("Push duplicate err=%v, want ErrDuplicateTask", err)
	}
	if got, ok := s.Find("same"); !ok || got != h {
		t.Fatalf("Find=(%v,%v)", got, ok)
	}
	if _, ok := s.Find("missing"); ok {
		t.Fatal("Find(missing) should be false")
	}
}

func TestStackClearAbortsEveryTask(t *testing.T) {
	s := NewStack(logging.Discard())
	hs := []*fakeHandle{{id: "a"}, {id: "b"}, {id: "c"}}
	for _, h := range hs {
		_ = s.Push(h)
	}
	if got := s.IDs(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("IDs()=%v", got)
	}
	s.Clear()
	if s.Size() != 0 {
		t.Fatalf("Size()=%d after Clear, want 0", s.Size())
	}
	for _, h := range hs {
		if h.abortCount() != 1 {
			t.Fatalf("%s aborts=%d, want 1", h.id, h.abortCount())
		}
	}
}
