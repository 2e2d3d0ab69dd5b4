package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rookit/internal/logging"
)

// ErrDuplicateTask 同一 ID 的任务已在栈上
// ErrDuplicateTask reports a push of an ID that is already on the stack
var ErrDuplicateTask = errors.New("task: already on the stack")

// Handle 栈所需的最小任务接口
// Handle is the narrow view of a task the stack needs
type Handle interface {
	ID() string
	Abort() error
}

// Stack 任务栈；最后一个元素为当前任务
// Stack is the ordered task stack; the last element is the current task.
//
// Push does not pause or abort the previous top. PopCurrent keeps the top on
// the stack while it aborts and removes it afterwards, even when Abort fails or panics.
type Stack struct {
	mu     sync.Mutex
	items  []Handle
	logger *slog.Logger
}

func NewStack(logger *slog.Logger) *Stack {
	return &Stack{logger: logging.Or(logger).With("component", "task_stack")}
}

func (s *Stack) Push(h Handle) error {
	if h == nil {
		return fmt.Errorf("task: push nil handle")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID() == h.ID() {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, h.ID())
		}
	}
	s.items = append(s.items, h)
	s.logger.Debug("task pushed", "task_id", h.ID(), "size", len(s.items))
	return nil
}

// PopCurrent 先中止栈顶再移除同一任务；空栈返回 (nil, false)
// PopCurrent aborts the top and then removes that same handle.
// It returns (nil, false) on an empty stack.
func (s *Stack) PopCurrent() (Handle, bool) {
	h, ok := s.Current()
	if !ok {
		return nil, false
	}
	s.abort(h)

	s.mu.Lock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].ID() == h.ID() {
			copy(s.items[i:], s.items[i+1:])
			s.items[len(s.items)-1] = nil
			s.items = s.items[:len(s.items)-1]
			break
		}
	}
	size := len(s.items)
	s.mu.Unlock()

	s.logger.Debug("task popped", "task_id", h.ID(), "size", size)
	return h, true
}

func (s *Stack) abort(h Handle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task abort panicked", "task_id", h.ID(), "panic", fmt.Sprint(r))
		}
	}()
	if err := h.Abort(); err != nil {
		s.logger.Warn("task abort failed", "task_id", h.ID(), "error", err)
	}
}

func (s *Stack) Current() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

func (s *Stack) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Stack) Find(id string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID() == id {
			return it, true
		}
	}
	return nil, false
}

// IDs returns the task IDs from bottom to top.
func (s *Stack) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.items))
	for i, it := range s.items {
		out[i] = it.ID()
	}
	return out
}

// Clear pops every entry, aborting each, top first.
func (s *Stack) Clear() {
	for {
		if _, ok := s.PopCurrent(); !ok {
			return
		}
	}
}
