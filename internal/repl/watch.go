package repl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// escWatcher 在任务运行期间以 raw 模式读取终端，Esc 或 Ctrl+C 触发 onCancel
// escWatcher reads the terminal in raw mode while a task runs; Esc or Ctrl+C triggers onCancel
type escWatcher struct {
	fd       int
	oldTerm  *term.State
	onCancel func()

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
	err    error
}

func startEscWatcher(fd int, onCancel func()) (*escWatcher, error) {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enable raw mode: %w", err)
	}
	w := &escWatcher{
		fd:       fd,
		oldTerm:  old,
		onCancel: onCancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *escWatcher) Stop() error {
	w.once.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		w.err = term.Restore(w.fd, w.oldTerm)
	})
	return w.err
}

func (w *escWatcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		b, ok := w.readByte(80 * time.Millisecond)
		if !ok {
			continue
		}
		switch b {
		case 0x1b, 0x03:
			w.onCancel()
		}
	}
}

func (w *escWatcher) readByte(timeout time.Duration) (byte, bool) {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil || n <= 0 {
		return 0, false
	}
	if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
		return 0, false
	}
	var one [1]byte
	nr, err := unix.Read(w.fd, one[:])
	if err != nil && !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EAGAIN) {
		return 0, false
	}
	if nr != 1 {
		return 0, false
	}
	return one[0], true
}
