//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// epollReactor implements Reactor using level-triggered epoll.
type epollReactor struct {
	epfd      int
	callbacks sync.Map // map[int]Callback
	events    [maxEvents]unix.EpollEvent
	log       *slog.Logger
}

func newEpollReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{
		epfd: epfd,
		log:  slog.Default().With("component", "reactor"),
	}, nil
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd int, cb Callback) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	r.callbacks.Store(fd, cb)
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Unregister(fd int) error {
	r.callbacks.Delete(fd)
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Poll blocks up to timeout and dispatches ready descriptors.
func (r *epollReactor) Poll(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(r.epfd, r.events[:], ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)
		val, ok := r.callbacks.Load(fd)
		if !ok {
			continue
		}
		var mask EventMask
		if ev.Events&unix.EPOLLIN != 0 {
			mask |= EventRead
		}
		if ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			mask |= EventHangup
		}
		if ev.Events&unix.EPOLLERR != 0 {
			mask |= EventError
		}
		r.dispatch(val.(Callback), fd, mask)
		dispatched++
	}
	return dispatched, nil
}

// dispatch keeps the loop alive when a callback panics.
func (r *epollReactor) dispatch(cb Callback, fd int, mask EventMask) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("callback panic", "fd", fd, "panic", p)
		}
	}()
	cb(fd, mask)
}

// Close releases the epoll file descriptor.
func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
