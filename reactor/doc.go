// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded readiness reactor that drives
// the WebSocket server: epoll on Linux, a stub elsewhere.
package reactor
