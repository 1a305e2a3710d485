// Copyright (c) 2024 Contributors to the Eclipse Foundation
//
// See the NOTICE file(s) distributed with this work for additional
// information regarding copyright ownership.
//
// This program and the accompanying materials are made available under the
// terms of the Apache Software License 2.0 which is available at
// https://www.apache.org/licenses/LICENSE-2.0, or the MIT license
// which is available at https://opensource.org/licenses/MIT.
//
// SPDX-License-Identifier: Apache-2.0 OR MIT

package lola

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ferrox-auto/lola/internal/slotengine"
)

// DeathCallback is notified exactly once when a tracked participant is
// found dead (spec §6: "The core relies on an external liveness oracle
// ... described as an input callback on the runtime; recovery of stale
// reference counts is driven by it").
type DeathCallback func(pid int32)

type trackedParticipant struct {
	pid         int32
	eb          *slotengine.EventBuffer
	participant uint32
	class       slotengine.QoSClass
}

// Liveness is the default liveness oracle (SPEC_FULL §1.4):
// gopsutil-backed process-existence polling, with a heartbeat-file
// fallback for environments without /proc. Recovery passes run from
// whichever goroutine's poll first observes a tracked pid as dead.
type Liveness struct {
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	tracked  map[int32][]*trackedParticipant // pid -> every participant slot it holds, across events
	callback DeathCallback

	stop chan struct{}
	once sync.Once
}

func newLiveness(interval time.Duration) *Liveness {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	l := &Liveness{interval: interval, logger: zerolog.Nop(), tracked: make(map[int32][]*trackedParticipant), stop: make(chan struct{})}
	go l.loop()
	return l
}

// WithLogger attaches a logger that receives an Info event on every
// recovery pass that reclaims a dead participant (SPEC_FULL §1.1). Returns
// l for chaining; the zero zerolog.Logger (the default) discards silently.
func (l *Liveness) WithLogger(logger zerolog.Logger) *Liveness {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
	return l
}

// OnDeath registers the callback invoked when a tracked pid is found dead.
func (l *Liveness) OnDeath(cb DeathCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = cb
}

// Track associates a subscriber process with the transaction-log
// participant it must be recovered from if found dead. One process may
// hold participant slots on several event buffers at once (one per
// subscription), so entries accumulate per pid rather than replace.
func (l *Liveness) Track(pid int32, eb *slotengine.EventBuffer, participant uint32, class slotengine.QoSClass) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracked[pid] = append(l.tracked[pid], &trackedParticipant{pid: pid, eb: eb, participant: participant, class: class})
}

// Untrack stops tracking the single (pid, eb, participant) triple, e.g.
// after a clean Unsubscribe; other participant slots held by the same pid
// are left tracked.
func (l *Liveness) Untrack(pid int32, eb *slotengine.EventBuffer, participant uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.tracked[pid]
	for i, tp := range list {
		if tp.eb == eb && tp.participant == participant {
			l.tracked[pid] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(l.tracked[pid]) == 0 {
		delete(l.tracked, pid)
	}
}

func (l *Liveness) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Liveness) sweep() {
	l.mu.Lock()
	dead := make([]*trackedParticipant, 0)
	for pid, list := range l.tracked {
		if !isAlive(pid) {
			dead = append(dead, list...)
			delete(l.tracked, pid)
		}
	}
	cb := l.callback
	logger := l.logger
	l.mu.Unlock()

	for _, tp := range dead {
		recovered := tp.eb.Recover(tp.participant, tp.class)
		logger.Info().
			Int32("pid", tp.pid).
			Uint32("participant", tp.participant).
			Int("recovered", recovered).
			Msg("liveness: recovered dead participant")
		if cb != nil {
			cb(tp.pid)
		}
	}
}

// isAlive checks process liveness via gopsutil's /proc-backed PidExists,
// falling back to a heartbeat file for environments without /proc (SPEC_FULL
// §1.4).
func isAlive(pid int32) bool {
	alive, err := process.PidExists(pid)
	if err == nil {
		return alive
	}
	return heartbeatFresh(pid)
}

func heartbeatPath(pid int32) string {
	return os.TempDir() + "/lola-heartbeat-" + itoa(pid)
}

// heartbeatFresh treats a participant as alive if its heartbeat file was
// touched within the last 600ms (three of the default 200ms poll
// intervals, whatever interval the Liveness was built with); used only
// when gopsutil cannot answer PidExists (e.g. a sandboxed environment with
// no /proc).
func heartbeatFresh(pid int32) bool {
	info, err := os.Stat(heartbeatPath(pid))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < 3*200*time.Millisecond
}

// Heartbeat touches this process's heartbeat file, for use as the
// liveness fallback signal.
func Heartbeat() error {
	path := heartbeatPath(int32(os.Getpid()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	f.Close()
	now := time.Now()
	return os.Chtimes(path, now, now)
}

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Close stops the liveness polling loop.
func (l *Liveness) Close() {
	l.once.Do(func() { close(l.stop) })
}
