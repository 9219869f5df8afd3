// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package nettle

import "time"

// --- Executor options ---

// loopOptions holds configuration resolved from LoopOption values and
// applied to a freshly constructed Executor by NewExecutor.
type loopOptions struct {
	strictMicrotaskOrdering bool
	fastPathMode            FastPathMode
	selectStrategy          SelectStrategy
}

// FastPathMode selects whether SubmitInternal may execute a task
// immediately instead of queueing it, per loop.go's dual fast/I/O path
// design.
type FastPathMode int

const (
	// FastPathAuto enables the fast path; it is harmless even when I/O FDs
	// are registered, since the runtime already falls back to pipe-based
	// wakeup whenever userIOFDCount > 0.
	FastPathAuto FastPathMode = iota
	FastPathEnabled
	FastPathDisabled
)

// LoopOption configures an Executor instance constructed via NewExecutor.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
//
// Grounded on this same closure-option pattern from the teacher's original
// options.go.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithStrictMicrotaskOrdering sets whether microtasks should be drained
// after each task execution for strict ordering. When enabled, microtasks
// are guaranteed to run after every task. When disabled (default),
// microtasks are drained in batches for better performance.
func WithStrictMicrotaskOrdering(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.strictMicrotaskOrdering = enabled
		return nil
	}}
}

// WithFastPathMode sets the fast path mode for the Executor.
func WithFastPathMode(mode FastPathMode) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.fastPathMode = mode
		return nil
	}}
}

// WithSelectStrategy replaces the Executor's per-iteration poll decision.
// See SelectStrategy; nil keeps the default.
func WithSelectStrategy(s SelectStrategy) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.selectStrategy = s
		return nil
	}}
}

func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{fastPathMode: FastPathAuto}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// NewExecutor constructs an Executor (the §4.1 single-threaded cooperative
// runner) and applies opts. It is the entry point SPEC_FULL.md's
// components use, in preference to calling the lower-level New directly.
func NewExecutor(opts ...LoopOption) (*Executor, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	l, err := New()
	if err != nil {
		return nil, err
	}
	l.StrictMicrotaskOrdering = cfg.strictMicrotaskOrdering
	l.SetFastPathEnabled(cfg.fastPathMode != FastPathDisabled)
	if cfg.selectStrategy != nil {
		l.selectStrategy = cfg.selectStrategy
	}
	return l, nil
}

// --- Channel options (§6) ---

// channelConfig holds the resolved value of every recognized ChannelOption.
type channelConfig struct {
	connectTimeout      time.Duration
	writeSpinCount      int
	allocator           Allocator
	rcvAllocator        RecvByteBufAllocator
	autoRead            bool
	autoClose           bool // deprecated; see DESIGN.md Open Question (a)
	writeBufferHighMark int
	writeBufferLowMark  int
	sizeEstimator       MessageSizeEstimator
	maxMessagesPerRead  int
}

func defaultChannelConfig() *channelConfig {
	return &channelConfig{
		connectTimeout:      30 * time.Second,
		writeSpinCount:      16,
		allocator:           NewHeapAllocator(0),
		rcvAllocator:        NewAdaptiveRecvByteBufAllocator(),
		autoRead:            true,
		autoClose:           false,
		writeBufferHighMark: 64 * 1024,
		writeBufferLowMark:  32 * 1024,
		sizeEstimator:       defaultMessageSizeEstimator{},
		maxMessagesPerRead:  16,
	}
}

// ChannelOption configures a Channel, mirroring the §6 options table
// (CONNECT_TIMEOUT_MILLIS, WRITE_SPIN_COUNT, ALLOCATOR, ...).
type ChannelOption interface {
	applyChannel(*channelConfig) error
}

type channelOptionImpl struct {
	fn func(*channelConfig) error
}

func (c *channelOptionImpl) applyChannel(cfg *channelConfig) error {
	return c.fn(cfg)
}

// WithConnectTimeout sets CONNECT_TIMEOUT_MILLIS; zero means unlimited.
func WithConnectTimeout(d time.Duration) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		c.connectTimeout = d
		return nil
	}}
}

// WithWriteSpinCount sets WRITE_SPIN_COUNT: the max write-loop iterations
// per flush before yielding back to the executor.
func WithWriteSpinCount(n int) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		if n <= 0 {
			return ErrProtocolViolation
		}
		c.writeSpinCount = n
		return nil
	}}
}

// WithAllocator sets ALLOCATOR.
func WithAllocator(a Allocator) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		c.allocator = a
		return nil
	}}
}

// WithRecvByteBufAllocator sets RCVBUF_ALLOCATOR.
func WithRecvByteBufAllocator(r RecvByteBufAllocator) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		c.rcvAllocator = r
		return nil
	}}
}

// WithAutoRead sets AUTO_READ: if true, the loop issues a read implicitly
// after each read-complete.
func WithAutoRead(enabled bool) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		c.autoRead = enabled
		return nil
	}}
}

// WithAutoClose sets the deprecated AUTO_CLOSE switch. Per DESIGN.md's
// Open Question (a) decision, this flag never actually triggers an
// auto-close on write failure in this implementation; it is kept only so
// callers migrating legacy configuration have somewhere to set it.
func WithAutoClose(enabled bool) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		c.autoClose = enabled
		return nil
	}}
}

// WithWriteBufferWaterMark sets WRITE_BUFFER_HIGH_WATER_MARK and
// WRITE_BUFFER_LOW_WATER_MARK together (the WRITE_BUFFER_WATER_MARK
// composite option). Requires 0 <= low <= high.
func WithWriteBufferWaterMark(low, high int) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		if low < 0 || low > high {
			return ErrProtocolViolation
		}
		c.writeBufferLowMark = low
		c.writeBufferHighMark = high
		return nil
	}}
}

// WithMessageSizeEstimator sets MESSAGE_SIZE_ESTIMATOR.
func WithMessageSizeEstimator(e MessageSizeEstimator) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		c.sizeEstimator = e
		return nil
	}}
}

// WithMaxMessagesPerRead sets MAX_MESSAGES_PER_READ.
func WithMaxMessagesPerRead(n int) ChannelOption {
	return &channelOptionImpl{func(c *channelConfig) error {
		if n <= 0 {
			return ErrProtocolViolation
		}
		c.maxMessagesPerRead = n
		return nil
	}}
}

func resolveChannelOptions(opts []ChannelOption) (*channelConfig, error) {
	cfg := defaultChannelConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyChannel(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
