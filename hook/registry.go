package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered hooks and provides efficient
// dispatch. It uses type-cached discovery so emission never walks
// hooks that do not implement the event.
type Registry struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger

	// Type-cached hook lists for efficient dispatch
	onInit         []OnInit
	onShutdown     []OnShutdown
	onGranted      []OnGranted
	onConsumed     []OnConsumed
	onSwept        []OnSwept
	onDistributed  []OnDistributed
	onBatchFailed  []OnBatchFailed
	onInsufficient []OnInsufficient
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a hook to the registry and caches its interfaces.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.hooks {
		if existing.Name() == h.Name() {
			return fmt.Errorf("hook: duplicate registration: %s", h.Name())
		}
	}

	r.hooks = append(r.hooks, h)

	// Type-switch to cache interfaces
	if v, ok := h.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := h.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := h.(OnGranted); ok {
		r.onGranted = append(r.onGranted, v)
	}
	if v, ok := h.(OnConsumed); ok {
		r.onConsumed = append(r.onConsumed, v)
	}
	if v, ok := h.(OnSwept); ok {
		r.onSwept = append(r.onSwept, v)
	}
	if v, ok := h.(OnDistributed); ok {
		r.onDistributed = append(r.onDistributed, v)
	}
	if v, ok := h.(OnBatchFailed); ok {
		r.onBatchFailed = append(r.onBatchFailed, v)
	}
	if v, ok := h.(OnInsufficient); ok {
		r.onInsufficient = append(r.onInsufficient, v)
	}

	r.logger.Info("hook registered", "name", h.Name())
	return nil
}

// Get returns a hook by name.
func (r *Registry) Get(name string) Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.hooks {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// List returns all registered hooks.
func (r *Registry) List() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Hook, len(r.hooks))
	copy(result, r.hooks)
	return result
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all hooks that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	hooks := r.onInit
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("hook OnInit failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all hooks that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	hooks := r.onShutdown
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("hook OnShutdown failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitGranted emits a grant event.
func (r *Registry) EmitGranted(ctx context.Context, ev GrantEvent) {
	r.mu.RLock()
	hooks := r.onGranted
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnGranted(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnGranted failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitConsumed emits a consumption event.
func (r *Registry) EmitConsumed(ctx context.Context, ev ConsumeEvent) {
	r.mu.RLock()
	hooks := r.onConsumed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnConsumed(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnConsumed failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitSwept emits a sweep event.
func (r *Registry) EmitSwept(ctx context.Context, ev SweepEvent) {
	r.mu.RLock()
	hooks := r.onSwept
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnSwept(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnSwept failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitDistributed emits a distribution summary event.
func (r *Registry) EmitDistributed(ctx context.Context, ev DistributionEvent) {
	r.mu.RLock()
	hooks := r.onDistributed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnDistributed(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnDistributed failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitBatchFailed emits a batch failure event.
func (r *Registry) EmitBatchFailed(ctx context.Context, ev BatchErrorEvent) {
	r.mu.RLock()
	hooks := r.onBatchFailed
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnBatchFailed(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnBatchFailed failed", "hook", h.Name(), "error", err)
		}
	}
}

// EmitInsufficient emits a rejected-consumption event.
func (r *Registry) EmitInsufficient(ctx context.Context, ev InsufficientEvent) {
	r.mu.RLock()
	hooks := r.onInsufficient
	r.mu.RUnlock()

	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error {
			return h.OnInsufficient(ctx, ev)
		}); err != nil {
			r.logger.Warn("hook OnInsufficient failed", "hook", h.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a hook function with a timeout.
// Hooks should never block the accounting pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, hookName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("hook timeout: %s", hookName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
