// Package player drives the media player that renders scheduled playlists.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Player is the control surface the activation loop needs. Every call is
// idempotent: loading the same playlist twice is harmless.
type Player interface {
	LoadAndPlay(ctx context.Context, playlist string) error
	Stop(ctx context.Context) error
	RevertToDefault(ctx context.Context) error
	CaptureScreenshot(ctx context.Context) error
}

// LogPlayer only logs what it would do. It backs dry runs and the "log" driver.
type LogPlayer struct {
	mu    sync.Mutex
	calls []string
}

func NewLogPlayer() *LogPlayer { return &LogPlayer{} }

func (p *LogPlayer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
	log.Info().Str("call", call).Msg("player (dry run)")
}

func (p *LogPlayer) LoadAndPlay(_ context.Context, playlist string) error {
	p.record("load:" + playlist)
	return nil
}

func (p *LogPlayer) Stop(context.Context) error {
	p.record("stop")
	return nil
}

func (p *LogPlayer) RevertToDefault(context.Context) error {
	p.record("revert")
	return nil
}

func (p *LogPlayer) CaptureScreenshot(context.Context) error {
	p.record("screenshot")
	return nil
}

// Calls returns the recorded calls in order.
func (p *LogPlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// TimeoutPlayer bounds every call to the wrapped player.
type TimeoutPlayer struct {
	next    Player
	timeout time.Duration
}

func WithTimeout(next Player, timeout time.Duration) Player {
	if timeout <= 0 {
		return next
	}
	return &TimeoutPlayer{next: next, timeout: timeout}
}

func (p *TimeoutPlayer) run(ctx context.Context, action string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", action, ctx.Err())
	}
}

func (p *TimeoutPlayer) LoadAndPlay(ctx context.Context, playlist string) error {
	return p.run(ctx, "load", func(ctx context.Context) error { return p.next.LoadAndPlay(ctx, playlist) })
}

func (p *TimeoutPlayer) Stop(ctx context.Context) error {
	return p.run(ctx, "stop", p.next.Stop)
}

func (p *TimeoutPlayer) RevertToDefault(ctx context.Context) error {
	return p.run(ctx, "revert", p.next.RevertToDefault)
}

func (p *TimeoutPlayer) CaptureScreenshot(ctx context.Context) error {
	return p.run(ctx, "screenshot", p.next.CaptureScreenshot)
}
