/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package pglistener runs postgres LISTEN/NOTIFY subscriptions alongside a periodic
// catch-up poll per channel, so a missed or coalesced notification is never fatal.
package pglistener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// NotificationHandler processes a single notification payload.
type NotificationHandler func(ctx context.Context, notification *pgconn.Notification) error

// CatchUpFunc is run on a fixed interval as a backstop against missed notifications.
type CatchUpFunc func(ctx context.Context) error

type channelConfig struct {
	handler         NotificationHandler
	catchUp         CatchUpFunc
	catchUpInterval time.Duration
}

// Manager owns a set of registered channels and supervises one LISTEN goroutine plus
// one optional catch-up goroutine per channel via an errgroup.
type Manager struct {
	pool     *pgxpool.Pool
	channels map[string]channelConfig
}

// NewManager creates a Manager bound to pool.
func NewManager(pool *pgxpool.Pool) *Manager {
	return &Manager{pool: pool, channels: make(map[string]channelConfig)}
}

// Register adds channel along with its notification handler and optional catch-up
// poll. Pass a nil catchUp and zero interval to skip the catch-up poll for a channel.
func (m *Manager) Register(channel string, handler NotificationHandler, catchUp CatchUpFunc, interval time.Duration) {
	m.channels[channel] = channelConfig{handler: handler, catchUp: catchUp, catchUpInterval: interval}
}

// Run starts every registered channel's goroutines under an errgroup and blocks until
// ctx is cancelled. Listener and catch-up failures are logged inside their loops and
// never returned, so Run returns nil.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for channel, cfg := range m.channels {
		channel, cfg := channel, cfg
		g.Go(func() error {
			m.listenLoop(ctx, channel, cfg.handler)
			return nil
		})
		if cfg.catchUp != nil && cfg.catchUpInterval > 0 {
			g.Go(func() error {
				runCatchUp(ctx, channel, cfg.catchUpInterval, cfg.catchUp)
				return nil
			})
		}
	}
	return g.Wait()
}

// listenLoop retries listenAndProcess until ctx is cancelled, backing off a minute
// between failures so a database hiccup does not spin the CPU.
func (m *Manager) listenLoop(ctx context.Context, channel string, handler NotificationHandler) {
	for {
		if err := m.listenAndProcess(ctx, channel, handler); err != nil {
			slog.Error("listener failed, retrying", "channel", channel, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Minute):
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (m *Manager) listenAndProcess(ctx context.Context, channel string, handler NotificationHandler) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for channel %s: %w", channel, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", channel)); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
	}

	slog.Info("listening for notifications", "channel", channel)
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed waiting for notification on channel %s: %w", channel, err)
		}
		if err := handler(ctx, notification); err != nil {
			slog.Error("notification handler failed", "channel", channel, "error", err)
		}
	}
}

func runCatchUp(ctx context.Context, channel string, interval time.Duration, catchUp CatchUpFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := catchUp(ctx); err != nil {
				slog.Error("catch-up poll failed", "channel", channel, "error", err)
			}
		}
	}
}
