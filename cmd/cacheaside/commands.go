package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/cacheaside"
	"github.com/unkn0wn-root/cacheaside/internal/sqlsource"
)

func warmCmd(load loadFunc) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Load every source row into the cache as logical-expiry entries",
		Long:  "Warm hot keys ahead of traffic; logical-expiry reads only serve warmed keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.source.All(ctx)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Cache.TTL
			}
			for _, r := range rows {
				if err := a.client.SetWithLogicalExpire(ctx, a.key(r.ID), r.Record, ttl); err != nil {
					return fmt.Errorf("warm %s: %w", a.key(r.ID), err)
				}
			}
			a.log.Info("cache warmed", zap.Int("keys", len(rows)), zap.Duration("ttl", ttl))
			return writeJSON(cmd.OutOrStdout(), map[string]any{"warmed": len(rows), "ttl": ttl.String()})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Logical TTL (default CACHE_TTL)")
	return cmd
}

type getResult struct {
	Key      string           `json:"key"`
	Strategy string           `json:"strategy"`
	Found    bool             `json:"found"`
	Value    sqlsource.Record `json:"value,omitempty"`
}

func getCmd(load loadFunc) *cobra.Command {
	var (
		strategy string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Read one record through the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			query, name, err := pickStrategy(a.client, strategy)
			if err != nil {
				return err
			}
			id := args[0]
			v, found, err := query(ctx, cfg.Cache.Prefix, id, a.source.Load, ttl)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), getResult{Key: a.key(id), Strategy: name, Found: found, Value: v})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "pass", "Read strategy: pass, logical or mutex")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Entry TTL (default CACHE_TTL)")
	return cmd
}

type queryFunc func(ctx context.Context, prefix, id string, load cacheaside.Loader[string, sqlsource.Record], ttl time.Duration) (sqlsource.Record, bool, error)

func pickStrategy(c cacheaside.Client[string, sqlsource.Record], s string) (queryFunc, string, error) {
	switch s {
	case "pass", cacheaside.StrategyPassThrough:
		return c.QueryWithPassThrough, cacheaside.StrategyPassThrough, nil
	case "logical", cacheaside.StrategyLogicalExpire:
		return c.QueryWithLogicalExpire, cacheaside.StrategyLogicalExpire, nil
	case "mutex", cacheaside.StrategyMutex:
		return c.QueryWithMutex, cacheaside.StrategyMutex, nil
	default:
		return nil, "", fmt.Errorf("unknown strategy %q: want pass, logical or mutex", s)
	}
}

func invalidateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <id>...",
		Short: "Delete cache entries after the source was updated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			keys := make([]string, 0, len(args))
			for _, id := range args {
				if err := a.client.Delete(ctx, a.key(id)); err != nil {
					return fmt.Errorf("invalidate %s: %w", a.key(id), err)
				}
				keys = append(keys, a.key(id))
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"invalidated": keys})
		},
	}
}

type lockResult struct {
	Name     string `json:"name"`
	Key      string `json:"key"`
	Token    string `json:"token,omitempty"`
	Acquired bool   `json:"acquired"`
	Released bool   `json:"released"`
}

func lockCmd(load loadFunc) *cobra.Command {
	var (
		ttl     time.Duration
		holdFor time.Duration
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "lock <name> [-- command [args...]]",
		Short: "Hold a distributed lock, optionally while running a command",
		Long: "Acquire lock:<name>. With a command, run it under the lock and release afterwards. " +
			"Without one, hold the lock for --for (or until interrupted) and release.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.locker.NewMutex(args[0])
			res := lockResult{Name: m.Name(), Key: m.Key()}
			if wait {
				if err := m.Lock(ctx, ttl); err != nil {
					_ = writeJSON(cmd.OutOrStdout(), res)
					return err
				}
			} else if !m.TryLock(ctx, ttl) {
				_ = writeJSON(cmd.OutOrStdout(), res)
				return fmt.Errorf("%w: %s", cacheaside.ErrLockNotAcquired, m.Key())
			}
			res.Acquired, res.Token = true, m.Token()
			a.log.Info("lock acquired", zap.String("key", m.Key()))

			runErr := holdLock(ctx, args[1:], holdFor)
			res.Released = m.Unlock(context.WithoutCancel(ctx))
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lock record TTL (default LOCK_TTL)")
	cmd.Flags().DurationVar(&holdFor, "for", 0, "Hold time when no command is given; 0 = until interrupted")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the lock is free instead of failing at once")
	return cmd
}

// holdLock runs argv, or waits for d or ctx when argv is empty.
func holdLock(ctx context.Context, argv []string, d time.Duration) error {
	if len(argv) > 0 {
		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stderr, os.Stderr
		return c.Run()
	}
	if d <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return nil
}
