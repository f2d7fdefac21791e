package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkobrombin/go-coord/v1/firewall"
	"github.com/mirkobrombin/go-coord/v1/ratelimit"
)

var (
	rlLimit  int64
	rlExpiry time.Duration

	ratelimitCmd = &cobra.Command{
		Use:   "ratelimit",
		Short: "Concurrency limiter operations",
	}
	rlAcquireCmd = &cobra.Command{
		Use:   "acquire [name]",
		Short: "Take a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLimiter(args[0], func(l *ratelimit.Limiter) error {
				ok, err := l.Acquire(cmd.Context())
				if err == nil {
					out(cmd, "acquired=%v", ok)
				}
				return err
			})
		},
	}
	rlReleaseCmd = &cobra.Command{
		Use:   "release [name]",
		Short: "Give a slot back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLimiter(args[0], func(l *ratelimit.Limiter) error {
				ok, err := l.Release(cmd.Context())
				if err == nil {
					out(cmd, "released=%v", ok)
				}
				return err
			})
		},
	}
	rlCountCmd = &cobra.Command{
		Use:   "count [name]",
		Short: "Print slots in use and available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLimiter(args[0], func(l *ratelimit.Limiter) error {
				n, err := l.Count(cmd.Context())
				if err != nil {
					return err
				}
				avail, err := l.Available(cmd.Context())
				if err == nil {
					out(cmd, "used=%d available=%d", n, avail)
				}
				return err
			})
		},
	}

	fwLimit  int64
	fwWindow time.Duration
	fwAtomic bool

	firewallCmd = &cobra.Command{
		Use:   "firewall",
		Short: "Fixed-window firewall operations",
	}
	fwHitCmd = &cobra.Command{
		Use:   "hit [name]",
		Short: "Record a hit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFirewall(args[0], func(f *firewall.Firewall) error {
				ok, err := f.Hit(cmd.Context())
				if err == nil {
					out(cmd, "accepted=%v", ok)
				}
				return err
			})
		},
	}
	fwCountCmd = &cobra.Command{
		Use:   "count [name]",
		Short: "Print hits in the current window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFirewall(args[0], func(f *firewall.Firewall) error {
				n, err := f.Count(cmd.Context())
				if err != nil {
					return err
				}
				rem, err := f.Remaining(cmd.Context())
				if err == nil {
					out(cmd, "hits=%d remaining=%s", n, rem)
				}
				return err
			})
		},
	}
)

func init() {
	ratelimitCmd.PersistentFlags().Int64Var(&rlLimit, "limit", 1, "maximum slots")
	ratelimitCmd.PersistentFlags().DurationVar(&rlExpiry, "expiry", 0, "limiter TTL (0 for none)")
	ratelimitCmd.AddCommand(rlAcquireCmd, rlReleaseCmd, rlCountCmd)

	firewallCmd.PersistentFlags().Int64Var(&fwLimit, "limit", 1, "hits per window")
	firewallCmd.PersistentFlags().DurationVar(&fwWindow, "window", firewall.DefaultWindow, "window length")
	firewallCmd.PersistentFlags().BoolVar(&fwAtomic, "atomic", false, "check and count in one server-side step")
	firewallCmd.AddCommand(fwHitCmd, fwCountCmd)
}

func withLimiter(name string, fn func(*ratelimit.Limiter) error) error {
	l, err := ratelimit.New(cl, name, rlLimit, ratelimit.WithExpiry(rlExpiry))
	if err != nil {
		return err
	}
	return fn(l)
}

func withFirewall(name string, fn func(*firewall.Firewall) error) error {
	opts := []firewall.Option{firewall.WithExpiry(fwWindow)}
	if fwAtomic {
		opts = append(opts, firewall.WithAtomicHits())
	}
	f, err := firewall.New(cl, name, fwLimit, opts...)
	if err != nil {
		return err
	}
	return fn(f)
}
