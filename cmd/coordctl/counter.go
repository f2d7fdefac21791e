package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkobrombin/go-coord/v1/counter"
)

var (
	counterStep   int64
	counterBase   int64
	counterExpiry time.Duration

	counterCmd = &cobra.Command{
		Use:   "counter",
		Short: "Integer counter operations",
	}
	counterIncrCmd = &cobra.Command{
		Use:   "incr [name]",
		Short: "Add --step to the counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(args[0], func(c *counter.Counter) error {
				n, err := c.Increase(cmd.Context(), counterStep)
				if err == nil {
					out(cmd, "value=%d", n)
				}
				return err
			})
		},
	}
	counterDecrCmd = &cobra.Command{
		Use:   "decr [name]",
		Short: "Subtract --step from the counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(args[0], func(c *counter.Counter) error {
				n, err := c.Decrease(cmd.Context(), counterStep)
				if err == nil {
					out(cmd, "value=%d", n)
				}
				return err
			})
		},
	}
	counterGetCmd = &cobra.Command{
		Use:   "get [name]",
		Short: "Print the counter value and TTL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(args[0], func(c *counter.Counter) error {
				n, err := c.Count(cmd.Context())
				if err != nil {
					return err
				}
				ttl, err := c.TTL(cmd.Context())
				if err == nil {
					out(cmd, "value=%d ttl=%s", n, ttl)
				}
				return err
			})
		},
	}
	counterResetCmd = &cobra.Command{
		Use:   "reset [name]",
		Short: "Write --base back to the counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(args[0], func(c *counter.Counter) error {
				err := c.Reset(cmd.Context())
				if err == nil {
					out(cmd, "value=%d", c.Base())
				}
				return err
			})
		},
	}
	counterDeleteCmd = &cobra.Command{
		Use:   "delete [name]",
		Short: "Remove the counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(args[0], func(c *counter.Counter) error {
				ok, err := c.Delete(cmd.Context())
				if err == nil {
					out(cmd, "deleted=%v", ok)
				}
				return err
			})
		},
	}
)

func init() {
	counterCmd.PersistentFlags().Int64Var(&counterStep, "step", 1, "increment")
	counterCmd.PersistentFlags().Int64Var(&counterBase, "base", 0, "starting value")
	counterCmd.PersistentFlags().DurationVar(&counterExpiry, "expiry", 0, "counter TTL (0 for none)")
	counterCmd.AddCommand(counterIncrCmd, counterDecrCmd, counterGetCmd, counterResetCmd, counterDeleteCmd)
}

func withCounter(name string, fn func(*counter.Counter) error) error {
	c, err := counter.New(cl, name, counter.WithBase(counterBase), counter.WithExpiry(counterExpiry))
	if err != nil {
		return err
	}
	return fn(c)
}
