package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkobrombin/go-coord/v1/value"
)

var (
	valueTTL time.Duration

	valueCmd = &cobra.Command{
		Use:   "value",
		Short: "Plain string values",
	}
	valueGetCmd = &cobra.Command{
		Use:   "get [name]",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := value.New[string](cl, args[0])
			if err != nil {
				return err
			}
			s, found, err := v.Get(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				out(cmd, "found=false")
				return nil
			}
			out(cmd, "found=true value=%s", s)
			return nil
		},
	}
	valueSetCmd = &cobra.Command{
		Use:   "set [name] [value]",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := value.New[string](cl, args[0])
			if err != nil {
				return err
			}
			if err := v.Set(cmd.Context(), args[1], valueTTL); err != nil {
				return err
			}
			out(cmd, "ok")
			return nil
		},
	}
	valueDeleteCmd = &cobra.Command{
		Use:   "delete [name]",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := value.New[string](cl, args[0])
			if err != nil {
				return err
			}
			ok, err := v.Delete(cmd.Context())
			if err == nil {
				out(cmd, "deleted=%v", ok)
			}
			return err
		},
	}
)

func init() {
	valueSetCmd.Flags().DurationVar(&valueTTL, "ttl", 0, "value TTL (0 for none)")
	valueCmd.AddCommand(valueGetCmd, valueSetCmd, valueDeleteCmd)
}
