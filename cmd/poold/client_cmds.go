package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/dreamware/pooldb/internal/client"
	"github.com/dreamware/pooldb/internal/command"
)

const defaultAddr = "http://127.0.0.1:1234"

func newUpdateCmd() *cobra.Command {
	var (
		addr   string
		key    int64
		values []float64
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Append values to a pool, creating it when absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := client.New(addr, nil).Update(cmd.Context(), command.Update{Key: key, Values: values})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "server base URL")
	cmd.Flags().Int64Var(&key, "key", 0, "pool id")
	cmd.Flags().Float64SliceVar(&values, "values", nil, "comma separated values to append")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var (
		addr       string
		key        int64
		percentile float64
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compute a percentile of a pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := client.New(addr, nil).Query(cmd.Context(), command.Query{Key: key, Percentile: percentile})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "server base URL")
	cmd.Flags().Int64Var(&key, "key", 0, "pool id")
	cmd.Flags().Float64Var(&percentile, "percentile", 0, "percentile in [0, 100]")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("percentile")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
