package main

import (
	"fmt"

	"github.com/layer-3/handshake/hasher"
	"github.com/spf13/cobra"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the content hash the registry uses for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := hasher.SumFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
}
