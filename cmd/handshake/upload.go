package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/handshake/client"
	"github.com/layer-3/handshake/service"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		server  string
		domain  string
		keyFile string
		chainID int64
		req     client.UploadRequest
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Sign in with a wallet key and register a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.LoadECDSA(keyFile)
			if err != nil {
				return fmt.Errorf("failed to load wallet key: %w", err)
			}

			api, err := client.NewAPI(server, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			address, err := api.SignIn(ctx, key, domain, chainID)
			if err != nil {
				return fmt.Errorf("sign-in failed: %w", err)
			}
			defer api.Logout(ctx)

			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)).With("wallet", address)
			result, err := client.NewUploader(api, log).Upload(ctx, args[0], req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:5001", "handshake server URL")
	cmd.Flags().StringVar(&domain, "domain", "localhost:3000", "origin the server accepts in sign-in messages (auth.domain), empty for the server host")
	cmd.Flags().StringVar(&keyFile, "key", "", "file holding the hex encoded wallet private key")
	cmd.Flags().Int64Var(&chainID, "chain-id", service.AvalancheCChainID, "chain id declared in the sign-in message")
	cmd.Flags().StringVar(&req.Name, "name", "", "model name (defaults to the file name)")
	cmd.Flags().StringVar(&req.Type, "type", "", "model type")
	cmd.Flags().StringVar(&req.Description, "description", "", "model description")
	cmd.Flags().StringVar(&req.Version, "version", "", "model version")
	cmd.Flags().StringSliceVar(&req.Parents, "parent", nil, "id of a model this one derives from (repeatable)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
