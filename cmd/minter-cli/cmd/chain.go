package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"minter-core/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <tx-hash>",
	Short: "Query a receipt from every provider and print the agreed result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(strings.TrimPrefix(args[0], "0x")) != 2*common.HashLength {
			return fmt.Errorf("invalid transaction hash %q", args[0])
		}
		_, res, err := loadResources()
		if err != nil {
			return err
		}
		defer res.Close()

		chain, err := res.Chain(cmd.Context())
		if err != nil {
			return err
		}
		r, err := chain.TransactionReceipt(cmd.Context(), common.HexToHash(args[0]))
		if err != nil {
			return err
		}
		if !r.Found {
			fmt.Fprintln(cmd.OutOrStdout(), "receipt not found")
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(r.Receipt)
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Broadcast a signed raw transaction to every provider",
	Long:  `Reads a hex encoded signed transaction from --input (or --raw) and sends it to all providers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("raw")
		if input, _ := cmd.Flags().GetString("input"); raw == "" && input != "" {
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			raw = strings.TrimSpace(string(data))
		}
		if raw == "" {
			return fmt.Errorf("one of --raw or --input is required")
		}
		rawBytes, err := hexutil.Decode(raw)
		if err != nil {
			return fmt.Errorf("decode raw transaction: %w", err)
		}
		tx, err := types.DecodeSignedTransaction(rawBytes)
		if err != nil {
			return err
		}

		_, res, err := loadResources()
		if err != nil {
			return err
		}
		defer res.Close()

		chain, err := res.Chain(cmd.Context())
		if err != nil {
			return err
		}
		result, err := chain.SendRawTransaction(cmd.Context(), rawBytes)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s nonce=%d: %s\n", tx.Hash.Hex(), tx.Transaction.Nonce, result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(receiptCmd, broadcastCmd)
	broadcastCmd.Flags().StringP("input", "i", "", "file holding the hex encoded signed transaction")
	broadcastCmd.Flags().String("raw", "", "hex encoded signed transaction")
}
