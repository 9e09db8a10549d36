package cmd

import (
	"fmt"

	"minter-core/internal/signer"
	"minter-core/pkg/bip32"
	"minter-core/pkg/bip39"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a mnemonic for a new minter key",
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, _ := cmd.Flags().GetInt("bits")
		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(bits)
		if err != nil {
			return fmt.Errorf("generate mnemonic: %w", err)
		}
		s, err := signer.FromMnemonic(mnemonic, bip32.DefaultEthPath, 1)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mnemonic: %s\n", mnemonic)
		fmt.Fprintf(out, "address:  %s (%s)\n", s.Address().Hex(), bip32.DefaultEthPath)
		fmt.Fprintln(out, "store the mnemonic offline and set it as ETH_MNEMONIC for the server")
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address <mnemonic>",
	Short: "Print the minter address derived from a mnemonic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		s, err := signer.FromMnemonic(args[0], path, 1)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.Address().Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd, addressCmd)
	newCmd.Flags().Int("bits", 256, "mnemonic entropy in bits (128 to 256)")
	addressCmd.Flags().String("path", bip32.DefaultEthPath, "BIP-32 derivation path")
}
