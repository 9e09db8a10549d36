package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"minter-core/internal/state"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:     "replay",
	Aliases: []string{"events"},
	Short:   "Replay the event log and print the resulting collections",
	Long: `Opens the configured event log, verifies its hash chain, replays it
and prints the size of every collection. With --dump every event is printed
as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dump, _ := cmd.Flags().GetBool("dump")
		_, res, err := loadResources()
		if err != nil {
			return err
		}
		defer res.Close()

		ctx := cmd.Context()
		events, err := res.EventStore(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if dump {
			all, err := events.Events(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			for _, ev := range all {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
		}

		snap := events.Snapshot()
		fmt.Fprintf(out, "events:     %d\n", events.Seq())
		fmt.Fprintf(out, "next nonce: %d\n", snap.NextNonce())
		counts := snap.Counts()
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "%-11s %d\n", name+":", counts[name])
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <withdrawal-id>",
	Short: "Print the pipeline status of one withdrawal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid withdrawal id %q", args[0])
		}
		_, res, err := loadResources()
		if err != nil {
			return err
		}
		defer res.Close()

		events, err := res.EventStore(cmd.Context())
		if err != nil {
			return err
		}
		st := events.Snapshot().Status(state.BurnIndex(id))
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd, statusCmd)
	replayCmd.Flags().Bool("dump", false, "print every event as JSON")
}
