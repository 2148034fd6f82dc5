package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(digestCmd)
	digestCmd.AddCommand(digestEnableCmd)

	digestEnableCmd.Flags().String("channel", "", "Discord channel ID to post to")
	digestEnableCmd.Flags().Int("every", 24*60, "Minutes between digests")
	_ = digestEnableCmd.MarkFlagRequired("channel")
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Manage scheduled debt digests",
}

var digestEnableCmd = &cobra.Command{
	Use:   "enable GROUP_ID",
	Short: "Post a group's outstanding debts to a Discord channel on a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid group id %q: %w", args[0], err)
		}
		channel, _ := cmd.Flags().GetString("channel")
		every, _ := cmd.Flags().GetInt("every")
		if every <= 0 {
			return fmt.Errorf("--every must be positive")
		}

		ctx := cmd.Context()
		_, _, st, err := setup(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		now := time.Now().UTC()
		if err := st.UpsertDigest(ctx, groupID, channel, every, &now); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "digest for %s posts to %s every %d minutes\n", groupID, channel, every)
		return nil
	},
}
