package vaultctl

import (
	"github.com/spf13/cobra"

	"github.com/manifest-network/vaultctl/internal/vault"
)

func newPDACmd() *cobra.Command {
	var programID, admin, user string
	cmd := &cobra.Command{
		Use:   "pda",
		Short: "Derive vault program addresses without contacting the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePublicKey("programId", programID)
			if err != nil {
				return err
			}
			adminKey, err := parsePublicKey("admin", admin)
			if err != nil {
				return err
			}
			addrs, err := vault.DeriveAddresses(pid, adminKey)
			if err != nil {
				return err
			}
			view := map[string]any{
				"vaultState":     addrs.VaultState,
				"vaultStateBump": addrs.VaultStateBump,
				"vaultToken":     addrs.VaultToken,
				"vaultTokenBump": addrs.VaultTokenBump,
			}
			if user != "" {
				userKey, err := parsePublicKey("user", user)
				if err != nil {
					return err
				}
				ticket, bump, err := vault.WithdrawalTicketPDA(pid, userKey, addrs.VaultState)
				if err != nil {
					return err
				}
				view["withdrawalTicket"] = ticket
				view["withdrawalTicketBump"] = bump
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&programID, "programId", vault.ProgramID.String(), "vault program address")
	cmd.Flags().StringVar(&admin, "admin", "", "vault admin address")
	cmd.Flags().StringVar(&user, "user", "", "also derive the withdrawal ticket of this user")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}
