package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gdp-network/gdpnet/internal/domain"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userShowCmd)

	userAddCmd.Flags().Float64("value", 0, "GDP price at enrollment (required)")
	userAddCmd.Flags().String("parent", "", "Referrer's user ID")
	userAddCmd.Flags().String("investment", "0", "Invested amount")
	userAddCmd.Flags().Bool("admin", false, "Give the member the admin role")
	userAddCmd.MarkFlagRequired("value")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage members in the embedded store",
	Long: `Add and inspect members. Intended for the sqlite and postgres stores
when gdpnet owns the referral tree; a Neo4j graph is read-only.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add USER_ID",
	Short: "Add or update a member",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	value, _ := cmd.Flags().GetFloat64("value")
	parent, _ := cmd.Flags().GetString("parent")
	inv, _ := cmd.Flags().GetString("investment")
	admin, _ := cmd.Flags().GetBool("admin")

	investment, err := decimal.NewFromString(inv)
	if err != nil {
		return fmt.Errorf("investment: %w", err)
	}
	u := domain.User{ID: args[0], Role: domain.RoleMember, Value: value, Investment: investment}
	if admin {
		u.Role = domain.RoleAdmin
	}
	if parent != "" {
		u.ParentID = &parent
	}

	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	w, ok := d.Users()
	if !ok {
		return fmt.Errorf("%s store does not accept member writes", d.Config.Storage.Backend)
	}
	if err := w.UpsertUser(cmd.Context(), u); err != nil {
		return err
	}
	stdout("✅ Member %s saved (value %g)\n", u.ID, u.Value)
	return nil
}

var userShowCmd = &cobra.Command{
	Use:   "show USER_ID",
	Short: "Show a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		u, err := d.Store.User(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		parent := "-"
		if u.ParentID != nil {
			parent = *u.ParentID
		}
		stdout("ID:         %s\n", u.ID)
		stdout("Role:       %s\n", u.Role)
		stdout("Value:      %g\n", u.Value)
		stdout("Parent:     %s\n", parent)
		stdout("Investment: %s\n", u.Investment.StringFixed(2))
		return nil
	},
}
