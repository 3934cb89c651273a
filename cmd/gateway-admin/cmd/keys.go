package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagKeyLabel     string
	flagKeyUserID    string
	flagKeyRole      string
	flagKeyRateLimit int
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := mustClient().Get("/admin/api-keys")
		if err != nil {
			return err
		}

		var resp struct {
			Keys []struct {
				ID        string    `json:"id"`
				Label     string    `json:"label"`
				Role      string    `json:"role"`
				Status    string    `json:"status"`
				RateLimit int       `json:"rateLimitPerMinute"`
				CreatedAt time.Time `json:"createdAt"`
			} `json:"keys"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		t := newTable("ID", "LABEL", "ROLE", "STATUS", "RATE LIMIT", "CREATED")
		for _, k := range resp.Keys {
			limit := "default"
			if k.RateLimit > 0 {
				limit = strconv.Itoa(k.RateLimit) + "/min"
			}
			t.AddRow(k.ID, k.Label, k.Role, k.Status, limit, k.CreatedAt.Format(time.RFC3339))
		}
		t.Flush()
		return nil
	},
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key",
	Long: `Create an API key for a user.

The plaintext key is printed exactly once and cannot be recovered.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := mustClient().Post("/admin/api-keys", map[string]any{
			"label":              flagKeyLabel,
			"userId":             flagKeyUserID,
			"role":               flagKeyRole,
			"rateLimitPerMinute": flagKeyRateLimit,
		})
		if err != nil {
			return err
		}

		var resp struct {
			ID  string `json:"id"`
			Key string `json:"key"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		fmt.Printf("Created key %s\n", resp.ID)
		fmt.Printf("API key (shown once): %s\n", resp.Key)
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := mustClient().Delete("/admin/api-keys/" + args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Revoked %s\n", args[0])
		return nil
	},
}

func init() {
	keysCreateCmd.Flags().StringVar(&flagKeyLabel, "label", "", "Key label")
	keysCreateCmd.Flags().StringVar(&flagKeyUserID, "user", "", "Owning user ID")
	keysCreateCmd.Flags().StringVar(&flagKeyRole, "role", "client", "Key role (admin or client)")
	keysCreateCmd.Flags().IntVar(&flagKeyRateLimit, "rate-limit", 0, "Per-minute rate limit override (0 uses the global default)")
	_ = keysCreateCmd.MarkFlagRequired("label")
	_ = keysCreateCmd.MarkFlagRequired("user")

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}
