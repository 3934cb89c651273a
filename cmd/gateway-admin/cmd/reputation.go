package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var flagBlockReason string

var blockedIPsCmd = &cobra.Command{
	Use:   "blocked-ips",
	Short: "List currently blocked IP addresses",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := mustClient().Get("/admin/blocked-ips")
		if err != nil {
			return err
		}

		var resp struct {
			BlockedIPs []struct {
				IP           string     `json:"ip"`
				Reason       string     `json:"reason"`
				BlockedUntil *time.Time `json:"blockedUntil"`
				Country      string     `json:"country"`
				CreatedAt    time.Time  `json:"createdAt"`
			} `json:"blockedIps"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		t := newTable("IP", "REASON", "COUNTRY", "UNTIL", "SINCE")
		for _, b := range resp.BlockedIPs {
			until := "-"
			if b.BlockedUntil != nil {
				until = b.BlockedUntil.Format(time.RFC3339)
			}
			t.AddRow(b.IP, b.Reason, b.Country, until, b.CreatedAt.Format(time.RFC3339))
		}
		t.Flush()
		return nil
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <ip>",
	Short: "Block an IP address",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := mustClient().Post("/admin/blocked-ips", map[string]string{
			"ip":     args[0],
			"reason": flagBlockReason,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Blocked %s\n", args[0])
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <ip>",
	Short: "Unblock an IP address",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := mustClient().Delete("/admin/blocked-ips/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("Unblocked %s\n", args[0])
		return nil
	},
}

func init() {
	blockCmd.Flags().StringVar(&flagBlockReason, "reason", "manual-block", "Reason recorded with the block")
}
