package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagLogType  string
	flagLogLimit int
	flagJSON     bool
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show traffic totals, top paths and error rates",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := mustClient().Get("/admin/analytics")
		if err != nil {
			return err
		}

		var resp struct {
			Totals struct {
				Requests   int `json:"requests"`
				Threats    int `json:"threats"`
				AuthFails  int `json:"authFails"`
				RateLimits int `json:"rateLimits"`
			} `json:"totals"`
			TopPaths []struct {
				Path  string `json:"path"`
				Count int    `json:"count"`
			} `json:"topPaths"`
			ErrorRates []struct {
				Path  string `json:"path"`
				Count int    `json:"count"`
			} `json:"errorRates"`
			BlockedIPs int `json:"blockedIps"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}
		if flagJSON {
			printJSON(resp)
			return nil
		}

		fmt.Printf("Requests:    %d\n", resp.Totals.Requests)
		fmt.Printf("Threats:     %d\n", resp.Totals.Threats)
		fmt.Printf("Auth fails:  %d\n", resp.Totals.AuthFails)
		fmt.Printf("Rate limits: %d\n", resp.Totals.RateLimits)
		fmt.Printf("Blocked IPs: %d\n", resp.BlockedIPs)

		if len(resp.TopPaths) > 0 {
			fmt.Println("\nTop paths:")
			t := newTable("PATH", "HITS")
			for _, p := range resp.TopPaths {
				t.AddRow(p.Path, strconv.Itoa(p.Count))
			}
			t.Flush()
		}
		if len(resp.ErrorRates) > 0 {
			fmt.Println("\nError rates:")
			t := newTable("PATH", "ERRORS")
			for _, p := range resp.ErrorRates {
				t.AddRow(p.Path, strconv.Itoa(p.Count))
			}
			t.Flush()
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List security events",
	RunE: func(_ *cobra.Command, _ []string) error {
		q := url.Values{}
		if flagLogType != "" {
			q.Set("type", flagLogType)
		}
		q.Set("limit", strconv.Itoa(flagLogLimit))

		data, err := mustClient().Get("/admin/logs?" + q.Encode())
		if err != nil {
			return err
		}

		var resp struct {
			Logs []struct {
				Type      string    `json:"type"`
				Message   string    `json:"message"`
				IP        string    `json:"ip"`
				Method    string    `json:"method"`
				Path      string    `json:"path"`
				RiskLevel string    `json:"riskLevel"`
				RiskScore int       `json:"riskScore"`
				CreatedAt time.Time `json:"createdAt"`
			} `json:"logs"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}
		if flagJSON {
			printJSON(resp)
			return nil
		}

		t := newTable("TIME", "TYPE", "RISK", "IP", "METHOD", "PATH", "MESSAGE")
		for _, e := range resp.Logs {
			t.AddRow(
				e.CreatedAt.Format(time.RFC3339),
				e.Type,
				fmt.Sprintf("%s/%d", e.RiskLevel, e.RiskScore),
				e.IP,
				e.Method,
				e.Path,
				e.Message,
			)
		}
		t.Flush()
		return nil
	},
}

var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "Show per-minute request counts for the last hour",
	RunE: func(_ *cobra.Command, _ []string) error {
		data, err := mustClient().Get("/admin/traffic")
		if err != nil {
			return err
		}

		var resp struct {
			Minutes []struct {
				Minute int `json:"minute"`
				Count  int `json:"count"`
			} `json:"minutes"`
		}
		if err := unmarshal(data, &resp); err != nil {
			return err
		}
		if flagJSON {
			printJSON(resp)
			return nil
		}

		t := newTable("MINUTE", "REQUESTS")
		for _, m := range resp.Minutes {
			t.AddRow(strconv.Itoa(m.Minute), strconv.Itoa(m.Count))
		}
		t.Flush()
		return nil
	},
}

func init() {
	logsCmd.Flags().StringVar(&flagLogType, "type", "", "Filter by event type (request, auth_failed, rate_limit, threat, system)")
	logsCmd.Flags().IntVar(&flagLogLimit, "limit", 50, "Maximum number of events")

	for _, c := range []*cobra.Command{analyticsCmd, logsCmd, trafficCmd} {
		c.Flags().BoolVar(&flagJSON, "json", false, "Print raw JSON")
	}
}
