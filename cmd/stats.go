package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"maestro/internal/app"
)

var statsServerURL string

// statsEnvelope mirrors the wire envelope around the stats payload.
type statsEnvelope struct {
	Data app.Stats `json:"data"`
	Code int       `json:"code"`
}

// statsCmd fetches /v1/stats from a running server and renders it.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue and job statistics from a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := statsServerURL
		if url == "" {
			cfg, err := GetConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			host := cfg.Server.Host
			if host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			url = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(url + "/v1/stats")
		if err != nil {
			return fmt.Errorf("failed to reach server at %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s", resp.Status)
		}

		var env statsEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("failed to decode stats response: %w", err)
		}
		stats := env.Data

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Metric", "Value"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		table.Append([]string{"Jobs total", strconv.Itoa(stats.Jobs.Total)})
		table.Append([]string{"Queued", strconv.Itoa(stats.Jobs.Queued)})
		table.Append([]string{"Running", strconv.Itoa(stats.Jobs.Running)})
		table.Append([]string{"Succeeded", color.GreenString(strconv.Itoa(stats.Jobs.Succeeded))})
		table.Append([]string{"Failed", color.RedString(strconv.Itoa(stats.Jobs.Failed))})
		table.Append([]string{"Queue depth", fmt.Sprintf("%d / %d", stats.QueueDepth, stats.QueueCapacity)})
		table.Append([]string{"Avg job seconds", fmt.Sprintf("%.2f", stats.AvgJobSeconds)})
		orphans := strconv.FormatInt(stats.Orphans, 10)
		if stats.Orphans > 0 {
			orphans = color.YellowString(orphans)
		}
		table.Append([]string{"Orphaned calls", orphans})
		table.Append([]string{"Cache enabled", strconv.FormatBool(stats.CacheEnabled)})
		table.Append([]string{"Last log line", stats.LastLogLine})
		table.Render()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsServerURL, "server", "", "Base URL of the running server (defaults to config host/port)")
}
