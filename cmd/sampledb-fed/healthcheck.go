package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckTimeout time.Duration

// healthcheckCmd probes a running node, for container health checks.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [url]",
	Short: "Check that a federation node answers on /healthz",
	Long: `healthcheck performs a GET request and exits with status 0 on a 2xx
response. The URL defaults to /healthz on the configured listen address.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := healthURL(settings.GetString("listen"))
		if len(args) == 1 {
			url = args[0]
		}

		client := &http.Client{Timeout: healthcheckTimeout}
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("healthcheck failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("healthcheck failed: status %d", resp.StatusCode)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "Request timeout")
}

// healthURL turns a listen address such as ":8080" into a local URL.
func healthURL(listen string) string {
	if listen == "" {
		listen = ":8080"
	}
	if listen[0] == ':' {
		listen = "localhost" + listen
	}
	return "http://" + listen + "/healthz"
}
