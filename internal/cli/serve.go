package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citewatch/citewatch/internal/server"
	"github.com/citewatch/citewatch/internal/usage"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the citation verification HTTP API",
	Long: `Serve starts the HTTP API. Clients submit text with citation
offsets to POST /verify, poll GET /task/{id} for progress and results,
and fetch highlighted output from GET /task/{id}/render.

Example:
  citewatch serve
  citewatch serve --addr :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	tracker := usage.NewTracker()
	registry, err := buildRegistry(cfg, tracker)
	if err != nil {
		return err
	}
	defer registry.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Search backend: %s\n", cfg.Search.BaseURL)
		fmt.Fprintf(os.Stderr, "Task deadline: %s, workers per task: %d\n",
			waitHint(cfg.Task.Deadline), cfg.Task.MaxWorkers)
	}

	fmt.Fprintf(os.Stderr, "Listening on %s\n", cfg.Server.Addr)
	srv := server.New(registry, tracker)
	return srv.ListenAndServe(cfg.Server.Addr)
}
