package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dimiro1/banner"
	"github.com/spf13/cobra"

	"github.com/harun/agentbridge/internal/daemon"
)

var (
	serveHost     string
	servePort     int
	serveNoBanner bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent HTTP server",
	Long: `Start the agent HTTP server in the foreground.
Runs are accepted on POST /agent (server-sent events) and GET /ws (WebSocket).
The server stops on SIGINT or SIGTERM after in-flight runs finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoBanner, "no-banner", false, "do not print the startup banner")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pidFile := cfg.Server.PIDPath()
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	if !serveNoBanner {
		printBanner(cmd.OutOrStdout(), cfg.Server.Addr())
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	d.Wait()
	return nil
}

func printBanner(w io.Writer, addr string) {
	tpl := "{{ .Title \"agentbridge\" \"\" 0 }}\nVersion: " + version + "\nListening on: " + addr + "\n\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
