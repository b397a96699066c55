package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/harun/docsess/internal/server"
	"github.com/harun/docsess/pkg/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session HTTP server",
	Long: `Run the session HTTP server in the foreground.
It serves /metrics, /healthz and the /sessions routes, and sweeps idle
sessions on session.sweep_schedule when the store supports it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default is metrics.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}

	var sweeper *session.Sweeper
	if a.cfg.Session.SweepSchedule != "" {
		sweeper, err = session.NewSweeper(a.store, a.cfg.Session.TTL, a.cfg.Session.SweepSchedule)
		if errors.Is(err, session.ErrSweepUnsupported) {
			log.Warn().Str("driver", a.cfg.Store.Driver).Msg("Store cannot sweep idle sessions")
			sweeper = nil
		} else if err != nil {
			return err
		}
	}

	srv, err := server.New(server.Config{
		Addr:    addr,
		Manager: a.manager,
		Sweeper: sweeper,
		Logger:  log.Logger,
	})
	if err != nil {
		return err
	}

	if err := writePIDFile(pidFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer os.Remove(pidFile)

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return srv.Stop()
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "docsess.pid")
	}
	return filepath.Join(home, ".docsess", "docsess.pid")
}

func writePIDFile(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644)
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func isRunning(pidFile string) bool {
	pid, err := readPID(pidFile)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	return process.Signal(syscall.Signal(0)) == nil
}
