package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// stopGrace is how long "stop" waits for a graceful exit before killing.
const stopGrace = 10 * time.Second

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running socketgate server",
	Long: `Stop a running socketgate server.

The server's PID is read from ~/.socketgate/server.pid and the process is
asked to shut down. Every socket is closed and every connection
disconnected before it exits. A server still running after 10 seconds is
killed.

Examples:
  socketgate stop`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer(cmd.ErrOrStderr(), pidFilePath(), stopGrace)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

// stopServer signals the process recorded at pidPath and removes the PID
// file once the process is gone or the file turns out to be stale.
func stopServer(w io.Writer, pidPath string, grace time.Duration) error {
	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no server PID file found at %s\nIs the server running?", pidPath)
	}
	defer os.Remove(pidPath)

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}
	if !processIsAlive(proc) {
		return fmt.Errorf("server process %d is not running (stale PID file removed)", pid)
	}

	fmt.Fprintf(w, "Stopping socketgate server (PID %d)...\n", pid)
	if err := sendGracefulStop(proc); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if waitForExit(proc, grace) {
		fmt.Fprintln(w, "Server stopped.")
		return nil
	}

	fmt.Fprintln(w, "Server did not stop in time, killing it.")
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	fmt.Fprintln(w, "Server killed.")
	return nil
}

// waitForExit polls proc until it exits or grace elapses.
func waitForExit(proc *os.Process, grace time.Duration) bool {
	const poll = 200 * time.Millisecond
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		time.Sleep(poll)
		if !processIsAlive(proc) {
			return true
		}
	}
	return false
}
