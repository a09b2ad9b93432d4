package systemdsvc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Service provides operations for the managed systemd unit
type Service interface {
	// IsAvailable checks if systemctl is accessible
	IsAvailable(ctx context.Context) (bool, error)
	// DaemonReload reloads systemd configuration
	DaemonReload(ctx context.Context) error
	// Start starts the unit
	Start(ctx context.Context, unit string) error
	// Stop stops the unit
	Stop(ctx context.Context, unit string) error
	// Restart restarts the unit
	Restart(ctx context.Context, unit string) error
	// EnableNow enables the unit and starts it in one step
	EnableNow(ctx context.Context, unit string) error
	// IsActive returns the unit's activation state (active, inactive, failed, ...)
	IsActive(ctx context.Context, unit string) (string, error)
	// Logs streams the unit's journal to stdout
	Logs(ctx context.Context, unit string, lines int, follow bool) error
}

// Client implements Service by shelling out to systemctl and journalctl
type Client struct {
	systemctl  string
	journalctl string
}

// NewClient creates a new systemd client
func NewClient() *Client {
	return &Client{
		systemctl:  "systemctl",
		journalctl: "journalctl",
	}
}

// IsAvailable checks if systemctl is accessible
func (c *Client) IsAvailable(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, c.systemctl, "status")
	err := cmd.Run()

	// systemctl status returns non-zero for degraded systems, but it's still available
	// We only care if the command can run at all
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Exit codes 1-3 are normal for systemctl status
			if exitErr.ExitCode() <= 3 {
				return true, nil
			}
		}
		return false, fmt.Errorf("systemctl not available: %w", err)
	}

	return true, nil
}

// DaemonReload reloads systemd daemon configuration
func (c *Client) DaemonReload(ctx context.Context) error {
	return c.run(ctx, "daemon-reload")
}

// Start starts the unit
func (c *Client) Start(ctx context.Context, unit string) error {
	return c.run(ctx, "start", unit)
}

// Stop stops the unit. Stopping an already-stopped unit is not an error.
func (c *Client) Stop(ctx context.Context, unit string) error {
	return c.run(ctx, "stop", unit)
}

// Restart restarts the unit
func (c *Client) Restart(ctx context.Context, unit string) error {
	return c.run(ctx, "restart", unit)
}

// EnableNow enables the unit and starts it in one step
func (c *Client) EnableNow(ctx context.Context, unit string) error {
	return c.run(ctx, "enable", "--now", unit)
}

// IsActive returns the unit's activation state
func (c *Client) IsActive(ctx context.Context, unit string) (string, error) {
	cmd := exec.CommandContext(ctx, c.systemctl, "is-active", unit)
	output, err := cmd.Output()
	status := strings.TrimSpace(string(output))

	if err != nil {
		// is-active returns non-zero for inactive units, but that's not an error
		if status != "" {
			return status, nil
		}
		return "", fmt.Errorf("systemctl is-active failed: %w", err)
	}

	return status, nil
}

// Logs shows the unit's journal on stdout. With follow enabled journalctl
// keeps streaming until the context is cancelled.
func (c *Client) Logs(ctx context.Context, unit string, lines int, follow bool) error {
	args := []string{"-u", unit, "-n", strconv.Itoa(lines)}
	if follow {
		args = append(args, "-f")
	}

	cmd := exec.CommandContext(ctx, c.journalctl, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		// Cancelling a followed journal is a normal way to stop it.
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("journalctl failed: %w", err)
	}
	return nil
}

// run executes a systemctl subcommand and returns an error with output on failure
func (c *Client) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, c.systemctl, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s failed: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}
