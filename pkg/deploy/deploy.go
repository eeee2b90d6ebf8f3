// Package deploy crosses the boundary into the host OS: it writes
// tunnel and routing-daemon configuration files and invokes the
// external tools that act on them. Every subprocess runs with an
// explicit argument vector, never through a shell.
package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/peering"
	"github.com/autopeerd/autopeerd/pkg/tmpl"
)

// Daemon configs are 0640; tunnel configs carry private key material
// and are 0600.
const (
	tunnelConfigPerm = 0o600
	daemonConfigPerm = 0o640
	dirPerm          = 0o750
)

// Executor runs an external command with an explicit argument vector.
// It exists so tests can substitute a fake that never touches the host.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// execExecutor is the production Executor, backed by os/exec.
type execExecutor struct{}

func (execExecutor) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Deployer writes configuration files to TunnelConfigDir and
// DaemonConfigDir and invokes TunnelTool/DaemonTool to activate,
// deactivate, and reload.
type Deployer struct {
	Exec Executor

	TunnelConfigDir string
	DaemonConfigDir string

	// TunnelTool is the external tool managing tunnel interfaces
	// (e.g. "wg-quick"); DaemonTool is the routing daemon's control
	// client (e.g. "birdc").
	TunnelTool string
	DaemonTool string
}

// New constructs a Deployer backed by the real OS (exec.Command, the
// filesystem). tunnelTool and daemonTool name the external binaries to
// invoke.
func New(tunnelConfigDir, daemonConfigDir, tunnelTool, daemonTool string) *Deployer {
	return &Deployer{
		Exec:            execExecutor{},
		TunnelConfigDir: tunnelConfigDir,
		DaemonConfigDir: daemonConfigDir,
		TunnelTool:      tunnelTool,
		DaemonTool:      daemonTool,
	}
}

func (d *Deployer) tunnelConfigPath(asn uint32) string {
	return filepath.Join(d.TunnelConfigDir, tmpl.InterfaceName(asn)+".conf")
}

func (d *Deployer) daemonConfigPath(asn uint32) string {
	return filepath.Join(d.DaemonConfigDir, tmpl.InterfaceName(asn)+".conf")
}

// Activate writes both config files, brings the tunnel up, and
// reloads the routing daemon. Any
// failure after the tunnel is up rolls the tunnel back down and removes
// both files, so a failed activate leaves no trace.
func (d *Deployer) Activate(ctx context.Context, r *peering.Record) error {
	tunnelText, err := tmpl.RenderTunnelConfig(r)
	if err != nil {
		return err
	}
	daemonText, err := tmpl.RenderRoutingDaemonConfig(r)
	if err != nil {
		return err
	}

	if err := d.writeConfig(d.tunnelConfigPath(r.ASN), tunnelText, tunnelConfigPerm); err != nil {
		return err
	}

	iface := tmpl.InterfaceName(r.ASN)
	if _, stderr, err := d.Exec.Run(ctx, d.TunnelTool, "up", iface); err != nil {
		_ = os.Remove(d.tunnelConfigPath(r.ASN))
		return errors.NewDeploymentFailedError(fmt.Sprintf("bringing up tunnel %s: %s", iface, stderr), err)
	}

	if err := d.writeConfig(d.daemonConfigPath(r.ASN), daemonText, daemonConfigPerm); err != nil {
		d.rollbackTunnel(ctx, r.ASN)
		return err
	}

	if _, stderr, err := d.reloadDaemon(ctx); err != nil {
		d.rollbackTunnel(ctx, r.ASN)
		_ = os.Remove(d.daemonConfigPath(r.ASN))
		return errors.NewDeploymentFailedError("reloading routing daemon: "+stderr, err)
	}

	return nil
}

// rollbackTunnel tears down the tunnel and removes its config file; it
// is best-effort because it only runs when activate has already failed
// and there is nothing further to roll back to.
func (d *Deployer) rollbackTunnel(ctx context.Context, asn uint32) {
	iface := tmpl.InterfaceName(asn)
	_, _, _ = d.Exec.Run(ctx, d.TunnelTool, "down", iface)
	_ = os.Remove(d.tunnelConfigPath(asn))
}

// Deactivate tears down the tunnel, unlinks the routing-daemon file,
// and reloads the daemon. The tunnel config file is kept so a later
// re-activate can reuse it. Every substep is
// idempotent — a "not present" result from any of them is success, so
// calling Deactivate twice in a row is safe.
func (d *Deployer) Deactivate(ctx context.Context, asn uint32) error {
	iface := tmpl.InterfaceName(asn)
	if _, stderr, err := d.Exec.Run(ctx, d.TunnelTool, "down", iface); err != nil && !isNotPresent(stderr, err) {
		return errors.NewDeploymentFailedError(fmt.Sprintf("tearing down tunnel %s: %s", iface, stderr), err)
	}

	if err := os.Remove(d.daemonConfigPath(asn)); err != nil && !os.IsNotExist(err) {
		return errors.NewIoError("removing routing daemon config", err)
	}

	if _, stderr, err := d.reloadDaemon(ctx); err != nil {
		return errors.NewDeploymentFailedError("reloading routing daemon: "+stderr, err)
	}
	return nil
}

// Remove tears the peering down and removes every file it deployed,
// including the tunnel config file Deactivate leaves in place for a
// later re-activate. After a successful Remove, no deployed file for
// asn remains on the host.
func (d *Deployer) Remove(ctx context.Context, asn uint32) error {
	if err := d.Deactivate(ctx, asn); err != nil {
		return err
	}
	if err := os.Remove(d.tunnelConfigPath(asn)); err != nil && !os.IsNotExist(err) {
		return errors.NewIoError("removing tunnel config", err)
	}
	return nil
}

// ReloadDaemon is the idempotent poke that makes the routing daemon
// re-read its configuration.
func (d *Deployer) ReloadDaemon(ctx context.Context) error {
	_, stderr, err := d.reloadDaemon(ctx)
	if err != nil {
		return errors.NewDeploymentFailedError("reloading routing daemon: "+stderr, err)
	}
	return nil
}

func (d *Deployer) reloadDaemon(ctx context.Context) (string, string, error) {
	return d.Exec.Run(ctx, d.DaemonTool, "configure")
}

func (d *Deployer) writeConfig(path, content string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errors.NewIoError("creating config directory", err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return errors.NewIoError("writing config file", err)
	}
	return nil
}

// isNotPresent is a best-effort heuristic for "the tunnel/daemon
// reported it was already torn down" so Deactivate can treat that as
// success rather than DeploymentFailed.
func isNotPresent(stderr string, err error) bool {
	if err == nil {
		return true
	}
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "does not exist") || strings.Contains(lower, "no such") || strings.Contains(lower, "not found")
}
