package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/peering"
)

// fakeExecutor records every invocation and returns canned responses
// keyed by the command name, so tests can simulate a failing tunnel-up
// or a failing daemon reload without touching the host.
type fakeExecutor struct {
	calls  [][]string
	failOn map[string]error
	stderr map[string]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failOn: map[string]error{}, stderr: map[string]string{}}
}

func (f *fakeExecutor) Run(_ context.Context, name string, args ...string) (string, string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	key := name + " " + strings.Join(args, " ")
	if err, ok := f.failOn[key]; ok {
		return "", f.stderr[key], err
	}
	return "", "", nil
}

func sampleRecord() *peering.Record {
	return &peering.Record{
		ASN:                4242421234,
		LocalASN:           4242420001,
		Status:             peering.StatusVerified,
		LocalKeyPair:       peering.KeyPair{PrivateKey: "localpriv", PublicKey: "localpub"},
		PeerPublicKey:      "remotepub",
		PeerEndpoint:       "1.2.3.4:31234",
		ListenPort:         31234,
		LocalTunnelAddress: "fe80::1234:0001:0/64",
		PeerTunnelAddress:  "fe80::1234:0001:1/64",
	}
}

func newTestDeployer(t *testing.T, exec Executor) *Deployer {
	t.Helper()
	return &Deployer{
		Exec:            exec,
		TunnelConfigDir: filepath.Join(t.TempDir(), "tunnel"),
		DaemonConfigDir: filepath.Join(t.TempDir(), "daemon"),
		TunnelTool:      "wg-quick",
		DaemonTool:      "birdc",
	}
}

func TestDeployer_Activate_HappyPath(t *testing.T) {
	exec := newFakeExecutor()
	d := newTestDeployer(t, exec)
	r := sampleRecord()

	if err := d.Activate(context.Background(), r); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if _, err := os.Stat(d.tunnelConfigPath(r.ASN)); err != nil {
		t.Errorf("expected tunnel config to exist: %v", err)
	}
	if _, err := os.Stat(d.daemonConfigPath(r.ASN)); err != nil {
		t.Errorf("expected daemon config to exist: %v", err)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected 2 subprocess calls (tunnel up, daemon reload), got %d: %v", len(exec.calls), exec.calls)
	}
}

func TestDeployer_Activate_RollsBackOnDaemonReloadFailure(t *testing.T) {
	exec := newFakeExecutor()
	exec.failOn["birdc configure"] = errors.NewDeploymentFailedError("boom", nil)
	d := newTestDeployer(t, exec)
	r := sampleRecord()

	err := d.Activate(context.Background(), r)
	if !errors.IsDeploymentFailed(err) {
		t.Fatalf("Activate error = %v, want DeploymentFailed", err)
	}

	if _, err := os.Stat(d.tunnelConfigPath(r.ASN)); !os.IsNotExist(err) {
		t.Errorf("expected tunnel config to be rolled back, stat err=%v", err)
	}
	if _, err := os.Stat(d.daemonConfigPath(r.ASN)); !os.IsNotExist(err) {
		t.Errorf("expected daemon config to be rolled back, stat err=%v", err)
	}

	foundTunnelDown := false
	for _, call := range exec.calls {
		if len(call) == 3 && call[0] == "wg-quick" && call[1] == "down" {
			foundTunnelDown = true
		}
	}
	if !foundTunnelDown {
		t.Errorf("expected rollback to tear down the tunnel, calls=%v", exec.calls)
	}
}

func TestDeployer_Remove_LeavesNoFiles(t *testing.T) {
	exec := newFakeExecutor()
	d := newTestDeployer(t, exec)
	r := sampleRecord()

	if err := d.Activate(context.Background(), r); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := d.Remove(context.Background(), r.ASN); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := os.Stat(d.tunnelConfigPath(r.ASN)); !os.IsNotExist(err) {
		t.Errorf("expected tunnel config to be removed, stat err=%v", err)
	}
	if _, err := os.Stat(d.daemonConfigPath(r.ASN)); !os.IsNotExist(err) {
		t.Errorf("expected daemon config to be removed, stat err=%v", err)
	}

	// Removing an already-removed peering must also succeed.
	if err := d.Remove(context.Background(), r.ASN); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestDeployer_Deactivate_Idempotent(t *testing.T) {
	exec := newFakeExecutor()
	d := newTestDeployer(t, exec)
	r := sampleRecord()

	if err := d.Activate(context.Background(), r); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := d.Deactivate(context.Background(), r.ASN); err != nil {
		t.Fatalf("first Deactivate: %v", err)
	}
	if err := d.Deactivate(context.Background(), r.ASN); err != nil {
		t.Fatalf("second Deactivate: %v", err)
	}
}
