package lifecycle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/autopeerd/autopeerd/pkg/deploy"
	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/peering"
	"github.com/autopeerd/autopeerd/pkg/pgp"
	"github.com/autopeerd/autopeerd/pkg/store"
	"github.com/autopeerd/autopeerd/pkg/token"
)

const testASN = 4242421234

// fixedMirror satisfies the Mirror interface with a registry text file
// written once at test setup, so these tests never touch git.
type fixedMirror struct{ path string }

func (m fixedMirror) EnsureFresh(context.Context) (string, error) { return m.path, nil }

type fakeExecutor struct{}

func (fakeExecutor) Run(context.Context, string, ...string) (string, string, error) {
	return "", "", nil
}

func generateTestKey(t *testing.T) (*openpgp.Entity, string) {
	t.Helper()
	entity, err := openpgp.NewEntity("Test Peer", "", "peer@example.net", nil)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("armor.Encode: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close armor writer: %v", err)
	}
	return entity, buf.String()
}

func signMessage(t *testing.T, entity *openpgp.Entity, plaintext string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, nil)
	if err != nil {
		t.Fatalf("clearsign.Encode: %v", err)
	}
	if _, err := w.Write([]byte(plaintext)); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close clearsign writer: %v", err)
	}
	return buf.String()
}

func fingerprintOf(t *testing.T, armoredKey string) string {
	t.Helper()
	fp, err := pgp.Fingerprint(armoredKey)
	if err != nil {
		t.Fatalf("pgp.Fingerprint: %v", err)
	}
	return fp
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func registryText(fingerprint string, armoredKey string) string {
	var b strings.Builder
	b.WriteString("aut-num: AS4242421234\n")
	b.WriteString("mnt-by: MNT-EXAMPLE\n\n")
	b.WriteString("mntner: MNT-EXAMPLE\n")
	b.WriteString("auth: PGPKEY-935300\n\n")
	b.WriteString("key-cert: PGPKEY-935300\n")
	b.WriteString("fingerpr: " + fingerprint + "\n")
	b.WriteString("certif:")
	for _, line := range strings.Split(armoredKey, "\n") {
		b.WriteString("\n            " + line)
	}
	b.WriteString("\n\n")
	return b.String()
}

func newTestEngine(t *testing.T, registryPath string) *Engine {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "pending"), filepath.Join(t.TempDir(), "verified"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	dep := &deploy.Deployer{
		Exec:            fakeExecutor{},
		TunnelConfigDir: filepath.Join(t.TempDir(), "tunnel"),
		DaemonConfigDir: filepath.Join(t.TempDir(), "daemon"),
		TunnelTool:      "wg-quick",
		DaemonTool:      "birdc",
	}
	tokens := token.New("test-secret")
	return New(4242420001, fixedMirror{path: registryPath}, st, tokens, dep)
}

func TestEngine_FullLifecycle(t *testing.T) {
	entity, armoredKey := generateTestKey(t)
	fingerprint := fingerprintOf(t, armoredKey)

	registryDir := t.TempDir()
	registryPath := filepath.Join(registryDir, "registry.txt")
	writeFile(t, registryPath, registryText(fingerprint, armoredKey))

	e := newTestEngine(t, registryPath)
	ctx := context.Background()

	challenge, gotFingerprint, err := e.Init(ctx, testASN)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !strings.HasPrefix(challenge, "AUTOPEER-4242421234-") {
		t.Errorf("challenge = %q, want AUTOPEER-4242421234- prefix", challenge)
	}
	if gotFingerprint != fingerprint {
		t.Errorf("fingerprint = %q, want %q", gotFingerprint, fingerprint)
	}

	signed := signMessage(t, entity, challenge)
	tok, configText, err := e.Verify(ctx, testASN, signed, armoredKey, "remotepub", "1.2.3.4:31234")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if tok == "" {
		t.Error("expected a non-empty token")
	}
	if !strings.Contains(configText, "ListenPort = 31234") {
		t.Errorf("rendered config missing ListenPort: %q", configText)
	}
	if !strings.Contains(configText, "Endpoint = 1.2.3.4:31234") {
		t.Errorf("rendered config missing Endpoint: %q", configText)
	}

	if err := e.Deploy(ctx, testASN); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	view, err := e.Status(testASN)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.PeerEndpoint != "1.2.3.4:31234" {
		t.Errorf("Status().PeerEndpoint = %q, want 1.2.3.4:31234", view.PeerEndpoint)
	}

	updated, err := e.Update(ctx, testASN, "5.6.7.8:31234")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.PeerEndpoint != "5.6.7.8:31234" {
		t.Errorf("Update().PeerEndpoint = %q, want 5.6.7.8:31234", updated.PeerEndpoint)
	}

	if err := e.Deactivate(ctx, testASN); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := e.Delete(ctx, testASN); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.Status(testASN); !errors.IsNotFound(err) {
		t.Errorf("Status after Delete error = %v, want not found", err)
	}
}

// assertNoTrace walks dir and fails if any entry's name mentions asn.
func assertNoTrace(t *testing.T, dir string, asn uint32) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	needle := fmt.Sprintf("%d", asn)
	for _, e := range entries {
		if strings.Contains(e.Name(), needle) {
			t.Errorf("expected no file for AS%d in %s, found %s", asn, dir, e.Name())
		}
	}
}

func TestEngine_Delete_LeavesNoFiles(t *testing.T) {
	entity, armoredKey := generateTestKey(t)
	fingerprint := fingerprintOf(t, armoredKey)

	registryPath := filepath.Join(t.TempDir(), "registry.txt")
	writeFile(t, registryPath, registryText(fingerprint, armoredKey))

	pendingDir := filepath.Join(t.TempDir(), "pending")
	verifiedDir := filepath.Join(t.TempDir(), "verified")
	tunnelDir := filepath.Join(t.TempDir(), "tunnel")
	daemonDir := filepath.Join(t.TempDir(), "daemon")

	st, err := store.New(pendingDir, verifiedDir)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	dep := &deploy.Deployer{
		Exec:            fakeExecutor{},
		TunnelConfigDir: tunnelDir,
		DaemonConfigDir: daemonDir,
		TunnelTool:      "wg-quick",
		DaemonTool:      "birdc",
	}
	e := New(4242420001, fixedMirror{path: registryPath}, st, token.New("test-secret"), dep)
	ctx := context.Background()

	challenge, _, err := e.Init(ctx, testASN)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	signed := signMessage(t, entity, challenge)
	if _, _, err := e.Verify(ctx, testASN, signed, armoredKey, "remotepub", "1.2.3.4:31234"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := e.Deploy(ctx, testASN); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if err := e.Delete(ctx, testASN); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, dir := range []string{pendingDir, verifiedDir, tunnelDir, daemonDir} {
		assertNoTrace(t, dir, testASN)
	}
}

func TestEngine_Recover(t *testing.T) {
	e := newTestEngine(t, filepath.Join(t.TempDir(), "unused.txt"))

	expired := &peering.Record{
		ASN:       4242420002,
		LocalASN:  4242420001,
		Status:    peering.StatusPending,
		Challenge: "AUTOPEER-4242420002-deadbeef",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := e.Store.CreatePending(expired); err != nil {
		t.Fatalf("CreatePending(expired): %v", err)
	}

	fresh := &peering.Record{
		ASN:       4242420003,
		LocalASN:  4242420001,
		Status:    peering.StatusPending,
		Challenge: "AUTOPEER-4242420003-cafef00d",
		CreatedAt: time.Now(),
	}
	if err := e.Store.CreatePending(fresh); err != nil {
		t.Fatalf("CreatePending(fresh): %v", err)
	}

	if err := e.Recover(time.Hour); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if _, err := e.Store.Read(store.Pending, expired.ASN); !errors.IsNotFound(err) {
		t.Errorf("expired pending record should be swept, got err=%v", err)
	}
	if _, err := e.Store.Read(store.Pending, fresh.ASN); err != nil {
		t.Errorf("fresh pending record should survive the sweep: %v", err)
	}
}

func TestEngine_Init_OutsidePrivateRange(t *testing.T) {
	e := newTestEngine(t, filepath.Join(t.TempDir(), "missing.txt"))
	_, _, err := e.Init(context.Background(), 1)
	if !errors.IsBadRequest(err) {
		t.Fatalf("Init outside range error = %v, want bad request", err)
	}
}

func TestEngine_Verify_TamperedChallenge(t *testing.T) {
	entity, armoredKey := generateTestKey(t)
	fingerprint := fingerprintOf(t, armoredKey)

	registryDir := t.TempDir()
	registryPath := filepath.Join(registryDir, "registry.txt")
	writeFile(t, registryPath, registryText(fingerprint, armoredKey))

	e := newTestEngine(t, registryPath)
	ctx := context.Background()

	if _, _, err := e.Init(ctx, testASN); err != nil {
		t.Fatalf("Init: %v", err)
	}

	signed := signMessage(t, entity, "AUTOPEER-4242421234-cafef00d")
	_, _, err := e.Verify(ctx, testASN, signed, armoredKey, "remotepub", "1.2.3.4:31234")
	if !errors.IsUnauthorized(err) {
		t.Fatalf("Verify with tampered challenge error = %v, want unauthorized", err)
	}
}

func TestEngine_Verify_WrongSigner(t *testing.T) {
	entity, armoredKey := generateTestKey(t)
	fingerprint := fingerprintOf(t, armoredKey)
	otherEntity, otherArmoredKey := generateTestKey(t)

	registryDir := t.TempDir()
	registryPath := filepath.Join(registryDir, "registry.txt")
	writeFile(t, registryPath, registryText(fingerprint, armoredKey))

	e := newTestEngine(t, registryPath)
	ctx := context.Background()

	challenge, _, err := e.Init(ctx, testASN)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	signed := signMessage(t, otherEntity, challenge)
	_, _, err = e.Verify(ctx, testASN, signed, otherArmoredKey, "remotepub", "1.2.3.4:31234")
	if !errors.IsConflict(err) {
		t.Fatalf("Verify with wrong signer error = %v, want conflict", err)
	}
}

func TestEngine_Verify_NoPendingRecord(t *testing.T) {
	e := newTestEngine(t, filepath.Join(t.TempDir(), "missing.txt"))
	_, _, err := e.Verify(context.Background(), testASN, "signed", "key", "pub", "1.2.3.4:31234")
	if !errors.IsNotFound(err) {
		t.Fatalf("Verify with no pending record error = %v, want not found", err)
	}
}
