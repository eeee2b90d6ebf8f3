// Package lifecycle implements the state machine on a Peering Record's
// status, and is the only package that composes every other component:
// init carries a remote ASN from anonymous request to pending record,
// verify from pending to cryptographically proven and persisted, and
// deploy/update/deactivate/delete drive the host's tunnel and BGP
// configuration from there.
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/autopeerd/autopeerd/pkg/allocate"
	"github.com/autopeerd/autopeerd/pkg/audit"
	"github.com/autopeerd/autopeerd/pkg/deploy"
	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/logger"
	"github.com/autopeerd/autopeerd/pkg/metrics"
	"github.com/autopeerd/autopeerd/pkg/peering"
	"github.com/autopeerd/autopeerd/pkg/pgp"
	"github.com/autopeerd/autopeerd/pkg/registry"
	"github.com/autopeerd/autopeerd/pkg/store"
	"github.com/autopeerd/autopeerd/pkg/tmpl"
	"github.com/autopeerd/autopeerd/pkg/token"
)

// Mirror is the subset of *registry.Mirror the engine depends on,
// narrowed to an interface so tests can substitute a registry path that
// doesn't require a real git remote.
type Mirror interface {
	EnsureFresh(ctx context.Context) (string, error)
}

// minASN and maxASN bound the agreed private ASN block. ASNs outside
// it are rejected at init before any other component is touched.
const (
	minASN = 4242420000
	maxASN = 4242423999
)

// Engine orchestrates init/verify/deploy/status/update/deactivate/delete
// by composing the Registry Mirror, Registry Parser, Signature
// Verifier, Allocator, Config Store, Template Engine, Token Service,
// and Deployer. Every state transition that reads then writes a record
// is serialized per-ASN by locks.
type Engine struct {
	LocalASN uint32

	Mirror   Mirror
	Store    *store.Store
	Tokens   *token.Service
	Deployer *deploy.Deployer

	// Metrics and Audit are optional; both are nil-receiver safe, so
	// tests that build an Engine directly need not supply either.
	Metrics *metrics.Recorder
	Audit   *audit.Auditor

	locks *keyedMutex
}

// WithMetrics attaches a Recorder to the engine and returns it for
// chaining at construction time.
func (e *Engine) WithMetrics(rec *metrics.Recorder) *Engine {
	e.Metrics = rec
	return e
}

// WithAudit attaches an Auditor to the engine and returns it for
// chaining at construction time.
func (e *Engine) WithAudit(a *audit.Auditor) *Engine {
	e.Audit = a
	return e
}

// New constructs an Engine from its component dependencies.
func New(localASN uint32, mirror Mirror, st *store.Store, tokens *token.Service, dep *deploy.Deployer) *Engine {
	return &Engine{
		LocalASN: localASN,
		Mirror:   mirror,
		Store:    st,
		Tokens:   tokens,
		Deployer: dep,
		locks:    newKeyedMutex(),
	}
}

func inPrivateRange(asn uint32) bool {
	return asn >= minASN && asn <= maxASN
}

// transition records a state change against both the metrics recorder
// and the audit trail in one call; either dependency may be nil.
func (e *Engine) transition(asn uint32, operation, from, to, outcome string) {
	e.Metrics.Transition(from, to, outcome)
	e.Audit.Record(asn, operation, from, to, outcome, "")
}

// Init implements init(asn): refresh the registry, resolve the ASN's
// fingerprint, allocate network resources, generate a challenge and
// keypair, and persist a pending record. Returns (challenge,
// fingerprint).
func (e *Engine) Init(ctx context.Context, asn uint32) (string, string, error) {
	if !inPrivateRange(asn) {
		return "", "", errors.NewBadRequestError(fmt.Sprintf("AS%d is outside the accepted range", asn), nil)
	}

	defer e.locks.Lock(asn)()

	registryPath, err := e.Mirror.EnsureFresh(ctx)
	if err != nil {
		return "", "", err
	}

	pairs, err := registry.Resolve(registryPath, asn)
	if err != nil {
		return "", "", err
	}
	fingerprint := pairs[0].Fingerprint

	// If a pending record already exists, return its existing
	// challenge and fingerprint rather than minting a second one —
	// AlreadyExists is not fatal, but it must be answered consistently.
	if existing, err := e.Store.Read(store.Pending, asn); err == nil {
		return existing.Challenge, existing.PGPFingerprint, nil
	} else if !errors.IsNotFound(err) {
		return "", "", err
	}

	challenge, err := generateChallenge(asn)
	if err != nil {
		return "", "", err
	}
	keyPair, err := peering.GenerateKeyPair()
	if err != nil {
		return "", "", err
	}
	alloc := allocate.For(e.LocalASN, asn)

	record := &peering.Record{
		ASN:                asn,
		LocalASN:           e.LocalASN,
		Status:             peering.StatusPending,
		Challenge:          challenge,
		PGPFingerprint:     fingerprint,
		LocalKeyPair:       keyPair,
		ListenPort:         alloc.ListenPort,
		LocalTunnelAddress: alloc.LocalTunnelAddress,
		PeerTunnelAddress:  alloc.PeerTunnelAddress,
		CreatedAt:          time.Now(),
	}

	if err := e.Store.CreatePending(record); err != nil {
		if errors.IsConflict(err) {
			if existing, rerr := e.Store.Read(store.Pending, asn); rerr == nil {
				return existing.Challenge, existing.PGPFingerprint, nil
			}
		}
		e.transition(asn, "init", "", "pending", audit.OutcomeError)
		return "", "", err
	}
	e.transition(asn, "init", "", "pending", audit.OutcomeOK)

	return challenge, fingerprint, nil
}

func generateChallenge(asn uint32) (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", errors.NewInternalError("generating challenge", err)
	}
	return fmt.Sprintf("AUTOPEER-%d-%s", asn, hex.EncodeToString(raw[:])), nil
}

// Verify implements verify(...): check the signed blob against the
// pending record's expectations, promote pending to verified, and issue
// a token. Returns (token, rendered tunnel config text).
func (e *Engine) Verify(ctx context.Context, asn uint32, signedBlob, submittedPublicKey, peerTunnelPublicKey, peerEndpoint string) (string, string, error) {
	defer e.locks.Lock(asn)()

	record, err := e.Store.Read(store.Pending, asn)
	if err != nil {
		return "", "", err
	}

	result, err := pgp.Verify(signedBlob, submittedPublicKey)
	if err != nil {
		return "", "", err
	}

	if strings.TrimSpace(result.Plaintext) != strings.TrimSpace(record.Challenge) {
		return "", "", errors.NewUnauthorizedError("signed challenge does not match the pending record", nil)
	}
	if !strings.EqualFold(result.SignerFingerprint, record.PGPFingerprint) {
		return "", "", errors.NewConflictError("signer fingerprint does not match the registry-bound fingerprint", nil)
	}
	submittedFingerprint, err := pgp.Fingerprint(submittedPublicKey)
	if err != nil {
		return "", "", err
	}
	if !strings.EqualFold(submittedFingerprint, record.PGPFingerprint) {
		return "", "", errors.NewConflictError("submitted public key fingerprint does not match the registry-bound fingerprint", nil)
	}

	record.PeerPublicKey = peerTunnelPublicKey
	record.PeerEndpoint = peerEndpoint
	record.Challenge = ""
	record.VerifiedAt = time.Now()
	record.Status = peering.StatusVerified

	if err := e.Store.Promote(record); err != nil {
		e.transition(asn, "verify", "pending", "verified", audit.OutcomeError)
		return "", "", err
	}
	e.transition(asn, "verify", "pending", "verified", audit.OutcomeOK)

	tok, err := e.Tokens.Issue(asn)
	if err != nil {
		return "", "", err
	}
	configText, err := tmpl.RenderTunnelConfig(record)
	if err != nil {
		return "", "", err
	}
	return tok, configText, nil
}

// Deploy implements deploy(asn_from_token): activate the verified
// record's tunnel and BGP session.
func (e *Engine) Deploy(ctx context.Context, asn uint32) error {
	defer e.locks.Lock(asn)()
	start := time.Now()

	record, err := e.Store.Read(store.Verified, asn)
	if err != nil {
		e.Metrics.ObserveDeploy(time.Since(start).Seconds(), "error")
		return err
	}
	if err := e.Deployer.Activate(ctx, record); err != nil {
		e.Metrics.ObserveDeploy(time.Since(start).Seconds(), "error")
		e.transition(asn, "deploy", "verified", "deployed", audit.OutcomeError)
		return err
	}

	record.Status = peering.StatusDeployed
	record.DeployedAt = time.Now()
	if err := e.Store.Update(store.Verified, record); err != nil {
		e.Metrics.ObserveDeploy(time.Since(start).Seconds(), "error")
		e.transition(asn, "deploy", "verified", "deployed", audit.OutcomeError)
		return err
	}
	e.Metrics.ObserveDeploy(time.Since(start).Seconds(), "ok")
	e.transition(asn, "deploy", "verified", "deployed", audit.OutcomeOK)
	return nil
}

// Status implements status(asn_from_token): a redacted projection of
// the verified record.
func (e *Engine) Status(asn uint32) (peering.StatusView, error) {
	record, err := e.Store.Read(store.Verified, asn)
	if err != nil {
		return peering.StatusView{}, err
	}
	return record.View(), nil
}

// Update implements update(asn_from_token, new_endpoint?): optionally
// change the peer's endpoint, then re-activate (deactivate then
// activate) so the running tunnel picks up the change.
func (e *Engine) Update(ctx context.Context, asn uint32, newEndpoint string) (peering.StatusView, error) {
	defer e.locks.Lock(asn)()

	record, err := e.Store.Read(store.Verified, asn)
	if err != nil {
		return peering.StatusView{}, err
	}

	if newEndpoint != "" {
		if !validEndpoint(newEndpoint) {
			return peering.StatusView{}, errors.NewBadRequestError(fmt.Sprintf("invalid endpoint %q", newEndpoint), nil)
		}
		record.PeerEndpoint = newEndpoint
	}

	if err := e.Deployer.Deactivate(ctx, asn); err != nil {
		return peering.StatusView{}, err
	}
	if err := e.Deployer.Activate(ctx, record); err != nil {
		return peering.StatusView{}, err
	}

	record.Status = peering.StatusDeployed
	record.DeployedAt = time.Now()
	if err := e.Store.Update(store.Verified, record); err != nil {
		return peering.StatusView{}, err
	}
	e.transition(asn, "update", "deployed", "deployed", audit.OutcomeOK)
	return record.View(), nil
}

func validEndpoint(endpoint string) bool {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil || host == "" || port == "" {
		return false
	}
	return true
}

// Deactivate implements deactivate(asn_from_token): tear the tunnel and
// BGP session down and mark the record inactive.
func (e *Engine) Deactivate(ctx context.Context, asn uint32) error {
	defer e.locks.Lock(asn)()

	record, err := e.Store.Read(store.Verified, asn)
	if err != nil {
		return err
	}
	if err := e.Deployer.Deactivate(ctx, asn); err != nil {
		e.transition(asn, "deactivate", "deployed", "inactive", audit.OutcomeError)
		return err
	}
	record.Status = peering.StatusInactive
	if err := e.Store.Update(store.Verified, record); err != nil {
		e.transition(asn, "deactivate", "deployed", "inactive", audit.OutcomeError)
		return err
	}
	e.transition(asn, "deactivate", "deployed", "inactive", audit.OutcomeOK)
	return nil
}

// Delete implements delete(asn_from_token): tear down best-effort and
// remove every trace of the record.
func (e *Engine) Delete(ctx context.Context, asn uint32) error {
	defer e.locks.Lock(asn)()

	if err := e.Deployer.Remove(ctx, asn); err != nil {
		logger.Warnw("best-effort teardown failed during delete", "asn", asn, "error", err)
	}
	if err := e.Store.Delete(store.Verified, asn); err != nil {
		return err
	}
	if err := e.Store.Delete(store.Pending, asn); err != nil {
		return err
	}
	e.transition(asn, "delete", "deployed", "deleted", audit.OutcomeOK)
	return nil
}

// Recover is the startup gc sweep: it drops temp files orphaned by a
// crashed write, deletes pending records older than ttl, and heals the
// crash window between Promote's verified-write and its pending-unlink
// by removing any pending record that also has a verified counterpart.
func (e *Engine) Recover(ttl time.Duration) error {
	for _, bucket := range []store.Bucket{store.Pending, store.Verified} {
		removed, err := e.Store.SweepTempFiles(bucket)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Infow("gc: removed orphaned temp files", "bucket", bucket.String(), "count", removed)
		}
	}

	pending, err := e.Store.List(store.Pending)
	if err != nil {
		return err
	}
	verified, err := e.Store.List(store.Verified)
	if err != nil {
		return err
	}
	verifiedASNs := make(map[uint32]bool, len(verified))
	for _, r := range verified {
		verifiedASNs[r.ASN] = true
	}

	now := time.Now()
	for _, r := range pending {
		if verifiedASNs[r.ASN] {
			logger.Infow("gc: removing stale pending record with a verified counterpart", "asn", r.ASN)
			if err := e.Store.Delete(store.Pending, r.ASN); err != nil {
				return err
			}
			continue
		}
		if now.Sub(r.CreatedAt) > ttl {
			logger.Infow("gc: removing expired pending record", "asn", r.ASN, "age", now.Sub(r.CreatedAt))
			if err := e.Store.Delete(store.Pending, r.ASN); err != nil {
				return err
			}
		}
	}
	return nil
}
