// Package peering defines the Peering Record, the single first-class
// entity every other component reads or writes.
package peering

import "time"

// Status is a Peering Record's position in the lifecycle state machine.
type Status string

// The four states a Peering Record can be in.
const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusDeployed Status = "deployed"
	StatusInactive Status = "inactive"
)

// KeyPair is a tunnel keypair: a private key this service generated on the
// operator's behalf, and the public key derived from it.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Record is one peering session's full state. A pending record has
// PeerPublicKey, PeerEndpoint, VerifiedAt, and DeployedAt all zero; every
// other field is populated at init and never changes except as the
// lifecycle transitions describe.
type Record struct {
	// ASN is the remote autonomous system this record peers with.
	ASN uint32
	// LocalASN is the operator's own ASN, recorded for self-containment.
	LocalASN uint32
	// Status is this record's current lifecycle state.
	Status Status

	// Challenge is the opaque, single-use proof-of-control token. Cleared
	// (set to "") once verification succeeds.
	Challenge string
	// PGPFingerprint is the fingerprint the registry bound to ASN at init
	// time; every verify attempt is checked against it.
	PGPFingerprint string

	// LocalKeyPair is the tunnel keypair generated by this service.
	LocalKeyPair KeyPair
	// PeerPublicKey is the remote tunnel public key, absent until verify.
	PeerPublicKey string
	// PeerEndpoint is the remote host:port, absent until verify.
	PeerEndpoint string

	// ListenPort, LocalTunnelAddress, and PeerTunnelAddress are the
	// allocator's outputs; pure functions of (LocalASN, ASN) and fixed
	// for the life of the record.
	ListenPort         uint32
	LocalTunnelAddress string
	PeerTunnelAddress  string

	// CreatedAt, VerifiedAt, and DeployedAt are diagnostic timestamps only;
	// replay protection comes from Challenge being single-use, not from
	// these.
	CreatedAt  time.Time
	VerifiedAt time.Time
	DeployedAt time.Time
}

// IsPending reports whether a record still awaits verification.
func (r *Record) IsPending() bool {
	return r.Status == StatusPending
}

// HasPeerInfo reports whether verify has already populated the
// remote-supplied fields.
func (r *Record) HasPeerInfo() bool {
	return r.PeerPublicKey != "" && r.PeerEndpoint != "" && !r.VerifiedAt.IsZero()
}

// StatusView is the redacted projection returned by the status endpoint:
// no private keys, no challenge.
type StatusView struct {
	ASN                uint32    `json:"asn"`
	LocalASN           uint32    `json:"local_asn"`
	Status             Status    `json:"status"`
	PeerEndpoint       string    `json:"peer_endpoint,omitempty"`
	ListenPort         uint32    `json:"listen_port"`
	LocalTunnelAddress string    `json:"local_tunnel_address"`
	PeerTunnelAddress  string    `json:"peer_tunnel_address"`
	CreatedAt          time.Time `json:"created_at"`
	VerifiedAt         time.Time `json:"verified_at"`
	DeployedAt         time.Time `json:"deployed_at"`
}

// View projects a Record down to its redacted StatusView.
func (r *Record) View() StatusView {
	return StatusView{
		ASN:                r.ASN,
		LocalASN:           r.LocalASN,
		Status:             r.Status,
		PeerEndpoint:       r.PeerEndpoint,
		ListenPort:         r.ListenPort,
		LocalTunnelAddress: r.LocalTunnelAddress,
		PeerTunnelAddress:  r.PeerTunnelAddress,
		CreatedAt:          r.CreatedAt,
		VerifiedAt:         r.VerifiedAt,
		DeployedAt:         r.DeployedAt,
	}
}
