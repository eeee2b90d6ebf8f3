// Package allocate computes the deterministic UDP port and IPv6
// link-local tunnel addresses for an (operator ASN, peer ASN) pair.
// The mapping is pure and total: each side of a peering derives its
// allocation from nothing but the two ASNs.
package allocate

import "fmt"

// listenPortBase is the offset added to a peer ASN's low four decimal
// digits to derive the tunnel's UDP listen port.
const listenPortBase = 30000

// asnModulus bounds the slice of the ASN used for both the port and the
// address hextet.
const asnModulus = 10000

// Allocation is the deterministic set of network resources assigned to one
// side of a peering.
type Allocation struct {
	// ListenPort is the UDP port the local tunnel endpoint listens on.
	ListenPort uint32
	// LocalTunnelAddress is this side's IPv6 link-local tunnel address,
	// written with a /64 prefix.
	LocalTunnelAddress string
	// PeerTunnelAddress is the remote side's IPv6 link-local tunnel
	// address, written with a /64 prefix.
	PeerTunnelAddress string
}

// For computes the allocation for the peering between myASN (the operator's
// own ASN) and peerASN (the remote ASN), from the local side's point of
// view. Both addresses carry peerASN's low four digits in the first
// hextet and myASN's in the second, and ListenPort tracks peerASN, so
// swapping the arguments swaps those two hextets and changes the port:
// For(a, b) and For(b, a) yield different addresses, and different
// ListenPorts unless a and b share their low four digits.
func For(myASN, peerASN uint32) Allocation {
	return Allocation{
		ListenPort:         listenPortBase + peerASN%asnModulus,
		LocalTunnelAddress: tunnelAddress(peerASN, myASN, 0),
		PeerTunnelAddress:  tunnelAddress(peerASN, myASN, 1),
	}
}

// tunnelAddress renders fe80::<peer-low4>:<my-low4>:<final>/64. The
// zero-padded four-decimal-digit slice of each ASN is written directly
// into its hextet position: every digit 0-9 is already a valid hex
// digit, so no base conversion happens, only zero-padding.
func tunnelAddress(peerASN, myASN uint32, final int) string {
	return fmt.Sprintf("fe80::%04d:%04d:%d/64", peerASN%asnModulus, myASN%asnModulus, final)
}
