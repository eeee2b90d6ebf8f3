// Package audit records the peering lifecycle's state transitions as
// structured events: who (ASN), what changed (from/to status), and how
// it went (outcome), so an operator can reconstruct why a peer ended
// up in a given state after the fact.
package audit
