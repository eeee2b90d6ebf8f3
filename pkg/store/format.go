package store

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autopeerd/autopeerd/pkg/peering"
)

// timeLayout is used for every timestamp field written to a record file.
// RFC3339 round-trips exactly and is trivially readable by hand.
const timeLayout = time.RFC3339

// render serializes a record into ini-like text: [Interface], [Peer],
// and [BGP] in the shape the external tunnel tool and routing daemon
// expect, plus a [Challenge] section the tunnel tool ignores (it only
// recognizes the first three) carrying the fields that don't belong in
// either of their native formats.
func render(r *peering.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", r.LocalKeyPair.PrivateKey)
	fmt.Fprintf(&b, "Address = %s\n", r.LocalTunnelAddress)
	fmt.Fprintf(&b, "ListenPort = %d\n", r.ListenPort)
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", r.PeerPublicKey)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", r.PeerTunnelAddress)
	if r.PeerEndpoint != "" {
		fmt.Fprintf(&b, "Endpoint = %s\n", r.PeerEndpoint)
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "[BGP]\n")
	fmt.Fprintf(&b, "LocalASN = %d\n", r.LocalASN)
	fmt.Fprintf(&b, "NeighborASN = %d\n", r.ASN)
	fmt.Fprintf(&b, "NeighborAddress = %s\n", r.PeerTunnelAddress)
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "[Challenge]\n")
	fmt.Fprintf(&b, "ASN = %d\n", r.ASN)
	fmt.Fprintf(&b, "Status = %s\n", r.Status)
	fmt.Fprintf(&b, "Challenge = %s\n", r.Challenge)
	fmt.Fprintf(&b, "PGPFingerprint = %s\n", r.PGPFingerprint)
	fmt.Fprintf(&b, "PublicKey = %s\n", r.LocalKeyPair.PublicKey)
	fmt.Fprintf(&b, "CreatedAt = %s\n", formatTime(r.CreatedAt))
	fmt.Fprintf(&b, "VerifiedAt = %s\n", formatTime(r.VerifiedAt))
	fmt.Fprintf(&b, "DeployedAt = %s\n", formatTime(r.DeployedAt))

	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parse is the inverse of render. It is line-based and tolerant the
// same way the registry parser is: attribute names are matched
// case-insensitively, leading/trailing whitespace around "=" is ignored,
// blank lines and unrecognized keys are skipped rather than rejected.
func parse(content string) (*peering.Record, error) {
	r := &peering.Record{}

	section := ""
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch section {
		case "interface":
			switch key {
			case "privatekey":
				r.LocalKeyPair.PrivateKey = value
			case "address":
				r.LocalTunnelAddress = value
			case "listenport":
				if p, err := strconv.ParseUint(value, 10, 32); err == nil {
					r.ListenPort = uint32(p)
				}
			}
		case "peer":
			switch key {
			case "publickey":
				r.PeerPublicKey = value
			case "allowedips":
				r.PeerTunnelAddress = value
			case "endpoint":
				r.PeerEndpoint = value
			}
		case "bgp":
			switch key {
			case "localasn":
				if a, err := strconv.ParseUint(value, 10, 32); err == nil {
					r.LocalASN = uint32(a)
				}
			case "neighborasn":
				if a, err := strconv.ParseUint(value, 10, 32); err == nil {
					r.ASN = uint32(a)
				}
			}
		case "challenge":
			switch key {
			case "asn":
				if a, err := strconv.ParseUint(value, 10, 32); err == nil {
					r.ASN = uint32(a)
				}
			case "status":
				r.Status = peering.Status(value)
			case "challenge":
				r.Challenge = value
			case "pgpfingerprint":
				r.PGPFingerprint = value
			case "publickey":
				r.LocalKeyPair.PublicKey = value
			case "createdat":
				r.CreatedAt = parseTime(value)
			case "verifiedat":
				r.VerifiedAt = parseTime(value)
			case "deployedat":
				r.DeployedAt = parseTime(value)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return r, nil
}
