// Package tmpl renders a Peering Record into the external tunnel
// tool's ini-style interface file and the routing daemon's
// protocol-stanza syntax for a BGP neighbor. Both outputs are static
// strings with named placeholders, exactly the shape text/template is
// built for.
package tmpl

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/peering"
)

// persistentKeepalive keeps NAT bindings alive between handshakes.
const persistentKeepalive = 25

const tunnelConfigTemplate = `[Interface]
PrivateKey = {{.LocalKeyPair.PrivateKey}}
Address = {{.LocalTunnelAddress}}
ListenPort = {{.ListenPort}}

[Peer]
PublicKey = {{.PeerPublicKey}}
AllowedIPs = {{.PeerTunnelAddress}}
Endpoint = {{.PeerEndpoint}}
PersistentKeepalive = {{.PersistentKeepalive}}
`

const routingDaemonConfigTemplate = `protocol bgp as{{.ASN}} {
	local as {{.LocalASN}};
	neighbor {{.NeighborAddress}} as {{.ASN}};
	interface "{{.Interface}}";
	multihop;
	ipv4 {
		extended next hop on;
		add paths on;
	};
	ipv6 {
		extended next hop on;
		add paths on;
	};
	description "as{{.ASN}}";
}
`

var (
	tunnelTmpl = template.Must(template.New("tunnel").Option("missingkey=error").Parse(tunnelConfigTemplate))
	daemonTmpl = template.Must(template.New("daemon").Option("missingkey=error").Parse(routingDaemonConfigTemplate))
)

// routingDaemonView adapts a Record's field names to the routing daemon's
// stanza vocabulary; keeping it separate from peering.Record avoids
// coupling the data model to one routing daemon's naming.
type routingDaemonView struct {
	ASN             uint32
	LocalASN        uint32
	NeighborAddress string
	Interface       string
}

// RenderTunnelConfig renders the external tunnel tool's interface file
// for r. Both PeerPublicKey and PeerEndpoint must already be populated —
// callers render only verified records.
func RenderTunnelConfig(r *peering.Record) (string, error) {
	data := struct {
		*peering.Record
		PersistentKeepalive int
	}{Record: r, PersistentKeepalive: persistentKeepalive}

	var b strings.Builder
	if err := tunnelTmpl.Execute(&b, data); err != nil {
		return "", errors.NewTemplateError("rendering tunnel config", err)
	}
	return b.String(), nil
}

// RenderRoutingDaemonConfig renders the routing daemon's BGP neighbor
// stanza for r, naming the session after the remote ASN and binding it
// to the interface the deployer brings up.
func RenderRoutingDaemonConfig(r *peering.Record) (string, error) {
	data := routingDaemonView{
		ASN:             r.ASN,
		LocalASN:        r.LocalASN,
		NeighborAddress: strings.TrimSuffix(r.PeerTunnelAddress, "/64"),
		Interface:       InterfaceName(r.ASN),
	}

	var b strings.Builder
	if err := daemonTmpl.Execute(&b, data); err != nil {
		return "", errors.NewTemplateError("rendering routing daemon config", err)
	}
	return b.String(), nil
}

// InterfaceName is the wg-as<asn> naming scheme shared by the
// templates and the deployer.
func InterfaceName(asn uint32) string {
	return "wg-as" + strconv.FormatUint(uint64(asn), 10)
}
