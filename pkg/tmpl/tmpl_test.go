package tmpl

import (
	"strings"
	"testing"

	"github.com/autopeerd/autopeerd/pkg/peering"
)

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

func TestRenderTunnelConfig(t *testing.T) {
	r := sampleRecord()
	out, err := RenderTunnelConfig(r)
	if err != nil {
		t.Fatalf("RenderTunnelConfig: %v", err)
	}
	for _, want := range []string{
		"PrivateKey = localpriv",
		"Address = fe80::1234:0001:0/64",
		"ListenPort = 31234",
		"PublicKey = remotepub",
		"AllowedIPs = fe80::1234:0001:1/64",
		"Endpoint = 1.2.3.4:31234",
		"PersistentKeepalive = 25",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered tunnel config missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRoutingDaemonConfig(t *testing.T) {
	r := sampleRecord()
	out, err := RenderRoutingDaemonConfig(r)
	if err != nil {
		t.Fatalf("RenderRoutingDaemonConfig: %v", err)
	}
	for _, want := range []string{
		"as4242421234",
		"local as 4242420001",
		"neighbor fe80::1234:0001:1 as 4242421234",
		`interface "wg-as4242421234"`,
		"extended next hop on",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered routing daemon config missing %q:\n%s", want, out)
		}
	}
}

func TestInterfaceName(t *testing.T) {
	if got := InterfaceName(4242421234); got != "wg-as4242421234" {
		t.Errorf("InterfaceName = %q, want wg-as4242421234", got)
	}
}
