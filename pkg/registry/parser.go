package registry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/autopeerd/autopeerd/pkg/errors"
)

// object is one RPSL-style record: a primary key naming it (e.g.
// "AS4242421234" for an aut-num, "MNT-EXAMPLE" for a mntner) plus every
// attribute line it carries, in the order they appeared. Repeated
// attribute names (mnt-by, auth) keep every occurrence.
type object struct {
	class string
	name  string
	attrs map[string][]string
}

func (o object) first(attr string) string {
	v := o.attrs[attr]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// parseObjects splits the registry's append-only text format into
// objects. Objects are separated by blank lines; within an object, a
// line beginning with whitespace is a continuation of the previous
// attribute's value (used by key-cert's multi-line "certif" armored
// block). Attribute names are matched case-insensitively.
func parseObjects(data string) []object {
	var objects []object
	var current *object
	var lastAttr string

	flush := func() {
		if current != nil {
			objects = append(objects, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// A truly empty line separates objects. A line that is merely
		// whitespace-only but still indented is a continuation of the
		// previous attribute's value (the cleartext-signature framing
		// embedded in a certif block has blank lines of its own).
		if line == "" {
			flush()
			lastAttr = ""
			continue
		}

		if (line[0] == ' ' || line[0] == '\t') && current != nil && lastAttr != "" {
			cont := strings.TrimSpace(line)
			vals := current.attrs[lastAttr]
			vals[len(vals)-1] = vals[len(vals)-1] + "\n" + cont
			current.attrs[lastAttr] = vals
			continue
		}

		trimmed := strings.TrimRight(line, " \t\r")

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if current == nil {
			current = &object{class: key, name: value, attrs: map[string][]string{}}
		}
		current.attrs[key] = append(current.attrs[key], value)
		lastAttr = key
	}
	flush()
	return objects
}

// KeyCert is one (fingerprint, armored public key) pair resolved from
// the registry.
type KeyCert struct {
	Fingerprint string
	ArmoredKey  string
}

// Resolve reads the registry text rooted at path, finds the aut-num
// for asn, follows its mnt-by attributes to mntner
// objects, follows their auth attributes to key-cert objects, and
// returns every (fingerprint, armored key) pair found. Fails with
// AsnNotRegistered if no aut-num names asn, KeyNotFound if the chain
// resolves to no key-cert at all (both surfaced as NotFound).
func Resolve(path string, asn uint32) ([]KeyCert, error) {
	data, err := readRegistryText(path)
	if err != nil {
		return nil, err
	}
	objects := parseObjects(data)

	autNum := findAutNum(objects, asn)
	if autNum == nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("AS%d is not registered", asn), nil)
	}

	var keyCerts []KeyCert
	for _, mntName := range autNum.attrs["mnt-by"] {
		mntner := findByClassAndName(objects, "mntner", mntName)
		if mntner == nil {
			continue
		}
		for _, authRef := range mntner.attrs["auth"] {
			keyCertName := extractKeyCertName(authRef)
			if keyCertName == "" {
				continue
			}
			kc := findByClassAndName(objects, "key-cert", keyCertName)
			if kc == nil {
				continue
			}
			fp := normalizeFingerprint(kc.first("fingerpr"))
			armored := reindentCertif(kc.first("certif"))
			if fp == "" || armored == "" {
				continue
			}
			keyCerts = append(keyCerts, KeyCert{Fingerprint: fp, ArmoredKey: armored})
		}
	}

	if len(keyCerts) == 0 {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no key-cert found for AS%d", asn), nil)
	}
	return keyCerts, nil
}

// ResolveFingerprint is Resolve narrowed to the single pair whose
// fingerprint matches want, case-insensitively. Fails with KeyNotFound
// (surfaced as NotFound) if no pair matches.
func ResolveFingerprint(path string, asn uint32, want string) (KeyCert, error) {
	pairs, err := Resolve(path, asn)
	if err != nil {
		return KeyCert{}, err
	}
	want = normalizeFingerprint(want)
	for _, kc := range pairs {
		if kc.Fingerprint == want {
			return kc, nil
		}
	}
	return KeyCert{}, errors.NewNotFoundError(fmt.Sprintf("no key-cert for AS%d matches fingerprint %s", asn, want), nil)
}

func findAutNum(objects []object, asn uint32) *object {
	want := fmt.Sprintf("AS%d", asn)
	for i := range objects {
		if objects[i].class == "aut-num" && strings.EqualFold(objects[i].name, want) {
			return &objects[i]
		}
	}
	return nil
}

func findByClassAndName(objects []object, class, name string) *object {
	for i := range objects {
		if objects[i].class == class && strings.EqualFold(objects[i].name, name) {
			return &objects[i]
		}
	}
	return nil
}

// extractKeyCertName pulls the PGPKEY-* token out of a mntner's auth
// attribute, which is typically written "PGPKEY-935300" or
// "pgp-fingerprint PGPKEY-935300".
func extractKeyCertName(authValue string) string {
	fields := strings.Fields(authValue)
	for _, f := range fields {
		if strings.HasPrefix(strings.ToUpper(f), "PGPKEY-") {
			return f
		}
	}
	return ""
}

func normalizeFingerprint(fp string) string {
	fp = strings.ToUpper(strings.TrimSpace(fp))
	return strings.ReplaceAll(fp, " ", "")
}

// reindentCertif turns a key-cert's continuation-joined certif value
// back into a well-formed armored key block: each line was stored
// without its original leading whitespace, which armor encoding doesn't
// need anyway.
func reindentCertif(certif string) string {
	return strings.TrimSpace(certif)
}

func readRegistryText(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.NewRegistryUnavailableError("registry path does not exist", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.NewRegistryUnavailableError("reading registry file", err)
		}
		return string(data), nil
	}

	var b strings.Builder
	walkErr := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if strings.HasPrefix(fi.Name(), ".") && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(fi.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		b.Write(data)
		b.WriteString("\n\n")
		return nil
	})
	if walkErr != nil {
		return "", errors.NewRegistryUnavailableError("walking registry directory", walkErr)
	}
	return b.String(), nil
}
