// Package store is the filesystem persistence layer for Peering
// Records, split across a pending directory and a verified directory,
// with no database involved. Every write lands via a
// write-temp-then-rename so a reader never observes a partial file.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/peering"
)

// Bucket is one of the two directories a record can live in.
type Bucket int

const (
	Pending Bucket = iota
	Verified
)

func (b Bucket) String() string {
	if b == Verified {
		return "verified"
	}
	return "pending"
}

// Records hold private key material and must not be world- or
// group-readable.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Store is the Config Store. It is safe for concurrent use; callers that
// need read-modify-write atomicity across a single record (e.g. the
// lifecycle engine's transitions) must serialize those themselves, which
// is exactly what the per-ASN keyed mutex in pkg/lifecycle does.
type Store struct {
	pendingDir  string
	verifiedDir string
}

// New creates a Store rooted at pendingDir and verifiedDir, creating both
// if they don't already exist.
func New(pendingDir, verifiedDir string) (*Store, error) {
	for _, d := range []string{pendingDir, verifiedDir} {
		if err := os.MkdirAll(d, dirPerm); err != nil {
			return nil, errors.NewIoError(fmt.Sprintf("creating store directory %s", d), err)
		}
	}
	return &Store{pendingDir: pendingDir, verifiedDir: verifiedDir}, nil
}

func (s *Store) dir(b Bucket) string {
	if b == Verified {
		return s.verifiedDir
	}
	return s.pendingDir
}

// fileName is the stable scheme every record's path is derived from: the
// ASN alone determines the name, so a lookup never needs a directory scan.
func fileName(asn uint32) string {
	return fmt.Sprintf("as%d.conf", asn)
}

func (s *Store) path(b Bucket, asn uint32) string {
	return filepath.Join(s.dir(b), fileName(asn))
}

// tempPath embeds the process id so two processes never collide on the
// same temp name; writers within one process share it and rely on the
// caller serializing writes per ASN.
func (s *Store) tempPath(b Bucket, asn uint32) string {
	return filepath.Join(s.dir(b), fmt.Sprintf(".%s.tmp.%d", fileName(asn), os.Getpid()))
}

// writeAtomic renders r and writes it to path via a temp-file-then-rename.
func writeAtomic(path, tmpPath string, r *peering.Record) error {
	if err := os.WriteFile(tmpPath, []byte(render(r)), filePerm); err != nil {
		return errors.NewIoError("writing temp record file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.NewIoError("renaming record file into place", err)
	}
	return nil
}

// CreatePending writes a brand-new record into the pending bucket. It
// fails with a Conflict error if a record for this ASN is already pending.
func (s *Store) CreatePending(r *peering.Record) error {
	path := s.path(Pending, r.ASN)
	if _, err := os.Stat(path); err == nil {
		return errors.NewConflictError(fmt.Sprintf("pending record for AS%d already exists", r.ASN), nil)
	}
	return writeAtomic(path, s.tempPath(Pending, r.ASN), r)
}

// Read loads the record for asn from the given bucket.
func (s *Store) Read(b Bucket, asn uint32) (*peering.Record, error) {
	path := s.path(b, asn)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("%s record for AS%d", b, asn), nil)
		}
		return nil, errors.NewIoError("reading record file", err)
	}
	return parse(string(data))
}

// ReadPreferVerified looks in the verified bucket first and falls back to
// pending. If both exist — the crash window between Promote's rename and
// its cleanup unlink — it opportunistically removes the stale pending
// copy before returning the verified one.
func (s *Store) ReadPreferVerified(asn uint32) (*peering.Record, error) {
	if r, err := s.Read(Verified, asn); err == nil {
		if _, statErr := os.Stat(s.path(Pending, asn)); statErr == nil {
			_ = os.Remove(s.path(Pending, asn))
		}
		return r, nil
	} else if !errors.IsNotFound(err) {
		return nil, err
	}
	return s.Read(Pending, asn)
}

// Update overwrites the record for asn in the given bucket. It fails with
// NotFound if no record is there yet; use CreatePending for the initial
// write instead.
func (s *Store) Update(b Bucket, r *peering.Record) error {
	path := s.path(b, r.ASN)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError(fmt.Sprintf("%s record for AS%d", b, r.ASN), nil)
		}
		return errors.NewIoError("statting record file", err)
	}
	return writeAtomic(path, s.tempPath(b, r.ASN), r)
}

// Promote moves a record from pending to verified: the verified copy is
// written first (write-temp-then-rename), and only once that succeeds is
// the pending copy unlinked. A crash between the two leaves both present,
// which ReadPreferVerified and the startup gc sweep both know how to heal.
func (s *Store) Promote(r *peering.Record) error {
	if err := writeAtomic(s.path(Verified, r.ASN), s.tempPath(Verified, r.ASN), r); err != nil {
		return err
	}
	if err := os.Remove(s.path(Pending, r.ASN)); err != nil && !os.IsNotExist(err) {
		return errors.NewIoError("removing promoted pending record", err)
	}
	return nil
}

// Delete removes the record for asn from the given bucket. Deleting a
// record that doesn't exist is not an error: callers use Delete to make
// sure a record is gone, not to assert it was there.
func (s *Store) Delete(b Bucket, asn uint32) error {
	if err := os.Remove(s.path(b, asn)); err != nil && !os.IsNotExist(err) {
		return errors.NewIoError("deleting record file", err)
	}
	return nil
}

// SweepTempFiles removes temp files left behind in the given bucket by a
// write-temp-then-rename that crashed between the two steps, returning
// how many were removed. Live record files are never touched: temp names
// always start with a dot and carry a ".tmp." marker.
func (s *Store) SweepTempFiles(b Bucket) (int, error) {
	entries, err := os.ReadDir(s.dir(b))
	if err != nil {
		return 0, errors.NewIoError("listing record directory", err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.Contains(name, ".tmp.") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir(b), name)); err != nil && !os.IsNotExist(err) {
			return removed, errors.NewIoError("removing orphaned temp file", err)
		}
		removed++
	}
	return removed, nil
}

// List returns every record currently in the given bucket, sorted by ASN,
// skipping any file that doesn't match the as<ASN>.conf naming scheme
// (temp files left behind by a crashed write, in particular).
func (s *Store) List(b Bucket) ([]*peering.Record, error) {
	entries, err := os.ReadDir(s.dir(b))
	if err != nil {
		return nil, errors.NewIoError("listing record directory", err)
	}

	var records []*peering.Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "as") || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir(b), e.Name()))
		if err != nil {
			continue
		}
		r, err := parse(string(data))
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ASN < records[j].ASN })
	return records, nil
}
