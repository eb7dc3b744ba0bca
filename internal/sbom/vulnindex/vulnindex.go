// Package vulnindex is the local, offline vulnerability index the SBOM
// scanner consults (spec.md's "the vuln database is a local artifact" -
// no online CVE lookups).
//
// Schema (bbolt bucket layout), generalized from the teacher's
// internal/storage/bolt.go baseline/ledger split:
//
//	/vulns
//	    key:   ecosystem + "\x00" + package name
//	    value: JSON-encoded []Record
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Lookup(ecosystem, pkg, version) is two-stage: stage one is a single
// bbolt Get on the composite key (O(1), no bucket scan); stage two walks
// the (usually short) Record slice returned and evaluates each one's
// SemVer constraint against the installed version. A miss on stage one
// short-circuits without touching SemVer at all.
package vulnindex

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Masterminds/semver/v3"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

const (
	// SchemaVersion is the current vulnindex schema version.
	SchemaVersion = "1"

	bucketVulns = "vulns"
	bucketMeta  = "meta"
)

// Record is one known vulnerability entry for a package.
type Record struct {
	VulnID        string         `json:"vuln_id"`
	AffectedRange string         `json:"affected_range"` // SemVer constraint, e.g. "<1.2.3 || >=2.0.0, <2.1.5"
	FixedVersion  string         `json:"fixed_version,omitempty"`
	Severity      events.Severity `json:"severity"`
	Summary       string         `json:"summary"`
}

// Match is a Record that was found to apply to an installed version.
type Match struct {
	Record
	Package   string
	Ecosystem string
}

// Index wraps a bbolt database of known vulnerabilities, keyed by
// ecosystem+package for O(1) stage-one lookup.
type Index struct {
	db *bolt.DB
}

// Open opens (or creates) the vulnerability index at path.
func Open(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindStorage, "open vulnerability index", err).WithPath(path)
	}

	idx := &Index{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketVulns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			return meta.Put([]byte("schema_version"), []byte(SchemaVersion))
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, ironerr.Wrap(ironerr.KindStorage, "initialize vulnerability index schema", err).WithPath(path)
	}

	if err := idx.checkSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) checkSchemaVersion() error {
	return idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketMeta)).Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return ironerr.New(ironerr.KindStorage,
				fmt.Sprintf("vulnerability index schema mismatch: have %q, need %q", string(v), SchemaVersion))
		}
		return nil
	})
}

// Close closes the underlying bbolt file.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func compositeKey(ecosystem, pkg string) []byte {
	return []byte(ecosystem + "\x00" + pkg)
}

// Put replaces the full record set for one ecosystem/package pair. Used
// by index-ingest tooling; the scanner itself is read-only.
func (idx *Index) Put(ecosystem, pkg string, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal vulnindex record: %w", err)
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketVulns)).Put(compositeKey(ecosystem, pkg), data)
	})
}

// Count returns the number of indexed ecosystem/package entries, for the
// VulnIndexEntries gauge.
func (idx *Index) Count() (int, error) {
	n := 0
	err := idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketVulns)).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Lookup returns every known Record for ecosystem/pkg whose AffectedRange
// matches installedVersion. Stage one is a single bbolt Get; stage two
// evaluates SemVer constraints only against the (typically small) record
// set a hit returns.
func (idx *Index) Lookup(ecosystem, pkg, installedVersion string) ([]Match, error) {
	var raw []byte
	if err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketVulns)).Get(compositeKey(ecosystem, pkg))
		if v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	}); err != nil {
		return nil, ironerr.Wrap(ironerr.KindStorage, "vulnindex lookup", err)
	}
	if raw == nil {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, ironerr.Wrap(ironerr.KindStorage, "decode vulnindex record", err)
	}

	installed, err := semver.NewVersion(installedVersion)
	if err != nil {
		// Unparsable installed version: report every known record for the
		// package rather than silently dropping coverage.
		matches := make([]Match, 0, len(records))
		for _, r := range records {
			matches = append(matches, Match{Record: r, Package: pkg, Ecosystem: ecosystem})
		}
		return matches, nil
	}

	var matches []Match
	for _, r := range records {
		constraint, err := semver.NewConstraint(r.AffectedRange)
		if err != nil {
			continue
		}
		if constraint.Check(installed) {
			matches = append(matches, Match{Record: r, Package: pkg, Ecosystem: ecosystem})
		}
	}
	return matches, nil
}
