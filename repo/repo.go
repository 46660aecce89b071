// Package repo implements repository metadata handling, signed archive
// verification, and mirror/cache management (§4.6): the layer between the
// fetcher (raw bytes) and the manifest package (parsed packages).
package repo

import (
	"fmt"

	"github.com/freebsd/pkg-sub001/fetcher"
)

// SignatureType selects how a repository's metadata archives are trusted,
// per §3's Repository.signature_type.
type SignatureType int

const (
	SignatureNone SignatureType = iota
	SignaturePubkey
	SignatureFingerprint
)

// MirrorType selects how additional mirrors for a repository are
// discovered, per §3's Repository.mirror_type.
type MirrorType int

const (
	MirrorNone MirrorType = iota
	MirrorSRV
	MirrorHTTP
)

// IPPreference restricts which address family a repository's transports
// dial, per §3's Repository.ip_preference.
type IPPreference int

const (
	IPAny IPPreference = iota
	IPv4Only
	IPv6Only
)

// Repository is one configured package source (§3). The caller owns the
// set of active repositories; this package keeps no process-wide list.
type Repository struct {
	Name            string
	URL             string
	MirrorType      MirrorType
	SignatureType   SignatureType
	PubkeyPath      string
	FingerprintDir  string
	Priority        int
	Enabled         bool
	Env             []string // "KEY=VALUE" overrides layered over the process environment
	IPPreference    IPPreference
	TrustedFPs      []string
	RevokedFPs      []string

	Meta Meta

	fetcher  fetcher.Fetcher
	needsSRV bool
	mirrors  []fetcher.Mirror
}

// Open resolves the repository's transport and records whether its URL
// carries a "pkg+" scheme that calls for SRV mirror discovery (§4.5/§4.6).
// Open does not run the SRV lookup; the mirror set stays empty.
func (r *Repository) Open(env fetcher.Env) error {
	f, needsSRV, err := fetcher.New(r.URL, env)
	if err != nil {
		return fmt.Errorf("repo %s: %w", r.Name, err)
	}
	r.fetcher = f
	r.needsSRV = needsSRV
	return nil
}

// Close releases any transport resources (subprocess pipes, open sockets),
// per §3's Repository teardown note.
func (r *Repository) Close() error {
	if r.fetcher == nil {
		return nil
	}
	return r.fetcher.Close()
}

func (r *Repository) Fetcher() fetcher.Fetcher { return r.fetcher }
