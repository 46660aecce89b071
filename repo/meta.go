package repo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// KeyType names the cryptographic scheme of one entry in Meta.Keys, per §3's
// `keys: map<name, {pubkey, type}>`.
type KeyType int

const (
	KeyRSA KeyType = iota
	KeyRSA2
	KeyECDSA
	KeyEd25519
)

// MetaKey is one named signer entry in the repository's meta document.
type MetaKey struct {
	Pubkey string
	Type   string
}

// Meta is the repository metadata document of §3 ("Repository meta (v2)"),
// served as meta.conf (current servers) or meta.txz (legacy, §9's "meta v1
// deprecation": accepted on read, never produced).
type Meta struct {
	Version          int
	Maintainer       string
	Source           string
	PackingFormat    string
	ManifestsFile    string
	ManifestsArchive string
	ConflictsFile    string
	ConflictsArchive string
	FilesiteFile     string
	FilesiteArchive  string
	DataFile         string
	DataArchive      string
	SourceIdentifier string
	Revision         int
	EOLTimestamp     int64
	Keys             map[string]MetaKey
}

// ParseMeta parses a meta.conf document. The wire grammar is UCL (a JSON
// superset); this core accepts plain JSON, matching manifest.Unmarshal's
// stance that every format this core emits or reads for structured
// documents round-trips through Go's encoding/json, and falls back to a
// small UCL-object tokenizer for files hand-edited in the legacy bareword
// style (mirroring manifest/ucl.go's write-side grammar in reverse).
func ParseMeta(data []byte) (*Meta, error) {
	trimmed := strings.TrimSpace(string(data))
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		obj, uerr := parseUCLObject(trimmed)
		if uerr != nil {
			return nil, fmt.Errorf("repo: parsing meta document: %w", err)
		}
		raw = obj
	}
	m := &Meta{Keys: map[string]MetaKey{}}
	assignString(raw, "maintainer", &m.Maintainer)
	assignString(raw, "source", &m.Source)
	assignString(raw, "packing_format", &m.PackingFormat)
	assignString(raw, "manifests", &m.ManifestsFile)
	assignString(raw, "manifests_archive", &m.ManifestsArchive)
	assignString(raw, "conflicts", &m.ConflictsFile)
	assignString(raw, "conflicts_archive", &m.ConflictsArchive)
	assignString(raw, "filesite", &m.FilesiteFile)
	assignString(raw, "filesite_archive", &m.FilesiteArchive)
	assignString(raw, "data", &m.DataFile)
	assignString(raw, "data_archive", &m.DataArchive)
	assignString(raw, "source_identifier", &m.SourceIdentifier)

	if v, ok := raw["version"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err == nil {
			m.Version = n
		}
	}
	if m.Version == 0 {
		m.Version = 1 // meta.conf with no explicit version predates the field; treat as v1.
	}
	if v, ok := raw["revision"]; ok {
		var n int
		if json.Unmarshal(v, &n) == nil {
			m.Revision = n
		}
	}
	if v, ok := raw["eol"]; ok {
		var n int64
		if json.Unmarshal(v, &n) == nil {
			m.EOLTimestamp = n
		}
	}
	if v, ok := raw["cert"]; ok {
		var keys map[string]struct {
			Pubkey string `json:"pubkey"`
			Type   string `json:"type"`
		}
		if json.Unmarshal(v, &keys) == nil {
			for name, k := range keys {
				m.Keys[name] = MetaKey{Pubkey: k.Pubkey, Type: k.Type}
			}
		}
	}
	return m, nil
}

// IsLegacy reports whether this meta document predates v2 (§9's
// "meta v1 deprecation": such documents are parsed, including their
// flat-file conflicts format, but this core never writes one back out).
func (m *Meta) IsLegacy() bool { return m.Version < 2 }

func assignString(raw map[string]json.RawMessage, key string, dst *string) {
	v, ok := raw[key]
	if !ok {
		return
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		*dst = s
	}
}

// parseUCLObject tokenizes a flat-or-one-level-nested UCL object of the
// shape meta.conf actually uses in practice: bareword or quoted keys,
// `=` or `:` assignment, `;` or newline separators, and `{...}` nesting for
// the "cert" map. It is not a general UCL grammar (arrays and includes are
// not supported, matching parseFingerprintFile's narrower scope note in
// signer/fingerprint.go).
func parseUCLObject(s string) (map[string]json.RawMessage, error) {
	p := &uclParser{input: s}
	return p.parseObjectBody()
}

type uclParser struct {
	input string
	pos   int
}

func (p *uclParser) parseObjectBody() (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	for {
		p.skipSpaceAndSeparators()
		if p.pos >= len(p.input) || p.input[p.pos] == '}' {
			return out, nil
		}
		key, err := p.readKey()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos < len(p.input) && (p.input[p.pos] == '=' || p.input[p.pos] == ':') {
			p.pos++
		}
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == '{' {
			p.pos++
			nested, err := p.parseObjectBody()
			if err != nil {
				return nil, err
			}
			if p.pos < len(p.input) && p.input[p.pos] == '}' {
				p.pos++
			}
			b, _ := json.Marshal(nested)
			out[key] = b
			continue
		}
		val, err := p.readValue()
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
}

func (p *uclParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *uclParser) skipSpaceAndSeparators() {
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ';' || c == ',' {
			p.pos++
			continue
		}
		break
	}
}

func (p *uclParser) readKey() (string, error) {
	start := p.pos
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		p.pos++
		start = p.pos
		for p.pos < len(p.input) && p.input[p.pos] != '"' {
			p.pos++
		}
		key := p.input[start:p.pos]
		p.pos++
		return key, nil
	}
	for p.pos < len(p.input) && !strings.ContainsRune(" \t\n\r=:{", rune(p.input[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("repo: meta: expected key at offset %d", p.pos)
	}
	return p.input[start:p.pos], nil
}

func (p *uclParser) readValue() (json.RawMessage, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] != '"' {
			p.pos++
		}
		val := p.input[start:p.pos]
		p.pos++
		b, _ := json.Marshal(val)
		return b, nil
	}
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune(";,\n\r}", rune(p.input[p.pos])) {
		p.pos++
	}
	raw := strings.TrimSpace(p.input[start:p.pos])
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		b, _ := json.Marshal(n)
		return b, nil
	}
	if raw == "true" || raw == "false" {
		return json.RawMessage(raw), nil
	}
	b, _ := json.Marshal(raw)
	return b, nil
}
