// Package manifest implements bidirectional serialization between a
// pkgcore.Package value and the canonical manifest document (§4.3):
// JSON-compact by default, pretty YAML, or UCL on request.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// depEntry is the wire shape of one deps/rdeps value.
type depEntry struct {
	Origin  string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Locked  bool   `json:"locked,omitempty" yaml:"locked,omitempty"`
}

// dirEntry is the wire shape of one directories value: either a bare bool
// (present/absent, legacy shorthand) or the structured {uname,gname,perm}
// form. MarshalJSON always emits the structured form; UnmarshalJSON accepts
// both per the §4.3 schema ("bool/string | object").
type dirEntry struct {
	Uname string `json:"uname,omitempty"`
	Gname string `json:"gname,omitempty"`
	Perm  uint32 `json:"perm,omitempty"`
}

func (d dirEntry) MarshalJSON() ([]byte, error) {
	type alias dirEntry
	return json.Marshal(alias(d))
}

func (d *dirEntry) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*d = dirEntry{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = dirEntry{Uname: s}
		return nil
	}
	type alias dirEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = dirEntry(a)
	return nil
}

// messageEntry is one array entry of the wire "messages" key.
type messageEntry struct {
	Message        string `json:"message"`
	Type           string `json:"type,omitempty"`
	MinimumVersion string `json:"minimum_version,omitempty"`
	MaximumVersion string `json:"maximum_version,omitempty"`
}

// Document is the on-the-wire manifest shape from §4.3's key schema. It is
// the JSON/YAML/UCL encoding target; Package is the in-memory model the
// rest of the core operates on. ToDocument/FromDocument convert between
// them.
type Document struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Origin     string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Arch       string `json:"arch,omitempty" yaml:"arch,omitempty"`
	ABI        string `json:"abi,omitempty" yaml:"abi,omitempty"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Desc       string `json:"desc,omitempty" yaml:"desc,omitempty"` // URL-encoded
	WWW        string `json:"www,omitempty" yaml:"www,omitempty"`
	Maintainer string `json:"maintainer,omitempty" yaml:"maintainer,omitempty"`
	Prefix     string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	FlatSize  int64 `json:"flatsize,omitempty" yaml:"flatsize,omitempty"`
	PkgSize   int64 `json:"pkgsize,omitempty" yaml:"pkgsize,omitempty"`
	Timestamp int64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`

	LicenseLogic string   `json:"licenselogic,omitempty" yaml:"licenselogic,omitempty"`
	Licenses     []string `json:"licenses,omitempty" yaml:"licenses,omitempty"`
	Categories   []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Users        []string `json:"users,omitempty" yaml:"users,omitempty"`
	Groups       []string `json:"groups,omitempty" yaml:"groups,omitempty"`

	Deps map[string]depEntry `json:"deps,omitempty" yaml:"deps,omitempty"`

	Files       map[string]string  `json:"files,omitempty" yaml:"files,omitempty"` // path -> sha256 or "-"
	Config      []string           `json:"config,omitempty" yaml:"config,omitempty"`
	Directories map[string]dirEntry `json:"directories,omitempty" yaml:"directories,omitempty"`

	Options            map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
	OptionDefaults     map[string]string `json:"option_defaults,omitempty" yaml:"option_defaults,omitempty"`
	OptionDescriptions map[string]string `json:"option_descriptions,omitempty" yaml:"option_descriptions,omitempty"`

	Scripts    map[string]string   `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	LuaScripts map[string][]string `json:"lua_scripts,omitempty" yaml:"lua_scripts,omitempty"`

	ShlibsRequired []string `json:"shlibs_required,omitempty" yaml:"shlibs_required,omitempty"`
	ShlibsProvided []string `json:"shlibs_provided,omitempty" yaml:"shlibs_provided,omitempty"`
	Provides       []string `json:"provides,omitempty" yaml:"provides,omitempty"`
	Requires       []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	Conflicts      []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`

	Annotations orderedStrMap `json:"annotations,omitempty" yaml:"annotations,omitempty"`

	Messages []messageEntry `json:"messages,omitempty" yaml:"messages,omitempty"`

	Sum      string `json:"sum,omitempty" yaml:"sum,omitempty"`
	RepoPath string `json:"repopath,omitempty" yaml:"repopath,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`

	Vital     bool `json:"vital,omitempty" yaml:"vital,omitempty"`
	Automatic bool `json:"automatic,omitempty" yaml:"automatic,omitempty"`
	Locked    bool `json:"locked,omitempty" yaml:"locked,omitempty"`

	DepFormula string `json:"dep_formula,omitempty" yaml:"dep_formula,omitempty"`
}

// licenseLogicNames mirrors Package.LicenseLogic's wire spelling.
var licenseLogicNames = map[pkgcore.LicenseLogic]string{
	pkgcore.LicenseSingle: "single",
	pkgcore.LicenseAnd:    "and",
	pkgcore.LicenseOr:     "or",
}

var licenseLogicByName = map[string]pkgcore.LicenseLogic{
	"single": pkgcore.LicenseSingle,
	"and":    pkgcore.LicenseAnd,
	"multi":  pkgcore.LicenseAnd,
	"or":     pkgcore.LicenseOr,
	"dual":   pkgcore.LicenseOr,
}

var messageTypeNames = map[pkgcore.MessageType]string{
	pkgcore.MessageAlways:  "always",
	pkgcore.MessageInstall: "install",
	pkgcore.MessageRemove:  "remove",
	pkgcore.MessageUpgrade: "upgrade",
}

var messageTypeByName = map[string]pkgcore.MessageType{
	"always":  pkgcore.MessageAlways,
	"install": pkgcore.MessageInstall,
	"remove":  pkgcore.MessageRemove,
	"upgrade": pkgcore.MessageUpgrade,
}

// ToDocument renders p into the wire Document shape. desc is URL-encoded
// per §4.3 ("desc is URL-encoded").
func ToDocument(p *pkgcore.Package) (*Document, error) {
	d := &Document{
		Name:         p.Name,
		Origin:       p.Origin,
		Version:      p.Version,
		Arch:         p.AltABI,
		Comment:      p.Comment,
		Desc:         url.QueryEscape(p.Desc),
		WWW:          p.WWW,
		Maintainer:   p.Maintainer,
		Prefix:       p.Prefix,
		FlatSize:     p.FlatSize,
		PkgSize:      p.PkgSize,
		Timestamp:    p.Timestamp,
		LicenseLogic: licenseLogicNames[p.LicenseLogic],
		Licenses:     p.Licenses,
		Categories:   p.Categories,
		Users:        p.Users,
		Groups:       p.Groups,
		Vital:        p.Vital,
		Automatic:    p.Automatic,
		Locked:       p.Locked,
		Sum:          p.Checksum,
	}
	if p.ABI != (pkgcore.ABI{}) {
		d.ABI = p.ABI.String()
	}

	if deps := p.Deps(); len(deps) > 0 {
		d.Deps = make(map[string]depEntry, len(deps))
		for _, dep := range deps {
			d.Deps[dep.Name] = depEntry{Origin: dep.Origin, Version: dep.Version, Locked: dep.Locked}
		}
	}

	if len(p.Files) > 0 {
		d.Files = make(map[string]string, len(p.Files))
	}
	for _, f := range p.Files {
		path, err := urlEncodePath(f.Path)
		if err != nil {
			return nil, err
		}
		sum := f.SHA256
		if sum == "" {
			sum = "-"
		}
		d.Files[path] = sum
		if f.IsConfig {
			d.Config = append(d.Config, path)
		}
	}

	if len(p.Dirs) > 0 {
		d.Directories = make(map[string]dirEntry, len(p.Dirs))
	}
	for _, dir := range p.Dirs {
		path, err := urlEncodePath(dir.Path)
		if err != nil {
			return nil, err
		}
		d.Directories[path] = dirEntry{Uname: dir.Uname, Gname: dir.Gname, Perm: dir.Mode}
	}

	for _, opt := range p.Options {
		if d.Options == nil {
			d.Options = make(map[string]string)
		}
		d.Options[opt.Key] = opt.Value
		if opt.Default != "" {
			if d.OptionDefaults == nil {
				d.OptionDefaults = make(map[string]string)
			}
			d.OptionDefaults[opt.Key] = opt.Default
		}
		if opt.Description != "" {
			if d.OptionDescriptions == nil {
				d.OptionDescriptions = make(map[string]string)
			}
			d.OptionDescriptions[opt.Key] = opt.Description
		}
	}

	if len(p.Scripts) > 0 {
		d.Scripts = make(map[string]string, len(p.Scripts))
		for k, v := range p.Scripts {
			d.Scripts[k] = v
		}
	}
	if len(p.LuaScripts) > 0 {
		d.LuaScripts = make(map[string][]string, len(p.LuaScripts))
		for k, v := range p.LuaScripts {
			d.LuaScripts[k] = append([]string(nil), v...)
		}
	}

	d.ShlibsRequired = p.ShlibsReq.Items()
	d.ShlibsProvided = p.ShlibsProv.Items()
	d.Provides = p.Provides.Items()
	d.Requires = p.Requires.Items()

	var conflicts []string
	for _, c := range p.Conflicts.Items() {
		conflicts = append(conflicts, c)
	}
	d.Conflicts = conflicts

	for _, a := range p.Annotations {
		d.Annotations = append(d.Annotations, orderedStrPair{Key: a.Key, Value: a.Value})
	}

	for _, m := range p.Messages {
		d.Messages = append(d.Messages, messageEntry{
			Message:        m.Text,
			Type:           messageTypeNames[m.Type],
			MinimumVersion: m.MinimumVersion,
			MaximumVersion: m.MaximumVersion,
		})
	}

	return d, nil
}

// urlEncodePath percent-encodes path components, preserving the leading
// slash, matching "%XX" escaping of non-ASCII/'%' bytes (§4.3).
func urlEncodePath(p string) (string, error) {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.QueryEscape(s)
	}
	return strings.Join(segs, "/"), nil
}

func urlDecodePath(p string) (string, error) {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		d, err := url.QueryUnescape(s)
		if err != nil {
			return "", fmt.Errorf("manifest: invalid path encoding %q: %w", p, err)
		}
		segs[i] = d
	}
	return strings.Join(segs, "/"), nil
}

// FromDocument builds a Package from a parsed Document. Duplicate
// annotation keys are already skipped by orderedStrMap.UnmarshalJSON before
// FromDocument ever sees them; plain map-typed fields rely on
// encoding/json's own last-write-wins collapse.
func FromDocument(d *Document) (*pkgcore.Package, error) {
	p := pkgcore.NewPackage()
	p.Name = d.Name
	p.Origin = d.Origin
	p.Version = d.Version
	p.AltABI = d.Arch
	p.Comment = d.Comment
	p.Maintainer = d.Maintainer
	p.WWW = d.WWW
	p.Prefix = d.Prefix
	p.FlatSize = d.FlatSize
	p.PkgSize = d.PkgSize
	p.Timestamp = d.Timestamp
	p.Vital = d.Vital
	p.Automatic = d.Automatic
	p.Locked = d.Locked
	p.Checksum = d.Sum

	if desc, err := url.QueryUnescape(d.Desc); err == nil {
		p.Desc = desc
	} else {
		p.Desc = d.Desc
	}

	if d.ABI != "" {
		abi, err := pkgcore.ParseABI(d.ABI)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		p.ABI = abi
	}

	if ll, ok := licenseLogicByName[d.LicenseLogic]; ok {
		p.LicenseLogic = ll
	}
	p.Licenses = d.Licenses
	p.Categories = d.Categories
	p.Users = d.Users
	p.Groups = d.Groups

	for name, dep := range d.Deps {
		if err := p.AddDep(pkgcore.Dep{Name: name, Origin: dep.Origin, Version: dep.Version, Locked: dep.Locked}); err != nil {
			return nil, err
		}
	}

	configSet := make(map[string]bool, len(d.Config))
	for _, c := range d.Config {
		path, err := urlDecodePath(c)
		if err != nil {
			return nil, err
		}
		configSet[path] = true
	}

	for encPath, sum := range d.Files {
		path, err := urlDecodePath(encPath)
		if err != nil {
			return nil, err
		}
		if sum == "-" {
			sum = ""
		}
		if err := p.AddFile(pkgcore.File{Path: path, SHA256: sum, IsConfig: configSet[path]}); err != nil {
			return nil, err
		}
	}

	for encPath, dir := range d.Directories {
		path, err := urlDecodePath(encPath)
		if err != nil {
			return nil, err
		}
		if err := p.AddDir(pkgcore.Dir{Path: path, Uname: dir.Uname, Gname: dir.Gname, Mode: dir.Perm}); err != nil {
			return nil, err
		}
	}

	for key, value := range d.Options {
		opt := pkgcore.Option{Key: key, Value: value}
		if d.OptionDefaults != nil {
			opt.Default = d.OptionDefaults[key]
		}
		if d.OptionDescriptions != nil {
			opt.Description = d.OptionDescriptions[key]
		}
		if err := p.AddOption(opt); err != nil {
			return nil, err
		}
	}

	if len(d.Scripts) > 0 {
		p.Scripts = make(map[string]string, len(d.Scripts))
		for k, v := range d.Scripts {
			p.Scripts[k] = v
		}
	}
	if len(d.LuaScripts) > 0 {
		p.LuaScripts = make(map[string][]string, len(d.LuaScripts))
		for k, v := range d.LuaScripts {
			p.LuaScripts[k] = append([]string(nil), v...)
		}
	}

	for _, s := range d.ShlibsRequired {
		p.ShlibsReq.Add(s)
	}
	for _, s := range d.ShlibsProvided {
		p.ShlibsProv.Add(s)
	}
	for _, s := range d.Provides {
		p.Provides.Add(s)
	}
	for _, s := range d.Requires {
		p.Requires.Add(s)
	}
	for _, s := range d.Conflicts {
		p.Conflicts.Add(s)
	}

	for _, a := range d.Annotations {
		p.Annotations = append(p.Annotations, pkgcore.Annotation{Key: a.Key, Value: a.Value})
	}

	for _, m := range d.Messages {
		msg := pkgcore.Message{Text: m.Message, MinimumVersion: m.MinimumVersion, MaximumVersion: m.MaximumVersion}
		if t, ok := messageTypeByName[m.Type]; ok {
			msg.Type = t
		}
		p.Messages = append(p.Messages, msg)
	}

	return p, nil
}

// Flags selects the emitter output shape (§4.3 "Emitter flags").
type Flags uint8

const (
	FlagNone Flags = 0
	// FlagPretty emits YAML instead of JSON.
	FlagPretty Flags = 1 << 0
	// FlagUCL emits the UCL-as-JSON-with-barewords form (see ucl.go).
	FlagUCL Flags = 1 << 1
	// FlagNoFiles drops files/dirs/config for the compact client manifest.
	FlagNoFiles Flags = 1 << 2
	// FlagLocalMetadata includes timestamp and repository/relocated
	// annotations meaningful only to a locally-registered package.
	FlagLocalMetadata Flags = 1 << 3
)

// Marshal serializes p per flags.
func Marshal(p *pkgcore.Package, flags Flags) ([]byte, error) {
	d, err := ToDocument(p)
	if err != nil {
		return nil, err
	}
	if flags&FlagNoFiles != 0 {
		d.Files = nil
		d.Directories = nil
		d.Config = nil
	}
	if flags&FlagLocalMetadata == 0 {
		d.Timestamp = 0
		var kept orderedStrMap
		for _, a := range d.Annotations {
			if a.Key != "repository" && a.Key != "relocated" {
				kept = append(kept, a)
			}
		}
		d.Annotations = kept
	}

	switch {
	case flags&FlagUCL != 0:
		return marshalUCL(d)
	case flags&FlagPretty != 0:
		return yaml.Marshal(d)
	default:
		return marshalCompactJSON(d)
	}
}

// marshalCompactJSON renders d as single-line JSON with sorted keys for
// the map-typed fields (encoding/json already sorts map keys). The
// "JSON-compact (default)" flag in §4.3 is a stdlib json.Encoder with HTML
// escaping turned off and no indentation, minus its trailing newline.
func marshalCompactJSON(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EmitFull renders the complete manifest ("+MANIFEST", §6), including
// files and directories.
func EmitFull(p *pkgcore.Package, flags Flags) ([]byte, error) {
	return Marshal(p, flags&^FlagNoFiles)
}

// EmitCompact renders the "+COMPACT_MANIFEST" subset used for fast package
// listing (§6, §4.3's FlagNoFiles): no files, directories, or config list;
// scripts and all other keys are kept. It
// is read-only by convention — round-tripping EmitCompact's output through
// Unmarshal never recovers the dropped fields, so callers must not compare
// it against EmitFull for equality (§8 property 4's "modulo the omitted
// fields").
func EmitCompact(p *pkgcore.Package, flags Flags) ([]byte, error) {
	return Marshal(p, flags|FlagNoFiles)
}

// Unmarshal parses a JSON or YAML manifest document (format sniffed from
// the first non-whitespace byte: '{' is JSON, anything else is tried as
// YAML) into a Package.
func Unmarshal(data []byte) (*pkgcore.Package, error) {
	d, err := unmarshalDocument(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(d)
}

func unmarshalDocument(data []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	d := &Document{}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(d); err != nil {
			return nil, fmt.Errorf("manifest: parse: %w", err)
		}
		return d, nil
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	return d, nil
}

// sortedKeys is a small helper the UCL writer and tests share to get
// deterministic map iteration order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
