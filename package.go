package pkgcore

import "fmt"

// LicenseLogic describes how multiple license identifiers on a package
// combine (§3).
type LicenseLogic int

const (
	LicenseSingle LicenseLogic = iota
	LicenseAnd
	LicenseOr
)

// MergeStatus is the outcome of a config-file 3-way merge (§4.9.2, §4.3
// "Merge status").
type MergeStatus int

const (
	MergeNotNeeded MergeStatus = iota
	MergeFailed
	MergeSuccess
	MergeNotLocal
)

func (m MergeStatus) String() string {
	switch m {
	case MergeNotNeeded:
		return "not-needed"
	case MergeFailed:
		return "failed"
	case MergeSuccess:
		return "success"
	case MergeNotLocal:
		return "not-local"
	default:
		return "unknown"
	}
}

// MessageType is the install/remove/upgrade lifecycle a message applies to
// (§4.3).
type MessageType int

const (
	MessageAlways MessageType = iota
	MessageInstall
	MessageRemove
	MessageUpgrade
)

// Message is a user-visible note shipped with a package, optionally scoped
// to an upgrade version range (§4.3).
type Message struct {
	Text           string
	Type           MessageType
	MinimumVersion string
	MaximumVersion string
}

// Dep is one entry of a package's dependency (or reverse-dependency) set
// (§3). Alt holds the "OR" alternates in a dependency formula group; a nil
// Alt means this dependency has no alternates.
type Dep struct {
	Name    string
	Origin  string
	Version string
	Locked  bool
	Alt     []Dep
}

// UID returns the stable conflict/requires identity of a dependency:
// "name-version" if a version is pinned, else just the name.
func (d Dep) UID() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "-" + d.Version
}

// FileFlags are BSD file flags (chflags(2)) preserved on installed files
// and directories (§3).
type FileFlags uint32

// File is one regular file, symlink, or hardlink owned by a package (§3).
type File struct {
	Path     string // absolute, leading slash
	SHA256   string // "-" means explicitly unsummed
	Uname    string
	Gname    string
	Mode     uint32
	Flags    FileFlags
	Content  string      // config file content, only set when part of ConfigFiles
	Merge    MergeStatus // only meaningful for config files
	IsConfig bool
}

// Dir is one directory owned by a package (§3).
type Dir struct {
	Path    string // absolute, leading slash
	Uname   string
	Gname   string
	Mode    uint32
	Flags   FileFlags
	ATime   int64
	MTime   int64
	NoAttrs bool // set once on-disk attrs already matched; skips reapplication
}

// Option is one build/runtime knob recorded in a package's manifest (§3).
type Option struct {
	Key         string
	Value       string
	Default     string
	Description string
}

// orderedSet is an insertion-ordered string set: a slice for iteration
// order plus an index map for O(1) membership/uniqueness checks. This
// replaces the teacher's/original's intrusive doubly-linked lists per the
// "Pattern migration" notes in spec.md §9.
type orderedSet struct {
	items []string
	index map[string]int
}

func newOrderedSet() orderedSet {
	return orderedSet{index: make(map[string]int)}
}

func (s *orderedSet) Add(v string) (added bool) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

func (s *orderedSet) Remove(v string) (removed bool) {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, v)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j]] = j
	}
	return true
}

func (s *orderedSet) Has(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s orderedSet) Items() []string { return s.items }

func (s orderedSet) Len() int { return len(s.items) }

// Annotation is one ordered key→value pair (§3: "annotations (ordered
// key→value, keys unique)").
type Annotation struct {
	Key   string
	Value string
}

// Package is the in-memory representation of a package manifest (§3).
// Every collection it owns is unique-by-key and ordered by insertion,
// using orderedSet/slice-plus-index rather than intrusive linked lists.
type Package struct {
	Name         string
	Origin       string
	Version      string
	Maintainer   string
	WWW          string
	Prefix       string
	ABI          ABI
	AltABI       string // legacy string form, kept for compatibility
	FlatSize     int64
	PkgSize      int64
	Timestamp    int64
	Checksum     string // versioned checksum text form, see checksum.Checksum
	LicenseLogic LicenseLogic
	Licenses     []string
	Categories   []string
	Users        []string
	Groups       []string
	Annotations  []Annotation
	Messages     []Message
	Automatic    bool
	Locked       bool
	Vital        bool
	Comment      string
	Desc         string

	// Scripts holds shell hook bodies keyed by lifecycle name ("pre-install",
	// "post-install", "pre-deinstall", "post-deinstall"), per §4.3's
	// "scripts" manifest key. LuaScripts holds the Lua equivalents, keyed by
	// "pre-install-lua" etc., each a list of snippets run in order (§4.7,
	// §4.8's "prepackaging"/"pre-install-lua" definitions).
	Scripts    map[string]string
	LuaScripts map[string][]string

	deps  []Dep
	depIx map[string]int
	rdeps []Dep
	rdIx  map[string]int

	Files        []File
	fileIx       map[string]int
	Dirs         []Dir
	dirIx        map[string]int
	Options      []Option
	optIx        map[string]int
	ShlibsReq    orderedSet
	ShlibsProv   orderedSet
	Provides     orderedSet
	Requires     orderedSet
	Conflicts    orderedSet
}

// NewPackage returns an empty, ready-to-populate Package.
func NewPackage() *Package {
	return &Package{
		depIx:      make(map[string]int),
		rdIx:       make(map[string]int),
		fileIx:     make(map[string]int),
		dirIx:      make(map[string]int),
		optIx:      make(map[string]int),
		ShlibsReq:  newOrderedSet(),
		ShlibsProv: newOrderedSet(),
		Provides:   newOrderedSet(),
		Requires:   newOrderedSet(),
		Conflicts:  newOrderedSet(),
	}
}

// AddDep inserts d into the package's forward dependency list. It returns
// an error if a dependency with the same name is already present, per the
// §3 invariant that dependency names appear at most once in deps.
func (p *Package) AddDep(d Dep) error {
	if p.depIx == nil {
		p.depIx = make(map[string]int)
	}
	if _, ok := p.depIx[d.Name]; ok {
		return fmt.Errorf("pkgcore: duplicate dependency %q", d.Name)
	}
	p.depIx[d.Name] = len(p.deps)
	p.deps = append(p.deps, d)
	return nil
}

// Deps returns the package's forward dependencies in insertion order.
func (p *Package) Deps() []Dep { return p.deps }

// Dep looks up a forward dependency by name.
func (p *Package) Dep(name string) (Dep, bool) {
	i, ok := p.depIx[name]
	if !ok {
		return Dep{}, false
	}
	return p.deps[i], true
}

// AddRDep inserts d into the package's reverse-dependency list, subject to
// the same per-package uniqueness invariant as AddDep.
func (p *Package) AddRDep(d Dep) error {
	if p.rdIx == nil {
		p.rdIx = make(map[string]int)
	}
	if _, ok := p.rdIx[d.Name]; ok {
		return fmt.Errorf("pkgcore: duplicate rdependency %q", d.Name)
	}
	p.rdIx[d.Name] = len(p.rdeps)
	p.rdeps = append(p.rdeps, d)
	return nil
}

// RDeps returns the package's reverse dependencies in insertion order.
func (p *Package) RDeps() []Dep { return p.rdeps }

// AddFile inserts f into the package's file list. Paths must be unique
// within a package (§3 invariant); f.Path must already be normalized to an
// absolute, leading-slash form.
func (p *Package) AddFile(f File) error {
	if f.Path == "" || f.Path[0] != '/' {
		return fmt.Errorf("pkgcore: file path %q is not absolute", f.Path)
	}
	if p.fileIx == nil {
		p.fileIx = make(map[string]int)
	}
	if _, ok := p.fileIx[f.Path]; ok {
		return fmt.Errorf("pkgcore: duplicate file path %q", f.Path)
	}
	p.fileIx[f.Path] = len(p.Files)
	p.Files = append(p.Files, f)
	return nil
}

// File looks up a file by absolute path.
func (p *Package) File(path string) (File, bool) {
	i, ok := p.fileIx[path]
	if !ok {
		return File{}, false
	}
	return p.Files[i], true
}

// SetFile replaces the file stored at path, e.g. after a config-file merge
// records its MergeStatus.
func (p *Package) SetFile(f File) error {
	i, ok := p.fileIx[f.Path]
	if !ok {
		return fmt.Errorf("pkgcore: no such file %q", f.Path)
	}
	p.Files[i] = f
	return nil
}

// ConfigFiles returns the subset of Files flagged IsConfig (§3:
// "config_files: subset of files carrying file content plus a merge
// status").
func (p *Package) ConfigFiles() []File {
	var out []File
	for _, f := range p.Files {
		if f.IsConfig {
			out = append(out, f)
		}
	}
	return out
}

// AddDir inserts d into the package's directory list, subject to the same
// per-package path uniqueness invariant as AddFile.
func (p *Package) AddDir(d Dir) error {
	if d.Path == "" || d.Path[0] != '/' {
		return fmt.Errorf("pkgcore: dir path %q is not absolute", d.Path)
	}
	if p.dirIx == nil {
		p.dirIx = make(map[string]int)
	}
	if _, ok := p.dirIx[d.Path]; ok {
		return fmt.Errorf("pkgcore: duplicate dir path %q", d.Path)
	}
	p.dirIx[d.Path] = len(p.Dirs)
	p.Dirs = append(p.Dirs, d)
	return nil
}

// Dir looks up a directory by absolute path.
func (p *Package) Dir(path string) (Dir, bool) {
	i, ok := p.dirIx[path]
	if !ok {
		return Dir{}, false
	}
	return p.Dirs[i], true
}

// SetDir replaces the directory stored at path (e.g. after the installer
// marks it NoAttrs).
func (p *Package) SetDir(d Dir) error {
	i, ok := p.dirIx[d.Path]
	if !ok {
		return fmt.Errorf("pkgcore: no such dir %q", d.Path)
	}
	p.Dirs[i] = d
	return nil
}

// AddOption inserts opt into the package's option map, keyed uniquely by
// opt.Key.
func (p *Package) AddOption(opt Option) error {
	if p.optIx == nil {
		p.optIx = make(map[string]int)
	}
	if _, ok := p.optIx[opt.Key]; ok {
		return fmt.Errorf("pkgcore: duplicate option %q", opt.Key)
	}
	p.optIx[opt.Key] = len(p.Options)
	p.Options = append(p.Options, opt)
	return nil
}

// Validate checks the §3 invariants that are cheap to verify structurally
// (uniqueness is already enforced by the Add* methods; this additionally
// checks the required non-empty fields and the config-files-are-files
// invariant).
func (p *Package) Validate() error {
	for _, f := range []struct {
		name, val string
	}{
		{"name", p.Name}, {"origin", p.Origin}, {"version", p.Version},
		{"maintainer", p.Maintainer}, {"www", p.WWW}, {"prefix", p.Prefix},
	} {
		if f.val == "" {
			return fmt.Errorf("pkgcore: package missing required field %q", f.name)
		}
	}
	for _, cf := range p.ConfigFiles() {
		if _, ok := p.fileIx[cf.Path]; !ok {
			return fmt.Errorf("pkgcore: config file %q not present in files", cf.Path)
		}
	}
	for _, s := range p.ShlibsReq.Items() {
		if p.ShlibsProv.Has(s) {
			return fmt.Errorf("pkgcore: shlib %q present in both shlibs_required and shlibs_provided", s)
		}
	}
	return nil
}
