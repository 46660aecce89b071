// Package plist parses packing lists (§4.8): text files listing file paths
// plus "@KEYWORD args" directives that expand into manifest entries. The
// line-oriented, directive-prefixed shape is the same one
// other_examples/04dd9482_nicwaller-apt-look's deb822 parser and
// other_examples/a49cfadd_huncrys-deb822 use for "Key: value" control
// files; here the directives are "@keyword args" rather than "Key: value"
// fields, but the read-a-line/dispatch-on-prefix/accumulate-into-a-struct
// idiom is the same.
package plist

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// KeywordDef describes how an unrecognized "@name" directive expands,
// loaded from a "<keyword_dir>/<name>.ucl" definition (§4.8).
type KeywordDef struct {
	// Actions lists the expansion steps, each optionally parameterized by a
	// 1-based argument index in parens, e.g. "file(1)", "setowner(2)".
	Actions []string
	Attributes struct {
		Owner, Group string
		Mode         uint32
	}
	Scripts    map[string]string
	LuaScripts map[string][]string
	Messages   []pkgcore.Message
	// Prepackaging is a Lua snippet run at packaging time, not install
	// time; the installer never evaluates it (§4.8), it is preserved only
	// so packaging tools reading the same definition have it available.
	Prepackaging string
	// Arguments, if true, tokenizes the directive line into $1..$n
	// substitution variables for Actions; PreformatArguments additionally
	// pre-formats each token before substitution.
	Arguments           bool
	PreformatArguments bool
}

// Resolver looks up the KeywordDef for an unrecognized "@name" directive.
// A nil Resolver (or one that returns (nil, ErrUnknownKeyword)) causes
// Parse to reject the directive.
type Resolver func(name string) (*KeywordDef, error)

// ErrUnknownKeyword is returned by a Resolver (or synthesized by Parse
// when Resolver is nil) for a directive with no matching definition.
var ErrUnknownKeyword = fmt.Errorf("plist: unknown keyword")

// Include resolves an "@include other.plist" directive's operand to a
// readable stream. A nil Include causes Parse to reject @include.
type Include func(name string) (io.ReadCloser, error)

// Parser holds the mutable state a packing list's directives accumulate
// into while its lines are walked: the current "cwd" (prefix), and the
// owner/group/mode pending for the *next* file or dir entry, reset to the
// defaults (root, wheel, 0644 for files, 0755 for dirs) once consumed, so
// each "@owner foo" / "@mode 0644" applies to one entry only.
type Parser struct {
	Resolve Resolver
	Include Include

	cwd          string
	pendingOwner string
	pendingGroup string
	pendingMode  uint32
	hasMode      bool
}

// NewParser returns a Parser ready to read a packing list into pkg, whose
// Prefix (if already set) seeds the initial "@cwd".
func NewParser(resolve Resolver, include Include) *Parser {
	return &Parser{Resolve: resolve, Include: include}
}

// Parse reads a packing list from r, applying every directive and file
// line onto pkg. cwd starts at pkg.Prefix if set, else "/".
func (p *Parser) Parse(r io.Reader, pkg *pkgcore.Package) error {
	if p.cwd == "" {
		p.cwd = pkg.Prefix
		if p.cwd == "" {
			p.cwd = "/"
		}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "@") {
			if err := p.directive(line, pkg); err != nil {
				return fmt.Errorf("plist:%d: %w", lineNo, err)
			}
			continue
		}
		if err := p.addFile(pkg, line); err != nil {
			return fmt.Errorf("plist:%d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

func (p *Parser) directive(line string, pkg *pkgcore.Package) error {
	fields := strings.Fields(line)
	kw := strings.TrimPrefix(fields[0], "@")
	args := fields[1:]

	switch kw {
	case "cwd":
		if len(args) != 1 {
			return fmt.Errorf("@cwd takes exactly one argument")
		}
		p.cwd = normalizeAbs(args[0])
		return nil

	case "comment":
		return nil // free-form, no manifest effect

	case "dir":
		if len(args) < 1 {
			return fmt.Errorf("@dir requires a path")
		}
		return p.addDir(pkg, args[0])

	case "file":
		if len(args) < 1 {
			return fmt.Errorf("@file requires a path")
		}
		return p.addFile(pkg, args[0])

	case "config":
		if len(args) < 1 {
			return fmt.Errorf("@config requires a path")
		}
		abs := p.resolvePath(args[0])
		if _, ok := pkg.File(abs); !ok {
			if err := p.addFile(pkg, args[0]); err != nil {
				return err
			}
		}
		f, _ := pkg.File(abs)
		f.IsConfig = true
		return pkg.SetFile(f)

	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("@mode requires exactly one argument")
		}
		m, err := strconv.ParseUint(args[0], 8, 32)
		if err != nil {
			return fmt.Errorf("@mode: %w", err)
		}
		p.pendingMode, p.hasMode = uint32(m), true
		return nil

	case "owner":
		if len(args) != 1 {
			return fmt.Errorf("@owner requires exactly one argument")
		}
		p.pendingOwner = args[0]
		return nil

	case "group":
		if len(args) != 1 {
			return fmt.Errorf("@group requires exactly one argument")
		}
		p.pendingGroup = args[0]
		return nil

	case "include":
		if len(args) != 1 {
			return fmt.Errorf("@include requires exactly one argument")
		}
		if p.Include == nil {
			return fmt.Errorf("@include %s: no Include resolver configured", args[0])
		}
		rc, err := p.Include(args[0])
		if err != nil {
			return fmt.Errorf("@include %s: %w", args[0], err)
		}
		defer rc.Close()
		return p.Parse(rc, pkg)

	default:
		return p.expandKeyword(kw, args, pkg)
	}
}

// expandKeyword delegates an unrecognized directive to its declarative
// definition (§4.8): each action in def.Actions that names "dir"/"file"
// creates the corresponding entry at the argument it references (1-based,
// defaulting to args[0] when unparenthesized); "setowner"/"setgroup"/
// "setmode" update the pending attribute state the same way @owner/@group/
// @mode would.
func (p *Parser) expandKeyword(kw string, args []string, pkg *pkgcore.Package) error {
	if p.Resolve == nil {
		return fmt.Errorf("%w: %q", ErrUnknownKeyword, kw)
	}
	def, err := p.Resolve(kw)
	if err != nil {
		return fmt.Errorf("keyword %q: %w", kw, err)
	}
	if def == nil {
		return fmt.Errorf("%w: %q", ErrUnknownKeyword, kw)
	}
	for _, action := range def.Actions {
		name, idx := splitAction(action)
		var arg string
		if idx > 0 && idx <= len(args) {
			arg = args[idx-1]
		} else if len(args) > 0 {
			arg = args[0]
		}
		switch name {
		case "dir":
			if err := p.addDir(pkg, arg); err != nil {
				return err
			}
		case "file":
			if err := p.addFile(pkg, arg); err != nil {
				return err
			}
		case "setowner":
			p.pendingOwner = arg
		case "setgroup":
			p.pendingGroup = arg
		case "setmode":
			m, err := strconv.ParseUint(arg, 8, 32)
			if err != nil {
				return fmt.Errorf("keyword %q: setmode: %w", kw, err)
			}
			p.pendingMode, p.hasMode = uint32(m), true
		}
	}
	for typ, body := range def.Scripts {
		if pkg.Scripts == nil {
			pkg.Scripts = make(map[string]string)
		}
		pkg.Scripts[typ] += body
	}
	for typ, bodies := range def.LuaScripts {
		if pkg.LuaScripts == nil {
			pkg.LuaScripts = make(map[string][]string)
		}
		pkg.LuaScripts[typ] = append(pkg.LuaScripts[typ], bodies...)
	}
	pkg.Messages = append(pkg.Messages, def.Messages...)
	return nil
}

// splitAction parses "name(idx)" into ("name", idx), or "name" into
// ("name", 0) when there is no parenthesized argument index.
func splitAction(action string) (string, int) {
	open := strings.IndexByte(action, '(')
	if open < 0 {
		return action, 0
	}
	close := strings.IndexByte(action, ')')
	if close < open {
		return action, 0
	}
	idx, err := strconv.Atoi(action[open+1 : close])
	if err != nil {
		return action[:open], 0
	}
	return action[:open], idx
}

func (p *Parser) addFile(pkg *pkgcore.Package, rel string) error {
	abs := p.resolvePath(rel)
	f := pkgcore.File{
		Path:  abs,
		Uname: orDefault(p.pendingOwner, "root"),
		Gname: orDefault(p.pendingGroup, "wheel"),
		Mode:  p.modeOr(0644),
	}
	if err := pkg.AddFile(f); err != nil {
		return err
	}
	p.resetPending()
	return nil
}

func (p *Parser) addDir(pkg *pkgcore.Package, rel string) error {
	abs := p.resolvePath(rel)
	d := pkgcore.Dir{
		Path:  abs,
		Uname: orDefault(p.pendingOwner, "root"),
		Gname: orDefault(p.pendingGroup, "wheel"),
		Mode:  p.modeOr(0755),
	}
	if err := pkg.AddDir(d); err != nil {
		return err
	}
	p.resetPending()
	return nil
}

func (p *Parser) resolvePath(rel string) string {
	if strings.HasPrefix(rel, "/") {
		return normalizeAbs(rel)
	}
	return normalizeAbs(path.Join(p.cwd, rel))
}

func (p *Parser) modeOr(def uint32) uint32 {
	if p.hasMode {
		return p.pendingMode
	}
	return def
}

func (p *Parser) resetPending() {
	p.pendingOwner, p.pendingGroup = "", ""
	p.pendingMode, p.hasMode = 0, false
}

func normalizeAbs(s string) string {
	s = path.Clean(s)
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
