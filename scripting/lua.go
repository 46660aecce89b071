package scripting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
)

// RunLua evaluates one Lua script body against a sandboxed standard
// library, per §4.7: io.open/os.remove/os.rename are rebound to operate
// through Runner.prefixedPath (paths joined under RootDir, escapes
// rejected), os.execute/os.exit are replaced by functions that raise an
// error when Runner.Sandboxed is set, and a custom "pkg" table exposes
// print_msg/prefixed_path/filecmp/copy/stat/readdir/exec/symlink.
// pkg.exec runs no command: it returns the prefixed path of its argument
// (or the cleaned argument when that path escapes RootDir).
func (r *Runner) RunLua(ctx context.Context, src string) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()

	r.installSandbox(L)
	r.installPkgTable(L)

	done := make(chan error, 1)
	go func() {
		done <- L.DoString(src)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("scripting: lua: %w", err)
		}
		return nil
	case <-ctx.Done():
		L.Close()
		return ctx.Err()
	}
}

// installSandbox rebinds the subset of io/os named in §4.7.
func (r *Runner) installSandbox(L *lua.LState) {
	ioTbl, ok := L.GetGlobal("io").(*lua.LTable)
	if ok {
		L.SetField(ioTbl, "open", L.NewFunction(r.luaIOOpen))
	}
	osTbl, ok := L.GetGlobal("os").(*lua.LTable)
	if !ok {
		return
	}
	L.SetField(osTbl, "remove", L.NewFunction(r.luaOSRemove))
	L.SetField(osTbl, "rename", L.NewFunction(r.luaOSRename))
	if r.Sandboxed {
		disabled := L.NewFunction(func(L *lua.LState) int {
			L.RaiseError("scripting: disabled in a sandboxed script")
			return 0
		})
		L.SetField(osTbl, "execute", disabled)
		L.SetField(osTbl, "exit", disabled)
	}
}

// luaFile is the minimal read/write/close proxy returned by the sandboxed
// io.open, good enough for the packing scripts §4.7 describes (they never
// need seek or buffered line iteration, only whole-content transfer).
type luaFile struct {
	f *os.File
}

func (r *Runner) luaIOOpen(L *lua.LState) int {
	rel := L.CheckString(1)
	mode := "r"
	if L.GetTop() >= 2 {
		mode = L.CheckString(2)
	}
	full, err := r.prefixedPath(rel)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	var flags int
	switch mode {
	case "w", "wb":
		flags = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	case "a", "ab":
		flags = os.O_CREATE | os.O_APPEND | os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	lf := &luaFile{f: f}
	tbl := L.NewTable()
	L.SetField(tbl, "read", L.NewFunction(func(L *lua.LState) int {
		b, err := io.ReadAll(lf.f)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(b))
		return 1
	}))
	L.SetField(tbl, "write", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(2)
		if _, err := lf.f.WriteString(s); err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))
	L.SetField(tbl, "close", L.NewFunction(func(L *lua.LState) int {
		L.Push(boolToLValue(lf.f.Close() == nil))
		return 1
	}))
	L.Push(tbl)
	return 1
}

func (r *Runner) luaOSRemove(L *lua.LState) int {
	rel := L.CheckString(1)
	full, err := r.prefixedPath(rel)
	if err == nil {
		err = os.Remove(full)
	}
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func (r *Runner) luaOSRename(L *lua.LState) int {
	fromRel, toRel := L.CheckString(1), L.CheckString(2)
	from, err := r.prefixedPath(fromRel)
	if err == nil {
		var to string
		to, err = r.prefixedPath(toRel)
		if err == nil {
			err = os.Rename(from, to)
		}
	}
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// installPkgTable installs the "pkg" global table described in §4.7:
// print_msg, prefixed_path, filecmp, copy, stat, readdir, exec, symlink.
func (r *Runner) installPkgTable(L *lua.LState) {
	tbl := L.NewTable()

	L.SetField(tbl, "print_msg", L.NewFunction(func(L *lua.LState) int {
		fmt.Fprintln(r.msgWriter(), L.CheckString(1))
		return 0
	}))

	L.SetField(tbl, "prefixed_path", L.NewFunction(func(L *lua.LState) int {
		full, err := r.prefixedPath(L.CheckString(1))
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(lua.LString(full))
		return 1
	}))

	L.SetField(tbl, "filecmp", L.NewFunction(func(L *lua.LState) int {
		a, erra := r.prefixedPath(L.CheckString(1))
		b, errb := r.prefixedPath(L.CheckString(2))
		if erra != nil || errb != nil {
			L.Push(lua.LNumber(-1))
			return 1
		}
		da, erra := os.ReadFile(a)
		db, errb := os.ReadFile(b)
		switch {
		case erra != nil || errb != nil:
			L.Push(lua.LNumber(-1))
		case string(da) == string(db):
			L.Push(lua.LNumber(0))
		default:
			L.Push(lua.LNumber(1))
		}
		return 1
	}))

	L.SetField(tbl, "copy", L.NewFunction(func(L *lua.LState) int {
		src, errs := r.prefixedPath(L.CheckString(1))
		dst, errd := r.prefixedPath(L.CheckString(2))
		if errs != nil || errd != nil {
			L.Push(lua.LFalse)
			return 1
		}
		b, err := os.ReadFile(src)
		if err == nil {
			err = os.WriteFile(dst, b, 0644)
		}
		L.Push(boolToLValue(err == nil))
		return 1
	}))

	L.SetField(tbl, "stat", L.NewFunction(func(L *lua.LState) int {
		full, err := r.prefixedPath(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		fi, err := os.Lstat(full)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		out := L.NewTable()
		L.SetField(out, "size", lua.LNumber(fi.Size()))
		L.SetField(out, "mode", lua.LNumber(fi.Mode().Perm()))
		L.SetField(out, "is_dir", boolToLValue(fi.IsDir()))
		L.Push(out)
		return 1
	}))

	L.SetField(tbl, "readdir", L.NewFunction(func(L *lua.LState) int {
		full, err := r.prefixedPath(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		entries, err := os.ReadDir(full)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		out := L.NewTable()
		for _, e := range entries {
			out.Append(lua.LString(e.Name()))
		}
		L.Push(out)
		return 1
	}))

	L.SetField(tbl, "symlink", L.NewFunction(func(L *lua.LState) int {
		target := L.CheckString(1)
		linkRel := L.CheckString(2)
		full, err := r.prefixedPath(linkRel)
		if err == nil {
			err = os.Symlink(target, full)
		}
		L.Push(boolToLValue(err == nil))
		return 1
	}))

	L.SetField(tbl, "exec", L.NewFunction(func(L *lua.LState) int {
		if r.Sandboxed {
			L.RaiseError("scripting: pkg.exec disabled in a sandboxed script")
			return 0
		}
		rel := L.CheckString(1)
		full, err := r.prefixedPath(rel)
		if err != nil {
			full = filepath.Clean(rel)
		}
		L.Push(lua.LString(full))
		return 1
	}))

	L.SetGlobal("pkg", tbl)
}

func boolToLValue(b bool) lua.LValue {
	if b {
		return lua.LTrue
	}
	return lua.LFalse
}
