package installer

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	pkgcore "github.com/freebsd/pkg-sub001"
	"github.com/freebsd/pkg-sub001/checksum"
)

// lcsMatch returns the (i, j) index pairs of a's and b's longest common
// subsequence, in increasing order of both i and j. These are exactly the
// §4.9.2 "copy" triples of the base→other edit vector; everything between
// two consecutive pairs is a "delete"/"insert" triple.
func lcsMatch(a, b []string) [][2]int {
	n, m := len(a), len(b)
	dp := make([][]int32, n+1)
	for i := range dp {
		dp[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				dp[i][j] = dp[i+1][j+1] + 1
			case dp[i+1][j] >= dp[i][j+1]:
				dp[i][j] = dp[i+1][j]
			default:
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	var pairs [][2]int
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// merge3Result is the outcome of the diff3-style walk in merge3.
type merge3Result struct {
	Lines    []string
	Conflict bool
}

// merge3 implements §4.9.2's edit-triple merge: compute base→a and base→b
// edit vectors, then walk the two in lockstep, emitting the shared "copy"
// anchors verbatim and, for each region between anchors, accepting
// whichever side changed alone, accepting an identical change made on both
// sides once, and declaring a conflict on any other overlap.
func merge3(base, a, b []string) merge3Result {
	matchA := lcsMatch(base, a)
	matchB := lcsMatch(base, b)

	aOf := make(map[int]int, len(matchA))
	for _, p := range matchA {
		aOf[p[0]] = p[1]
	}
	bOf := make(map[int]int, len(matchB))
	for _, p := range matchB {
		bOf[p[0]] = p[1]
	}

	var anchors []int
	for _, p := range matchA {
		if _, ok := bOf[p[0]]; ok {
			anchors = append(anchors, p[0])
		}
	}

	var out []string
	conflict := false
	prevBase, prevA, prevB := 0, 0, 0
	flush := func(endBase, endA, endB int) {
		baseSeg := base[prevBase:endBase]
		aSeg := a[prevA:endA]
		bSeg := b[prevB:endB]
		switch {
		case linesEqual(aSeg, baseSeg) && linesEqual(bSeg, baseSeg):
			out = append(out, baseSeg...)
		case linesEqual(aSeg, baseSeg):
			out = append(out, bSeg...)
		case linesEqual(bSeg, baseSeg):
			out = append(out, aSeg...)
		case linesEqual(aSeg, bSeg):
			out = append(out, aSeg...)
		default:
			conflict = true
			out = append(out, "<<<<<<< local")
			out = append(out, aSeg...)
			out = append(out, "=======")
			out = append(out, bSeg...)
			out = append(out, ">>>>>>> remote")
		}
	}
	for _, anchor := range anchors {
		ai, bi := aOf[anchor], bOf[anchor]
		flush(anchor, ai, bi)
		out = append(out, base[anchor])
		prevBase, prevA, prevB = anchor+1, ai+1, bi+1
	}
	flush(len(base), len(a), len(b))

	return merge3Result{Lines: out, Conflict: conflict}
}

func linesEqual(x, y []string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// ConfigMerge performs the §4.9.2 three-way config-file merge. base is the
// content the previously installed version of the package shipped for this
// path (nil on a fresh install); local is the file currently on disk (nil if
// absent); remote is the new archive's content for the path. mergeTool, if
// non-empty, is an external "%b %l %r %o"-style command tried before the
// built-in merge.
func ConfigMerge(base, local, remote []byte, mergeTool string) (merged []byte, status pkgcore.MergeStatus, err error) {
	if local == nil {
		return remote, pkgcore.MergeNotLocal, nil
	}
	if base != nil && len(local) == len(base) {
		sumLocal, err1 := checksum.Compute(local, checksum.SHA256Hex)
		sumBase, err2 := checksum.Compute(base, checksum.SHA256Hex)
		if err1 == nil && err2 == nil && sumLocal == sumBase {
			return remote, pkgcore.MergeNotNeeded, nil
		}
	}
	if bytes.Equal(local, remote) {
		return remote, pkgcore.MergeSuccess, nil
	}
	if mergeTool != "" {
		if out, err := runExternalMerge(mergeTool, base, local, remote); err == nil {
			return out, pkgcore.MergeSuccess, nil
		}
	}
	res := merge3(splitLines(string(base)), splitLines(string(local)), splitLines(string(remote)))
	if res.Conflict {
		return nil, pkgcore.MergeFailed, nil
	}
	joined := strings.Join(res.Lines, "\n")
	if len(res.Lines) > 0 {
		joined += "\n"
	}
	return []byte(joined), pkgcore.MergeSuccess, nil
}

func runExternalMerge(tool string, base, local, remote []byte) ([]byte, error) {
	bf, err := writeMergeTemp("base", base)
	if err != nil {
		return nil, err
	}
	defer os.Remove(bf)
	lf, err := writeMergeTemp("local", local)
	if err != nil {
		return nil, err
	}
	defer os.Remove(lf)
	rf, err := writeMergeTemp("remote", remote)
	if err != nil {
		return nil, err
	}
	defer os.Remove(rf)
	of, err := writeMergeTemp("out", nil)
	if err != nil {
		return nil, err
	}
	defer os.Remove(of)

	args := strings.NewReplacer("%b", bf, "%l", lf, "%r", rf, "%o", of).Replace(tool)
	cmd := exec.Command("/bin/sh", "-c", args)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("installer: mergetool %q: %w", tool, err)
	}
	return os.ReadFile(of)
}

func writeMergeTemp(prefix string, data []byte) (string, error) {
	f, err := os.CreateTemp("", "pkg-merge-"+prefix+"-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}
