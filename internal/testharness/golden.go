// Package testharness holds snapshot helpers for protocol tests.
package testharness

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// UpdateGolden rewrites golden files instead of comparing when
// UPDATE_GOLDEN=1.
var UpdateGolden = os.Getenv("UPDATE_GOLDEN") == "1"

// Golden compares protocol output against files under testdata/.
type Golden struct {
	t    *testing.T
	dir  string
	name string
}

// NewGolden stores snapshots in testdata/<test name>.golden.
func NewGolden(t *testing.T) *Golden {
	t.Helper()
	return NewGoldenAt(t, "testdata")
}

// NewGoldenAt stores snapshots in dir.
func NewGoldenAt(t *testing.T, dir string) *Golden {
	t.Helper()
	return &Golden{
		t:    t,
		dir:  dir,
		name: strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(t.Name()),
	}
}

// Assert compares actual with the test's golden file.
func (g *Golden) Assert(actual string) {
	g.t.Helper()
	g.AssertNamed("", actual)
}

// AssertNamed compares actual with a named golden file, for tests that
// snapshot more than one output.
func (g *Golden) AssertNamed(name, actual string) {
	g.t.Helper()
	path := g.path(name)

	if UpdateGolden {
		if err := os.MkdirAll(g.dir, 0o755); err != nil {
			g.t.Fatalf("create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			g.t.Fatalf("update golden file %s: %v", path, err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Fatalf("golden file %s does not exist, run with UPDATE_GOLDEN=1\n\nActual:\n%q", path, actual)
		}
		g.t.Fatalf("read golden file %s: %v", path, err)
	}
	if string(expected) != actual {
		g.t.Errorf("golden mismatch %s\n%s", path, Diff(string(expected), actual))
	}
}

func (g *Golden) path(name string) string {
	if name == "" {
		return filepath.Join(g.dir, g.name+".golden")
	}
	return filepath.Join(g.dir, g.name+"_"+name+".golden")
}

// Diff renders a line diff of expected and actual. Control characters are
// quoted so CR and LF differences stay visible.
func Diff(expected, actual string) string {
	expectedLines := strings.Split(expected, "\n")
	actualLines := strings.Split(actual, "\n")

	n := max(len(expectedLines), len(actualLines))
	var sb strings.Builder
	for i := 0; i < n; i++ {
		var exp, act string
		if i < len(expectedLines) {
			exp = expectedLines[i]
		}
		if i < len(actualLines) {
			act = actualLines[i]
		}
		if exp == act {
			continue
		}
		sb.WriteString("line ")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(":\n- ")
		sb.WriteString(strconv.Quote(exp))
		sb.WriteString("\n+ ")
		sb.WriteString(strconv.Quote(act))
		sb.WriteString("\n")
	}
	return sb.String()
}
