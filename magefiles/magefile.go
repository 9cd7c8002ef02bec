//go:build mage

// Package main holds the folio build targets, run with Mage.
//
//	mage build             compile bin/folio
//	mage test:all          unit and integration tests with the race detector
//	mage test:unit         every package outside tests/
//	mage test:integration  build, then drive bin/folio end to end
//	mage test:cover        unit coverage into coverage.out
//	mage lint              golangci-lint
//	mage demo              run a scripted session against a scratch data dir
//	mage stats             lines of Go per package
//	mage clean | install
package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo        = "go"
	binaryName   = "folio"
	binaryDir    = "bin"
	cmdDir       = "./cmd/folio"
	coverProfile = "coverage.out"
)

var binaryPath = filepath.Join(binaryDir, binaryName)

// Build compiles the folio binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-trimpath", "-o", binaryPath, cmdDir)
}

// Test groups test targets.
type Test mg.Namespace

// All runs unit and integration tests with the race detector.
func (Test) All() error {
	mg.Deps(Build)
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Unit runs every package outside tests/.
func (Test) Unit() error {
	pkgs, err := unitPackages()
	if err != nil {
		return err
	}
	return sh.RunV(binGo, append([]string{"test", "-race"}, pkgs...)...)
}

// Integration builds folio and runs tests/integration against it.
func (Test) Integration() error {
	mg.Deps(Build)
	return sh.RunV(binGo, "test", "-count=1", "./tests/...")
}

// Cover writes unit test coverage to coverage.out and prints the summary.
func (Test) Cover() error {
	pkgs, err := unitPackages()
	if err != nil {
		return err
	}
	args := append([]string{"test", "-covermode=atomic", "-coverprofile=" + coverProfile}, pkgs...)
	if err := sh.RunV(binGo, args...); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+coverProfile)
}

func unitPackages() ([]string, error) {
	out, err := sh.Output(binGo, "list", "./...")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, pkg := range strings.Split(out, "\n") {
		if pkg == "" || strings.Contains(pkg, "/tests/") || strings.HasSuffix(pkg, "/magefiles") {
			continue
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Demo builds folio and walks one page through history, check-out and a
// basic approval workflow in a throwaway directory.
func Demo() error {
	mg.Deps(Build)
	dir, err := os.MkdirTemp("", "folio-demo-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	bin, err := filepath.Abs(binaryPath)
	if err != nil {
		return err
	}
	folio := func(args ...string) error {
		base := []string{"--config-dir", filepath.Join(dir, "config"), "--data-dir", filepath.Join(dir, "data")}
		fmt.Printf("$ folio %s\n", strings.Join(args, " "))
		return sh.RunV(bin, append(base, args...)...)
	}

	steps := [][]string{
		{"init"},
		{"object", "create", "--name", "home", "--field", "body=hello"},
		{"object", "update", "1", "--field", "body=hello again"},
		{"checkout", "1"},
		{"object", "update", "1", "--field", "body=draft"},
		{"checkin", "1", "--comment", "reviewed"},
		{"history", "list", "1"},
		{"workflow", "create", "publishing", "--basic"},
		{"approve", "approvers", "2"},
		{"events", "--limit", "5"},
	}
	for _, args := range steps {
		if err := folio(args...); err != nil {
			return err
		}
	}
	return nil
}

// Stats prints production and test lines of Go per package directory.
func Stats() error {
	type count struct{ prod, test int }
	counts := map[string]*count{}

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "_examples", binaryDir:
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(path)
		c := counts[dir]
		if c == nil {
			c = &count{}
			counts[dir] = c
		}
		if strings.HasSuffix(path, "_test.go") {
			c.test += n
		} else {
			c.prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(counts))
	for dir := range counts {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var prod, test int
	fmt.Printf("%-28s %8s %8s\n", "PACKAGE", "PROD", "TEST")
	for _, dir := range dirs {
		c := counts[dir]
		fmt.Printf("%-28s %8d %8d\n", dir, c.prod, c.test)
		prod += c.prod
		test += c.test
	}
	fmt.Printf("%-28s %8d %8d\n", "total", prod, test)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// Clean removes build artifacts and the coverage profile.
func Clean() error {
	for _, path := range []string{binaryDir, coverProfile} {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}

// Install builds folio and copies it to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), binaryPath)
}
