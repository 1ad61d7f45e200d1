//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles the calocell executable into ./bin.
func Build() error {
	mg.Deps(BuildCalocell)
	fmt.Println("Compilation finished")
	return nil
}

// BuildCalocell needs cgo for the HDF5 and SQLite bindings.
func BuildCalocell() error {
	fmt.Println("Building calocell executable...")
	version := os.Getenv("CALOCELL_VERSION")
	if version == "" {
		version = "dev"
	}
	cmd := exec.Command("go", "build",
		"-ldflags", fmt.Sprintf("-X main.buildVersion=%s", version),
		"-o", "./bin/calocell", "./calocell")
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", os.Getenv("CGO_LDFLAGS")),
		fmt.Sprintf("CGO_CFLAGS=%s", os.Getenv("CGO_CFLAGS")))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Test runs the unit tests of every package.
func Test() error {
	cmd := exec.Command("go", "test", "./pkg/...", "./calocell/...")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Clean removes the build output.
func Clean() error {
	return os.RemoveAll("./bin")
}
