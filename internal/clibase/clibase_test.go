package clibase

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"scflow/internal/config"
)

func TestRegisterAndValidate(t *testing.T) {
	fs := pflag.NewFlagSet("x", pflag.ContinueOnError)
	var c Common
	noHeader := Register(fs, &c, config.PBMC)
	if err := fs.Parse([]string{"-o", "jsonl", "--no-header", "-d", "out", "--npcs", "20"}); err != nil {
		t.Fatal(err)
	}
	if err := AfterParse(&c, noHeader); err != nil {
		t.Fatalf("AfterParse: %v", err)
	}
	if c.Header || c.Output != "jsonl" || c.OutDir != "out" {
		t.Fatalf("common: %+v", c)
	}
	if f := fs.Lookup("npcs"); f == nil || !f.Changed || f.Value.String() != "20" {
		t.Fatal("npcs flag not registered for config binding")
	}

	c.Output = "xml"
	if err := Validate(&c); err == nil || !strings.Contains(err.Error(), "--output") {
		t.Fatalf("want --output error, got %v", err)
	}
	c.Output = "text"
	c.NoResultExitCode = 300
	if err := Validate(&c); err == nil {
		t.Fatal("want exit code range error")
	}
}

func TestUsageAndExamples(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	UsageCommon(cmd, "scflow pbmc", "PBMC clustering", "Inputs:\n  10x directory\n")
	if !strings.Contains(cmd.Long, "scflow pbmc – PBMC clustering") || !strings.Contains(cmd.Long, "10x directory") {
		t.Fatalf("long: %q", cmd.Long)
	}
	var b bytes.Buffer
	PrintExamples(&b, "scflow", []string{"scflow pbmc data/"})
	if !strings.HasPrefix(b.String(), "scflow — quickstart") || !strings.Contains(b.String(), "  scflow pbmc data/\n") || !strings.Contains(b.String(), "--help") {
		t.Fatalf("examples: %q", b.String())
	}
}
