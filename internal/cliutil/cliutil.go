// internal/cliutil/cliutil.go
package cliutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func hasGlobMeta(s string) bool { return strings.ContainsAny(s, "*?[") }

// ExpandPositionals expands any globs among path-like positionals.
func ExpandPositionals(posArgs []string) ([]string, error) {
	var out []string
	for _, a := range posArgs {
		if a == "-" {
			out = append(out, a)
			continue
		}
		if hasGlobMeta(a) {
			m, err := filepath.Glob(a)
			if err != nil {
				return nil, fmt.Errorf("bad glob %q: %v", a, err)
			}
			if len(m) == 0 {
				return nil, fmt.Errorf("no input matched %q", a)
			}
			out = append(out, m...)
		} else {
			out = append(out, a)
		}
	}
	return out, nil
}

// SingleInput resolves the one input path from an explicit flag value and the
// positionals. Exactly one path must remain after glob expansion.
func SingleInput(flagValue string, posArgs []string) (string, error) {
	args := posArgs
	if flagValue != "" {
		args = append([]string{flagValue}, posArgs...)
	}
	exp, err := ExpandPositionals(args)
	if err != nil {
		return "", err
	}
	switch len(exp) {
	case 0:
		return "", fmt.Errorf("an input is required")
	case 1:
		return exp[0], nil
	default:
		return "", fmt.Errorf("exactly one input expected, got %d (%s)", len(exp), strings.Join(exp, ", "))
	}
}

// SplitList flattens repeated or comma-separated values, dropping blanks.
func SplitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}

// ParseLabels reads cluster renames, either inline ("0=Naive CD4 T,1=CD14+ Mono")
// or, with a leading '@', from a file holding one "old<TAB>new" or "old=new"
// pair per line. A plain list without '=' assigns the names to clusters 0, 1, 2...
func ParseLabels(spec string) (map[string]string, error) {
	if spec == "" {
		return nil, nil
	}
	var entries []string
	src := "--cluster-labels"
	if strings.HasPrefix(spec, "@") {
		src = spec[1:]
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		for _, l := range strings.Split(string(b), "\n") {
			l = strings.TrimSpace(l)
			if l == "" || strings.HasPrefix(l, "#") {
				continue
			}
			entries = append(entries, strings.Replace(l, "\t", "=", 1))
		}
	} else {
		for _, e := range strings.Split(spec, ",") {
			if e = strings.TrimSpace(e); e != "" {
				entries = append(entries, e)
			}
		}
	}
	out := make(map[string]string, len(entries))
	for i, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			k, v = fmt.Sprint(i), e
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			return nil, fmt.Errorf("%s: bad label %q", src, e)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%s: cluster %q labelled twice", src, k)
		}
		out[k] = v
	}
	return out, nil
}
