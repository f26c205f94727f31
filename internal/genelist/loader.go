// Package genelist loads gene symbol lists, including cell-cycle marker sets.
package genelist

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"scflow/internal/fileio"
)

// RegevSCount is the number of S-phase genes at the head of the Regev lab
// cell-cycle list; the remainder are G2/M genes.
const RegevSCount = 43

//go:embed cc_s.txt
var builtinS string

//go:embed cc_g2m.txt
var builtinG2M string

// Phased holds S and G2/M marker genes.
type Phased struct {
	S   []string
	G2M []string
}

// CellCycle returns the built-in human S and G2/M marker lists.
func CellCycle() Phased {
	s, _ := parse(strings.NewReader(builtinS), "cc_s.txt")
	g, _ := parse(strings.NewReader(builtinG2M), "cc_g2m.txt")
	return Phased{S: s, G2M: g}
}

// Load reads one gene per line. Blank lines and lines starting with '#' are
// skipped; only the first whitespace-separated field is used.
func Load(path string) ([]string, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	genes, err := parse(rc, path)
	if err != nil {
		return nil, err
	}
	if len(genes) == 0 {
		return nil, fmt.Errorf("%s: no genes", path)
	}
	return genes, nil
}

func parse(r io.Reader, name string) ([]string, error) {
	var list []string
	sc := fileio.NewScanner(r)
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		list = append(list, strings.Fields(line)[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s:%d %w", name, ln, err)
	}
	return list, nil
}

// LoadRegev reads the Regev lab list: the first RegevSCount genes are S phase,
// the rest G2/M.
func LoadRegev(path string) (Phased, error) {
	genes, err := Load(path)
	if err != nil {
		return Phased{}, err
	}
	if len(genes) <= RegevSCount {
		return Phased{}, fmt.Errorf("%s: %d genes, want more than %d (S then G2M)", path, len(genes), RegevSCount)
	}
	return Phased{
		S:   append([]string(nil), genes[:RegevSCount]...),
		G2M: append([]string(nil), genes[RegevSCount:]...),
	}, nil
}

// LoadPhased reads a whitespace-separated "phase gene" file where phase is S
// or G2M (case-insensitive; "G2/M" accepted).
func LoadPhased(path string) (Phased, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return Phased{}, err
	}
	defer rc.Close()

	var p Phased
	sc := fileio.NewScanner(rc)
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Fields(line)
		if len(f) != 2 {
			return Phased{}, fmt.Errorf("%s:%d bad field count", path, ln)
		}
		switch strings.ToUpper(strings.ReplaceAll(f[0], "/", "")) {
		case "S":
			p.S = append(p.S, f[1])
		case "G2M":
			p.G2M = append(p.G2M, f[1])
		default:
			return Phased{}, fmt.Errorf("%s:%d unknown phase %q", path, ln, f[0])
		}
	}
	if err := sc.Err(); err != nil {
		return Phased{}, fmt.Errorf("%s:%d %w", path, ln, err)
	}
	if len(p.S) == 0 || len(p.G2M) == 0 {
		return Phased{}, fmt.Errorf("%s: need both S and G2M genes", path)
	}
	return p, nil
}
