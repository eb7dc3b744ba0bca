package lockfile

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// GoSumParser parses go.sum, which lists one or two hash lines per module
// version ("module version hash" and "module version/go.mod hash"). Only
// the former is kept, de-duplicated, to yield one entry per resolved
// module version.
type GoSumParser struct{}

func (GoSumParser) Matches(path string) bool { return baseNameIs(path, "go.sum") }
func (GoSumParser) Ecosystem() string        { return "go" }

func (GoSumParser) Parse(content []byte) (PackageGraph, error) {
	graph := PackageGraph{Ecosystem: "go"}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		module, version := fields[0], fields[1]
		if strings.HasSuffix(version, "/go.mod") {
			continue
		}
		key := module + "@" + version
		if seen[key] {
			continue
		}
		seen[key] = true
		graph.Packages = append(graph.Packages, Package{Name: module, Version: strings.TrimPrefix(version, "v")})
	}
	if err := scanner.Err(); err != nil {
		return PackageGraph{}, ironerr.Wrap(ironerr.KindInput, "parse go.sum", err)
	}
	return graph, nil
}
