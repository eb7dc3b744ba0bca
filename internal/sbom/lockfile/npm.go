package lockfile

import (
	"encoding/json"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// NPMParser parses npm's package-lock.json (lockfileVersion 2/3 shape,
// where every dependency — direct or transitive — has an entry under
// "packages").
type NPMParser struct{}

func (NPMParser) Matches(path string) bool { return baseNameIs(path, "package-lock.json") }
func (NPMParser) Ecosystem() string        { return "npm" }

type npmLockfile struct {
	Packages map[string]npmPackageEntry `json:"packages"`
}

type npmPackageEntry struct {
	Version string `json:"version"`
}

func (NPMParser) Parse(content []byte) (PackageGraph, error) {
	var lf npmLockfile
	if err := json.Unmarshal(content, &lf); err != nil {
		return PackageGraph{}, ironerr.Wrap(ironerr.KindInput, "parse package-lock.json", err)
	}

	graph := PackageGraph{Ecosystem: "npm"}
	for key, entry := range lf.Packages {
		if key == "" || entry.Version == "" {
			continue // the root package entry has an empty key and no version
		}
		name := strings.TrimPrefix(key, "node_modules/")
		graph.Packages = append(graph.Packages, Package{Name: name, Version: entry.Version})
	}
	return graph, nil
}
