// Package lockfile parses dependency lockfiles into a flat package graph
// for vulnerability lookup. Each concrete format is a collaborator behind
// the Parser interface (spec.md §6: "Lockfile parsers expose
// parse(content) -> Result<PackageGraph, ParseError>").
package lockfile

import (
	"path/filepath"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// Package is one resolved dependency entry.
type Package struct {
	Name    string
	Version string
}

// PackageGraph is the flattened result of parsing one lockfile.
type PackageGraph struct {
	Ecosystem string
	Packages  []Package
}

// Parser parses one lockfile format.
type Parser interface {
	// Matches reports whether this parser handles the given lockfile path,
	// judged by filename rather than content sniffing (lockfile formats are
	// identified by their fixed on-disk name, unlike the log pipeline's
	// first-success-wins text formats).
	Matches(path string) bool
	Ecosystem() string
	Parse(content []byte) (PackageGraph, error)
}

// Router dispatches a lockfile path to the first registered Parser whose
// Matches reports true.
type Router struct {
	parsers []Parser
}

// NewRouter builds a Router over parsers, tried in registration order.
func NewRouter(parsers ...Parser) *Router {
	return &Router{parsers: parsers}
}

// Parse resolves a parser for path and parses content.
func (r *Router) Parse(path string, content []byte) (PackageGraph, error) {
	for _, p := range r.parsers {
		if p.Matches(path) {
			return p.Parse(content)
		}
	}
	return PackageGraph{}, ironerr.New(ironerr.KindInput, "no lockfile parser registered for "+filepath.Base(path))
}

func baseNameIs(path, name string) bool {
	return strings.EqualFold(filepath.Base(path), name)
}
