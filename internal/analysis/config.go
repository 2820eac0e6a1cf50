package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/analysis-runner/internal/executor"
)

// Config is passed to NewRunner. Nothing in this package reads the process
// environment.
type Config struct {
	// Budget is the wall-clock lifetime requested for every environment.
	Budget time.Duration
	// ReclaimTimeout bounds environment destruction. Reclamation runs on a
	// context detached from the request so it survives cancellation.
	ReclaimTimeout time.Duration
	// Dependencies are ensured in every environment before the guest runs.
	Dependencies []Dependency
}

// DefaultConfig uses a five minute budget and ensures pandas and tabulate,
// which a stock python image lacks.
func DefaultConfig() Config {
	return Config{
		Budget:         executor.DefaultBudget,
		ReclaimTimeout: 30 * time.Second,
		Dependencies: []Dependency{
			{Module: "pandas", Package: "pandas"},
			{Module: "tabulate", Package: "tabulate"},
		},
	}
}

// Dependency is an optional runtime package. Module is what the guest
// imports, Package is what the installer is asked for.
type Dependency struct {
	Module  string `json:"module"`
	Package string `json:"package"`
}

func (d Dependency) String() string {
	if d.Module == d.Package {
		return d.Module
	}
	return d.Module + "=" + d.Package
}

var (
	modulePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	packagePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(\[[A-Za-z0-9,._-]+\])?([<>=!~]=?[A-Za-z0-9.*]+)?$`)
)

// ParseDependency accepts "name" or "module=package", for example
// "sklearn=scikit-learn" or "tabulate".
func ParseDependency(s string) (Dependency, error) {
	s = strings.TrimSpace(s)
	var d Dependency
	if i := strings.IndexAny(s, "<>!~["); i > 0 || strings.Contains(s, "==") {
		// A requirement specifier such as "pandas>=2" or "tabulate==0.9".
		if i = strings.IndexAny(s, "<>=!~["); i > 0 {
			d = Dependency{Module: s[:i], Package: s}
		}
	} else {
		module, pkg, found := strings.Cut(s, "=")
		if !found {
			pkg = module
		}
		d = Dependency{Module: strings.TrimSpace(module), Package: strings.TrimSpace(pkg)}
	}
	if !modulePattern.MatchString(d.Module) {
		return Dependency{}, fmt.Errorf("invalid module name %q", d.Module)
	}
	if !packagePattern.MatchString(d.Package) {
		return Dependency{}, fmt.Errorf("invalid package name %q", d.Package)
	}
	return d, nil
}

// ParseDependencies parses every entry, stopping at the first bad one.
func ParseDependencies(list []string) ([]Dependency, error) {
	deps := make([]Dependency, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		d, err := ParseDependency(s)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}
