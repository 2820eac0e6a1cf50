package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/analysis-runner/internal/apperror"
	"github.com/sakif/analysis-runner/internal/executor"
)

// installerTemplate receives a list of [module, package] pairs. It installs
// the packages whose module cannot be found and prints their names.
const installerTemplate = `import importlib
import importlib.util
import subprocess
import sys


def present(module):
    try:
        return importlib.util.find_spec(module) is not None
    except ModuleNotFoundError:
        return False


missing = [pkg for mod, pkg in %s if not present(mod)]
if missing:
    subprocess.run(
        [sys.executable, "-m", "pip", "install", "--quiet", "--user", *missing],
        check=True,
        stdout=sys.stderr,
    )
    importlib.invalidate_caches()
print(" ".join(missing))
`

// Dependencies makes sure optional packages are importable inside an
// environment before guest code runs.
type Dependencies struct {
	provider executor.Provider
	logger   *slog.Logger
}

func NewDependencies(provider executor.Provider, logger *slog.Logger) *Dependencies {
	return &Dependencies{provider: provider, logger: logger}
}

// Ensure checks every dependency and installs only the missing ones. It is
// safe to call on every request. Any failure is fatal for the request and
// carries the installer's stderr as detail.
func (d *Dependencies) Ensure(ctx context.Context, env executor.Handle, deps []Dependency) error {
	if len(deps) == 0 {
		return nil
	}
	defer observe(stepDeps, time.Now())

	script, err := installerScript(deps)
	if err != nil {
		return apperror.Dependency("could not prepare dependency check", "", err)
	}

	out, err := d.provider.Run(ctx, env, script)
	if err != nil {
		return apperror.Dependency("could not check dependencies", "", err)
	}
	if out.Fault != nil {
		return apperror.Dependency(
			"could not install dependencies",
			out.Stderr,
			fmt.Errorf("%s: %s", out.Fault.Kind, out.Fault.Detail),
		)
	}

	if installed := strings.TrimSpace(out.Stdout); installed != "" {
		d.logger.Info("installed dependencies",
			slog.String("environment", env.Name),
			slog.String("packages", installed),
		)
	}
	return nil
}

// installerScript renders the pairs as a JSON array, which is also a valid
// Python list literal for the names ParseDependency accepts.
func installerScript(deps []Dependency) (string, error) {
	pairs := make([][2]string, 0, len(deps))
	for _, dep := range deps {
		if !modulePattern.MatchString(dep.Module) || !packagePattern.MatchString(dep.Package) {
			return "", fmt.Errorf("invalid dependency %q", dep.String())
		}
		pairs = append(pairs, [2]string{dep.Module, dep.Package})
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(installerTemplate, raw), nil
}
