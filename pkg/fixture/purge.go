package fixture

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/easzlab/netfix/pkg/ident"
	"github.com/easzlab/netfix/pkg/nlctl"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultNetnsDir is where named network namespaces are registered.
const DefaultNetnsDir = "/var/run/netns"

// nsNamePattern matches the uuid-shaped namespace names the fixtures
// generate. Anything else under the netns directory is left alone.
var nsNamePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// PurgeOptions configures Purge.
type PurgeOptions struct {
	// NetnsDir overrides the namespace registry directory, used in tests.
	NetnsDir string

	// DryRun reports what would be removed without removing it.
	DryRun bool
}

// PurgeResult lists the leaked resources found (and, unless DryRun,
// removed).
type PurgeResult struct {
	Interfaces []string
	Namespaces []string
}

// Purge removes fixture resources leaked by crashed or killed test runs:
// interfaces carrying the fixture name prefix and namespaces with
// generated names. Removal is best-effort; every failure is collected
// and all candidates are still attempted.
func Purge(factory nlctl.Factory, namespaces nlctl.Namespaces, opts PurgeOptions, logger *zap.Logger) (PurgeResult, error) {
	var (
		result PurgeResult
		errs   error
	)

	handle, err := factory.Handle("")
	if err != nil {
		return result, fmt.Errorf("failed to open control handle: %w", err)
	}
	defer handle.Close()

	links, err := handle.LinkList()
	if err != nil {
		return result, fmt.Errorf("failed to list links: %w", err)
	}
	for name, index := range links {
		if !strings.HasPrefix(name, ident.IfnamePrefix) {
			continue
		}
		result.Interfaces = append(result.Interfaces, name)
		if opts.DryRun {
			continue
		}
		if err := handle.LinkDel(index); err != nil && !nlctl.IsNotFound(err) {
			errs = multierr.Append(errs, fmt.Errorf("failed to remove leaked interface %q: %w", name, err))
			continue
		}
		logger.Info("removed leaked interface", zap.String("ifname", name))
	}

	dir := opts.NetnsDir
	if dir == "" {
		dir = DefaultNetnsDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, errs
		}
		return result, multierr.Append(errs, fmt.Errorf("failed to scan %s: %w", dir, err))
	}
	for _, entry := range entries {
		name := entry.Name()
		if !nsNamePattern.MatchString(name) {
			continue
		}
		result.Namespaces = append(result.Namespaces, name)
		if opts.DryRun {
			continue
		}
		if err := namespaces.Remove(name); err != nil && !nlctl.IsNotFound(err) {
			errs = multierr.Append(errs, fmt.Errorf("failed to remove leaked netns %q: %w", name, err))
			continue
		}
		logger.Info("removed leaked netns", zap.String("netns", name))
	}

	return result, errs
}
