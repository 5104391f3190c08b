package fixture

import (
	"fmt"

	"github.com/easzlab/netfix/pkg/config"
	"github.com/easzlab/netfix/pkg/nlctl"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Teardown unwinds the context in fixed order:
//
//  1. persist a postmortem database snapshot (sqlite provider only,
//     best-effort),
//  2. close the database, the cloned control handle, and the capability
//     probe,
//  3. delete registered interfaces via namespace-scoped handles,
//  4. remove registered namespaces,
//  5. delete registered routing policy rules,
//  6. release every address block back to the global allocator.
//
// Within steps 3-5 an unexpected error aborts the remaining entries of
// that step, but later steps still run; resources already gone are
// skipped silently. All step errors are aggregated into the returned
// error. Teardown must be called exactly once.
func (c *Context) Teardown() error {
	if c.tornDown {
		return fmt.Errorf("context %s: teardown called twice", c.Spec.UID)
	}
	c.tornDown = true

	var errs error

	// Step 1: postmortem snapshot, best-effort.
	if c.Params.DBProvider == config.ProviderSQLite {
		if err := c.db.Backup(c.Spec.SnapshotPath()); err != nil {
			c.logger.Warn("postmortem snapshot failed", zap.Error(err))
		}
	}

	// Step 2: close owned handles, each attempted regardless of the
	// others.
	errs = multierr.Append(errs, c.db.Close())
	errs = multierr.Append(errs, c.ipr.Close())
	errs = multierr.Append(errs, c.probe.Close())

	// Steps 3-5: drain the registries.
	errs = multierr.Append(errs, c.teardownInterfaces())
	errs = multierr.Append(errs, c.teardownNamespaces())
	errs = multierr.Append(errs, c.teardownRules())

	// Step 6: release the address blocks.
	errs = multierr.Append(errs, c.releaseNetworks())

	if errs != nil {
		c.logger.Error("teardown finished with errors", zap.Error(errs))
	} else {
		c.logger.Debug("teardown complete", zap.String("uid", c.Spec.UID))
	}
	return errs
}

// teardownInterfaces deletes every registered interface through a control
// handle scoped to its owning namespace. Interfaces already gone are
// skipped; the first unexpected error aborts the remaining entries.
func (c *Context) teardownInterfaces() error {
	for ifname, nsname := range c.interfaces {
		if err := c.removeInterface(ifname, nsname); err != nil {
			return fmt.Errorf("failed to remove interface %q: %w", ifname, err)
		}
	}
	return nil
}

func (c *Context) removeInterface(ifname, nsname string) (err error) {
	handle, err := c.collab.factory.Handle(nsname)
	if err != nil {
		// The owning namespace is already gone, and its interfaces
		// with it.
		if nlctl.IsNotFound(err) {
			return nil
		}
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(handle))

	indices, err := handle.LinkLookup(ifname)
	if err != nil {
		return err
	}
	if len(indices) == 0 {
		// Already removed, possibly by the system under test.
		return nil
	}
	if err := handle.LinkDel(indices[0]); err != nil && !nlctl.IsNotFound(err) {
		return err
	}
	return nil
}

// teardownNamespaces removes every registered namespace; absence is not
// an error.
func (c *Context) teardownNamespaces() error {
	for nsname := range c.namespaces {
		err := c.collab.namespaces.Remove(nsname)
		if err != nil && !nlctl.IsNotFound(err) {
			return fmt.Errorf("failed to remove netns %q: %w", nsname, err)
		}
	}
	return nil
}

// teardownRules deletes every registered routing policy rule through the
// matching control handle; rules already gone are skipped.
func (c *Context) teardownRules() error {
	for _, entry := range c.rules {
		if err := c.removeRule(entry); err != nil {
			return fmt.Errorf("failed to remove rule %s: %w", entry.spec.Key(), err)
		}
	}
	return nil
}

func (c *Context) removeRule(entry ruleEntry) (err error) {
	handle, err := c.collab.factory.Handle(entry.netns)
	if err != nil {
		if nlctl.IsNotFound(err) {
			return nil
		}
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(handle))

	if err := handle.RuleDel(entry.spec); err != nil && !nlctl.IsNotFound(err) {
		return err
	}
	return nil
}

// releaseNetworks returns the pre-allocated blocks and every explicitly
// registered block to the global allocator, keyed by family.
func (c *Context) releaseNetworks() error {
	var errs error
	for _, block := range c.ipnets {
		errs = multierr.Append(errs, c.collab.pool.Free(block, unix.AF_INET))
	}
	if c.ip6net != nil {
		errs = multierr.Append(errs, c.collab.pool.Free(c.ip6net, unix.AF_INET6))
	}
	for family, blocks := range c.allocatedNets {
		for _, block := range blocks {
			errs = multierr.Append(errs, c.collab.pool.Free(block, family))
		}
	}
	return errs
}
