//go:build linux

// Package host wraps the few host-level lookups the session needs:
// entering a named network namespace and checking that a link exists.
package host

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// InNamespace runs fn on an OS thread switched into the named network
// namespace. Processes forked by fn inherit that namespace. An empty name
// runs fn in the current namespace.
func InNamespace(name string, fn func() error) error {
	if name == "" {
		return fn()
	}

	// Namespace membership is per thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origns, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get original netns: %w", err)
	}
	defer origns.Close()

	target, err := netns.GetFromName(name)
	if err != nil {
		return fmt.Errorf("failed to open netns %s: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("failed to enter netns %s: %w", name, err)
	}

	runErr := fn()

	if err := netns.Set(origns); err != nil {
		// The thread is stuck in the wrong namespace. Keep it locked so the
		// runtime throws it away instead of reusing it.
		runtime.LockOSThread()
		return fmt.Errorf("failed to restore original netns: %w", err)
	}
	return runErr
}

// NamespaceExists reports whether a named network namespace is present.
func NamespaceExists(name string) bool {
	ns, err := netns.GetFromName(name)
	if err != nil {
		return false
	}
	ns.Close()
	return true
}

// LinkExists returns an error unless the named interface exists.
func LinkExists(name string) error {
	if _, err := netlink.LinkByName(name); err != nil {
		return fmt.Errorf("device %s: %w", name, err)
	}
	return nil
}
