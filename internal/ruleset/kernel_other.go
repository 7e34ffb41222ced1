//go:build !linux

package ruleset

import "errors"

// Verify needs netlink and is only available on linux.
func (b *BaseChain) Verify(namespace string) error {
	return errors.New("netlink verification is only supported on linux")
}
