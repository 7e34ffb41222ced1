//go:build !linux

package host

import "errors"

var errUnsupported = errors.New("network namespaces are only supported on linux")

// InNamespace runs fn directly; named namespaces are unsupported here.
func InNamespace(name string, fn func() error) error {
	if name == "" {
		return fn()
	}
	return errUnsupported
}

// NamespaceExists always reports false off linux.
func NamespaceExists(name string) bool {
	return false
}

// LinkExists cannot check devices off linux.
func LinkExists(name string) error {
	return errUnsupported
}
