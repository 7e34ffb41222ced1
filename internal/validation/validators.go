// Package validation checks names and values before they are placed on an
// nft command line.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// MaxIdentifierLen is the longest object name nft accepts (NFT_NAME_MAXLEN - 1).
const MaxIdentifierLen = 255

var (
	// Valid interface name: alphanumeric, dash, underscore, dot (for VLANs), max 15 chars
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// An unquoted nft identifier.
	identifierRegex = regexp.MustCompile(`^[a-zA-Z_.][a-zA-Z0-9_./-]*$`)

	// Dangerous characters that should never appear in identifiers
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r", "{", "}", "#", "@"}
)

// ValidateInterfaceName validates a network interface name
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	if len(name) > 15 {
		return fmt.Errorf("interface name too long (max 15 characters): %s", name)
	}

	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (must be alphanumeric with -_.)", name)
	}
	return nil
}

// ValidateIdentifier validates a table, chain, set or counter name.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(id) > MaxIdentifierLen {
		return fmt.Errorf("identifier too long (max %d characters)", MaxIdentifierLen)
	}

	for _, char := range dangerousChars {
		if strings.Contains(id, char) {
			return fmt.Errorf("identifier contains dangerous character: %q", char)
		}
	}

	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q (must start with a letter and use letters, digits or _./-)", id)
	}
	return nil
}

// ValidateIPOrCIDR validates an IP address or CIDR range
func ValidateIPOrCIDR(s string) error {
	if s == "" {
		return fmt.Errorf("IP/CIDR cannot be empty")
	}

	// Try parsing as CIDR first
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		if err != nil {
			return fmt.Errorf("invalid CIDR: %w", err)
		}
		return nil
	}

	// Try parsing as IP
	ip := net.ParseIP(s)
	if ip == nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}

	return nil
}

// ValidateAddress validates an address set element: an address, a prefix
// or a range "a-b" of the given IP version.
func ValidateAddress(s string, v6 bool) error {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		if err := ValidateAddress(lo, v6); err != nil {
			return err
		}
		return ValidateAddress(hi, v6)
	}

	if err := ValidateIPOrCIDR(s); err != nil {
		return err
	}
	addr, _, _ := strings.Cut(s, "/")
	isV4 := net.ParseIP(addr).To4() != nil
	if v6 && isV4 {
		return fmt.Errorf("not an IPv6 address: %s", s)
	}
	if !v6 && !isV4 {
		return fmt.Errorf("not an IPv4 address: %s", s)
	}
	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 0-65535)", port)
	}
	return nil
}

// ValidateService validates an inet_service element: a port, a port range
// "a-b" or a service name from /etc/services.
func ValidateService(s string) error {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, "-"); ok && isDigits(lo) && isDigits(hi) {
		l, _ := strconv.Atoi(lo)
		h, _ := strconv.Atoi(hi)
		if err := ValidatePortNumber(l); err != nil {
			return err
		}
		if err := ValidatePortNumber(h); err != nil {
			return err
		}
		if l > h {
			return fmt.Errorf("invalid port range: %s", s)
		}
		return nil
	}
	if isDigits(s) {
		p, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid port number: %s", s)
		}
		return ValidatePortNumber(p)
	}
	if err := ValidateIdentifier(s); err != nil {
		return fmt.Errorf("invalid service: %s", s)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
