package services

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/roadwarden/roadwarden/internal/models"
)

// ipRange is a canonical inclusive address range. Single addresses, CIDR
// blocks and explicit "from-to" spans all normalize to this form so allow
// and deny resolution share one membership algorithm.
type ipRange struct {
	from netip.Addr
	to   netip.Addr
}

func (r ipRange) contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	return r.from.Compare(addr) <= 0 && r.to.Compare(addr) >= 0
}

// parseIPRange accepts "1.2.3.4", "1.2.3.0/24" or "1.2.3.4-1.2.3.10".
func parseIPRange(s string) (ipRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ipRange{}, fmt.Errorf("empty ip range")
	}

	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return ipRange{}, fmt.Errorf("parse cidr %q: %w", s, err)
		}
		prefix = prefix.Masked()
		return ipRange{from: prefix.Addr(), to: lastAddr(prefix)}, nil
	}

	if from, to, ok := strings.Cut(s, "-"); ok {
		fromAddr, err := netip.ParseAddr(strings.TrimSpace(from))
		if err != nil {
			return ipRange{}, fmt.Errorf("parse range start %q: %w", from, err)
		}
		toAddr, err := netip.ParseAddr(strings.TrimSpace(to))
		if err != nil {
			return ipRange{}, fmt.Errorf("parse range end %q: %w", to, err)
		}
		if fromAddr.Compare(toAddr) > 0 {
			fromAddr, toAddr = toAddr, fromAddr
		}
		return ipRange{from: fromAddr, to: toAddr}, nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return ipRange{}, fmt.Errorf("parse ip %q: %w", s, err)
	}
	return ipRange{from: addr, to: addr}, nil
}

// ValidateIPExpression checks a single address, CIDR or range expression
// without building a set. Used when admin input is persisted.
func ValidateIPExpression(s string) error {
	_, err := parseIPRange(s)
	return err
}

// lastAddr computes the highest address within a prefix.
func lastAddr(prefix netip.Prefix) netip.Addr {
	addr := prefix.Addr()
	raw := addr.As16()
	bits := prefix.Bits()
	if addr.Is4() {
		bits += 96
	}
	for b := bits; b < 128; b++ {
		raw[b/8] |= 1 << (7 - b%8)
	}
	out := netip.AddrFrom16(raw)
	if addr.Is4() {
		return out.Unmap()
	}
	return out
}

// IPSet is a flattened collection of address ranges.
type IPSet struct {
	ranges []ipRange
}

// Empty reports whether the set holds no ranges at all.
func (s *IPSet) Empty() bool {
	return s == nil || len(s.ranges) == 0
}

// Contains reports whether the given address string falls in any range.
// Unparseable addresses are never members.
func (s *IPSet) Contains(ip string) bool {
	if s.Empty() {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, r := range s.ranges {
		if r.contains(addr) {
			return true
		}
	}
	return false
}

// Add parses and appends one range expression; invalid expressions are
// reported, not silently dropped.
func (s *IPSet) Add(expr string) error {
	r, err := parseIPRange(expr)
	if err != nil {
		return err
	}
	s.ranges = append(s.ranges, r)
	return nil
}

// collectIPSet flattens the enabled IP rules of the given permission across
// all supplied request types into one set. Rules that fail to parse are
// skipped so a single bad row cannot disable the whole list.
func collectIPSet(types []models.RequestType, permission models.IPPermission) *IPSet {
	set := &IPSet{}
	for _, rt := range types {
		for _, rule := range rt.IPRules {
			if !rule.Enabled || rule.Permission != permission {
				continue
			}
			_ = set.Add(rule.IPAddress)
		}
	}
	return set
}
