package session

import "net/netip"

// sameNetwork reports whether two observed client addresses count as the
// same network location for session binding. IPv4 addresses match on their
// /24 subnet so DHCP churn inside one network does not kill sessions.
// IPv6 and unparsable values fall back to exact string equality.
func sameNetwork(a, b string) bool {
	if a == b {
		return true
	}

	ipA, errA := netip.ParseAddr(a)
	ipB, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return false
	}

	ipA = ipA.Unmap()
	ipB = ipB.Unmap()
	if !ipA.Is4() || !ipB.Is4() {
		return ipA == ipB
	}

	prefA, errA := ipA.Prefix(24)
	prefB, errB := ipB.Prefix(24)
	if errA != nil || errB != nil {
		return false
	}
	return prefA == prefB
}
