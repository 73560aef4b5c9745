package resource

import (
	"strings"

	"home2l/bus"
	"home2l/errcode"
)

// SplitURI splits a resource URI "/host/<hostId>/<driverId>/<localId>"
// into a bus.Topic of exactly 3 tokens (hostId, driverId, localId);
// the "host" prefix is not a token. localId may itself contain
// slashes and is kept as the final, single token (spec §3: "slashes
// allowed in the local id").
func SplitURI(uri string) (bus.Topic, error) {
	if !strings.HasPrefix(uri, "/host/") {
		return nil, errcode.Withf(errcode.ConfigError, "resource.split_uri", "not a /host/ URI: "+uri)
	}
	rest := strings.TrimPrefix(uri, "/host/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, errcode.Withf(errcode.ConfigError, "resource.split_uri", "malformed URI: "+uri)
	}
	return bus.T(parts[0], parts[1], parts[2]), nil
}

// JoinURI is the inverse of SplitURI.
func JoinURI(hostID, driverID, localID string) string {
	return "/host/" + hostID + "/" + driverID + "/" + localID
}

// IsAlias reports whether uri names an alias rather than a host path.
func IsAlias(uri string) bool {
	return strings.HasPrefix(uri, "/alias/")
}

// AliasName extracts the name following "/alias/".
func AliasName(uri string) string {
	return strings.TrimPrefix(uri, "/alias/")
}
