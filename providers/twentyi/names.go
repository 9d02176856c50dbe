package twentyi

import (
	"strings"

	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

// apexHost is how the 20i API names a record at the zone apex.
const apexHost = "@"

// SplitRecordName returns the part of fullName to the left of zone.
// Example: ("_acme-challenge.www.example.com", "example.com") -> "_acme-challenge.www"
//
// fullName equal to zone yields "" (the apex). Any other fullName must end
// with "." + zone; case and trailing dots are not normalized.
func SplitRecordName(fullName, zone string) (string, error) {
	if zone != "" && fullName == zone {
		return "", nil
	}

	suffix := "." + zone
	if zone == "" || len(fullName) <= len(suffix) || !strings.HasSuffix(fullName, suffix) {
		return "", &provider.NotASuffixError{Name: fullName, Zone: zone}
	}

	return strings.TrimSuffix(fullName, suffix), nil
}

// JoinRecordName is the inverse of SplitRecordName.
func JoinRecordName(recordName, zone string) string {
	if recordName == "" {
		return zone
	}
	return recordName + "." + zone
}

// wireHost renders a record name for the 20i API.
func wireHost(recordName string) string {
	if recordName == "" {
		return apexHost
	}
	return recordName
}
