package oui

import (
	"fmt"

	"github.com/endobit/oui"
)

// Embedded looks prefixes up in the IEEE table compiled into
// github.com/endobit/oui. It needs no network access or cache file.
type Embedded struct{}

// Lookup implements Lookup.
func (Embedded) Lookup(prefix uint32) (string, bool) {
	mac := fmt.Sprintf("%02x:%02x:%02x:00:00:00", byte(prefix>>16), byte(prefix>>8), byte(prefix))
	vendor := oui.Vendor(mac)
	if vendor == "" {
		return "", false
	}
	return vendor, true
}
