package models

import (
	"fmt"
	"net"
)

// Outcome is the classification of one discovered host.
type Outcome int

const (
	NoMatch          Outcome = iota
	MatchedByAddress         // OUI of the MAC belongs to the vendor
	MatchedByService         // vendor service port answered
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "NoMatch"
	case MatchedByAddress:
		return "MatchedByAddress"
	case MatchedByService:
		return "MatchedByService"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Matched reports whether the host counts towards the vendor total.
func (o Outcome) Matched() bool {
	return o == MatchedByAddress || o == MatchedByService
}

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{MatchedByAddress, MatchedByService, NoMatch}

// ScanRecord is the reportable result for one host.
type ScanRecord struct {
	IP      net.IP
	MAC     net.HardwareAddr
	Outcome Outcome
}
