package oui

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// Lookup maps a 24-bit OUI to the organization it is assigned to.
type Lookup interface {
	Lookup(prefix uint32) (string, bool)
}

// Prefix returns the top 24 bits of a MAC address.
func Prefix(mac net.HardwareAddr) uint32 {
	if len(mac) < 3 {
		return 0
	}
	return uint32(mac[0])<<16 | uint32(mac[1])<<8 | uint32(mac[2])
}

// Database is an in-memory OUI table.
type Database struct {
	orgs map[uint32]string
}

// NewDatabase builds a Database from prefix -> organization pairs.
func NewDatabase(orgs map[uint32]string) *Database {
	d := &Database{orgs: make(map[uint32]string, len(orgs))}
	for k, v := range orgs {
		d.orgs[k] = v
	}
	return d
}

// Lookup implements Lookup.
func (d *Database) Lookup(prefix uint32) (string, bool) {
	org, ok := d.orgs[prefix]
	return org, ok
}

// Len returns the number of assignments.
func (d *Database) Len() int {
	return len(d.orgs)
}

const (
	assignmentColumn = "Assignment"
	orgColumn        = "Organization Name"
)

// Parse reads the IEEE MA-L CSV export (Registry, Assignment, Organization
// Name, Organization Address).
func Parse(r io.Reader) (*Database, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("oui database is empty")
		}
		return nil, fmt.Errorf("read oui header: %w", err)
	}
	assignIdx, orgIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case assignmentColumn:
			assignIdx = i
		case orgColumn:
			orgIdx = i
		}
	}
	if assignIdx < 0 || orgIdx < 0 {
		return nil, fmt.Errorf("oui header %q lacks %q or %q", header, assignmentColumn, orgColumn)
	}

	db := &Database{orgs: make(map[uint32]string, 40000)}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read csv record from database: %w", err)
		}
		if len(record) <= assignIdx || len(record) <= orgIdx {
			continue
		}

		assignment := strings.TrimSpace(record[assignIdx])
		prefix, err := strconv.ParseUint(assignment, 16, 32)
		if err != nil || len(assignment) != 6 {
			return nil, fmt.Errorf("cannot parse MAC prefix %q", assignment)
		}
		db.orgs[uint32(prefix)] = strings.TrimSpace(record[orgIdx])
	}
	return db, nil
}
