// Package correlate builds the cross-record grouping index used by
// multi-account detection rules.
package correlate

import (
	"github.com/cooperative-finance/kestrel/internal/domain"
)

// Index groups a snapshot's accounts by shared correlation keys.
// Group slices preserve snapshot order so downstream alert ordering
// stays deterministic. Built once per run and read-only afterward.
type Index struct {
	byCustomer map[string][]*domain.Account
	byMobile   map[string][]*domain.Account
	byAadhaar  map[string][]*domain.Account
}

// Build constructs the index for one snapshot. Accounts with an empty
// key value are excluded from that key's groups entirely.
func Build(snap *domain.Snapshot) *Index {
	idx := &Index{
		byCustomer: make(map[string][]*domain.Account),
		byMobile:   make(map[string][]*domain.Account),
		byAadhaar:  make(map[string][]*domain.Account),
	}
	for _, a := range snap.Accounts {
		if a.CustomerNo != "" {
			idx.byCustomer[a.CustomerNo] = append(idx.byCustomer[a.CustomerNo], a)
		}
		if a.MobileNo != "" {
			idx.byMobile[a.MobileNo] = append(idx.byMobile[a.MobileNo], a)
		}
		if a.AadhaarNo != "" {
			idx.byAadhaar[a.AadhaarNo] = append(idx.byAadhaar[a.AadhaarNo], a)
		}
	}
	return idx
}

// ByCustomer returns the accounts sharing the given customer number.
func (i *Index) ByCustomer(key string) []*domain.Account {
	return i.byCustomer[key]
}

// ByMobile returns the accounts sharing the given mobile number.
func (i *Index) ByMobile(key string) []*domain.Account {
	return i.byMobile[key]
}

// ByAadhaar returns the accounts sharing the given Aadhaar number.
func (i *Index) ByAadhaar(key string) []*domain.Account {
	return i.byAadhaar[key]
}
