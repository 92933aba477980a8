package correlate

import (
	"testing"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

func TestBuild(t *testing.T) {
	snap := &domain.Snapshot{
		SocietyID: "society-001",
		Accounts: []*domain.Account{
			{AccountNo: "A-1", CustomerNo: "C-1", MobileNo: "9000000001"},
			{AccountNo: "A-2", CustomerNo: "C-1", MobileNo: "9000000001"},
			{AccountNo: "A-3", CustomerNo: "C-2", MobileNo: "", AadhaarNo: "AD-1"},
			{AccountNo: "A-4", CustomerNo: "", AadhaarNo: "AD-1"},
		},
	}

	idx := Build(snap)

	t.Run("GroupsByCustomer", func(t *testing.T) {
		group := idx.ByCustomer("C-1")
		if len(group) != 2 {
			t.Fatalf("expected 2 accounts for C-1, got %d", len(group))
		}
		if group[0].AccountNo != "A-1" || group[1].AccountNo != "A-2" {
			t.Error("group must preserve snapshot order")
		}
	})

	t.Run("EmptyKeysExcluded", func(t *testing.T) {
		if got := idx.ByMobile(""); got != nil {
			t.Errorf("empty mobile key must have no group, got %d accounts", len(got))
		}
		if got := idx.ByCustomer(""); got != nil {
			t.Errorf("empty customer key must have no group, got %d accounts", len(got))
		}
	})

	t.Run("GroupsByAadhaar", func(t *testing.T) {
		group := idx.ByAadhaar("AD-1")
		if len(group) != 2 {
			t.Fatalf("expected 2 accounts for AD-1, got %d", len(group))
		}
		if group[0].AccountNo != "A-3" || group[1].AccountNo != "A-4" {
			t.Error("group must preserve snapshot order")
		}
	})

	t.Run("UnknownKey", func(t *testing.T) {
		if got := idx.ByCustomer("C-404"); got != nil {
			t.Errorf("unknown key should return nil, got %v", got)
		}
	})
}
