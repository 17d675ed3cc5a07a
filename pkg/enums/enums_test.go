package enums

import "testing"

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole("admin")
	if err != nil || role != UserRoleAdmin {
		t.Fatalf("expected admin, got %q (%v)", role, err)
	}
	if _, err := ParseUserRole("owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if UserRole("").IsValid() {
		t.Fatal("empty role should be invalid")
	}
}

func TestParseCartStatus(t *testing.T) {
	status, err := ParseCartStatus("checked_out")
	if err != nil || status != CartStatusCheckedOut {
		t.Fatalf("expected checked_out, got %q (%v)", status, err)
	}
	if _, err := ParseCartStatus("converted"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if !CartStatusActive.IsValid() {
		t.Fatal("active should be valid")
	}
}
