package user

import (
	"testing"
	"time"
)

func TestGradeYear(t *testing.T) {
	year := func(v int) *int { return &v }

	tests := []struct {
		name       string
		graduation *int
		now        time.Time
		want       *int
	}{
		{"no graduation year", nil, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), nil},
		{"final year in spring", year(2026), time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), year(5)},
		{"first year in autumn", year(2031), time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), year(1)},
		{"rollover in august", year(2027), time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), year(5)},
		{"still july", year(2027), time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC), year(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{GraduationYear: tt.graduation}
			got := u.GradeYear(tt.now)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("Expected grade year %d, got %d", *tt.want, *got)
			}
		})
	}
}

func TestRoleIncludes(t *testing.T) {
	if !RoleAdmin.Includes(RoleMember) {
		t.Error("Expected ADMIN to include MEMBER")
	}
	if RoleMember.Includes(RoleAdmin) {
		t.Error("Expected MEMBER not to include ADMIN")
	}
	if !RoleMember.Includes(RoleMember) {
		t.Error("Expected MEMBER to include itself")
	}
}
