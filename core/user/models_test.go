package user

import "testing"

func TestUser_IsStaffOrSuperuser(t *testing.T) {
	tests := []struct {
		name string
		usr  User
		want bool
	}{
		{name: "no roles", usr: User{ID: "1"}},
		{name: "student", usr: User{ID: "1", Roles: []string{RoleStudent}}},
		{name: "staff", usr: User{ID: "1", Roles: []string{RoleStaff}}, want: true},
		{name: "staff editor", usr: User{ID: "1", Roles: []string{RoleStudent, RoleStaffEditor}}, want: true},
		{name: "superuser", usr: User{ID: "1", IsSuperuser: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usr.IsStaffOrSuperuser(); got != tt.want {
				t.Errorf("IsStaffOrSuperuser() = %v, want %v", got, tt.want)
			}
		})
	}
}
