package user

import "strings"

// Roles
const (
	// Staff
	RoleStaff        = "staff:"
	RoleStaffEditor  = "staff:editor"
	RoleStaffSupport = "staff:support"

	// Student
	RoleStudent = "student:"
)

var StaffRoles = []string{RoleStaff, RoleStaffEditor, RoleStaffSupport}

// User is the identity a request is made on behalf of.
// Identities are owned by the authentication system; only the attributes the quiz engine
// and the entitlement rules need are carried here.
type User struct {
	ID                    string   `json:"id"`
	Username              string   `json:"username,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Roles                 []string `json:"roles,omitempty"`
	IsSuperuser           bool     `json:"is_superuser"`
	IsPremium             bool     `json:"is_premium"`
	PreferredCurriculumID *int64   `json:"preferred_curriculum_id,omitempty"`
	PreferredClassLevelID *int64   `json:"preferred_class_level_id,omitempty"`
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u User) IsStaff() bool {
	return u.RoleStartsWith(RoleStaff)
}

// IsStaffOrSuperuser identities bypass every entitlement rule.
func (u User) IsStaffOrSuperuser() bool {
	return u.IsSuperuser || u.IsStaff()
}

func (u User) IsAnonymous() bool {
	return u.ID == ""
}
