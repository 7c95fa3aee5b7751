package enums

// UserRole is carried on access tokens. Owners and admins are staff.
type UserRole string

const (
	UserRoleOwner  UserRole = "owner"
	UserRoleAdmin  UserRole = "admin"
	UserRoleCoach  UserRole = "coach"
	UserRoleClient UserRole = "client"
)

var userRoles = values[UserRole]{UserRoleOwner, UserRoleAdmin, UserRoleCoach, UserRoleClient}

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func (r UserRole) IsStaff() bool { return r == UserRoleOwner || r == UserRoleAdmin }

func ParseUserRole(raw string) (UserRole, error) {
	return userRoles.parse("user role", raw)
}
