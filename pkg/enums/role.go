package enums

import "fmt"

// AccountRole maps to the account_role enum in Postgres.
type AccountRole string

const (
	AccountRoleAdmin    AccountRole = "admin"
	AccountRoleEmployee AccountRole = "employee"
)

var validAccountRoles = []AccountRole{
	AccountRoleAdmin,
	AccountRoleEmployee,
}

// IsValid checks whether the given role matches the canonical enum.
func (r AccountRole) IsValid() bool {
	for _, candidate := range validAccountRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseAccountRole converts raw strings into AccountRole.
func ParseAccountRole(value string) (AccountRole, error) {
	for _, candidate := range validAccountRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account role %q", value)
}
