package domain

type Role string

const (
	RoleStoreOperations Role = "Store Operations"
	RoleStoreManager    Role = "Store Manager"
	RoleRegionalManager Role = "Regional Manager"
	RoleCommissary      Role = "Commissary"
	RoleHumanResources  Role = "Human Resources"
	RoleInformationTech Role = "Information Technology"
	RoleFinance         Role = "Finance"
)

// Principal is the acting employee as asserted by the authentication layer.
type Principal struct {
	ID      string
	StoreID string
	Name    string
	Roles   []Role
}

func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// ActsFor reports whether the principal may act on behalf of storeID.
// Regional managers act for every store.
func (p Principal) ActsFor(storeID string) bool {
	return p.HasRole(RoleRegionalManager) || p.StoreID == storeID
}
