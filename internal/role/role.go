// Package role определяет фиксированный набор ролей персонала и их полномочий.
package role

// Role — роль учётной записи. Набор ролей фиксирован, полномочия
// привязаны к роли статически и не настраиваются во время работы.
type Role string

const (
	Customer         Role = "customer"
	Viewer           Role = "viewer"
	Support          Role = "support"
	Seller           Role = "seller"
	Accountant       Role = "accountant"
	OrderManager     Role = "order_manager"
	InventoryManager Role = "inventory_manager"
	Manager          Role = "manager"
	SuperAdmin       Role = "super_admin"
)

// Permission — отдельное полномочие персонала.
type Permission string

const (
	ManageProducts  Permission = "manage_products"
	ManageOrders    Permission = "manage_orders"
	ManageInventory Permission = "manage_inventory"
	ManageCustomers Permission = "manage_customers"
	ManageStaff     Permission = "manage_staff"
	ManageSettings  Permission = "manage_settings"
	ViewReports     Permission = "view_reports"
	ViewAllOrders   Permission = "view_all_orders"
)

var permissions = map[Role][]Permission{
	Customer:   nil,
	Viewer:     {ViewReports},
	Support:    {ManageCustomers, ViewAllOrders},
	Seller:     {ManageProducts},
	Accountant: {ViewReports, ViewAllOrders},
	OrderManager: {
		ManageOrders, ViewAllOrders,
	},
	InventoryManager: {
		ManageProducts, ManageInventory, ViewReports,
	},
	Manager: {
		ManageProducts, ManageOrders, ManageInventory,
		ManageCustomers, ViewReports, ViewAllOrders,
	},
	SuperAdmin: {
		ManageProducts, ManageOrders, ManageInventory, ManageCustomers,
		ManageStaff, ManageSettings, ViewReports, ViewAllOrders,
	},
}

// Valid сообщает, известна ли роль.
func Valid(r Role) bool {
	_, ok := permissions[r]
	return ok
}

// Has сообщает, входит ли полномочие в статический набор роли.
func Has(r Role, p Permission) bool {
	for _, granted := range permissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// IsStaff сообщает, является ли роль служебной.
func IsStaff(r Role) bool {
	return Valid(r) && r != Customer
}
