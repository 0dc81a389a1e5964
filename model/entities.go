package model

import "time"

// Dashboard roles as issued by the backend login endpoint.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleSeller     = "seller"
)

// Entity names used in list and migration routes.
const (
	EntityClients  = "clients"
	EntityProducts = "products"
	EntityOrders   = "orders"
	EntityAdmins   = "admins"
)

// Identifiable is implemented by every entity that appears in a list screen.
type Identifiable interface {
	Identity() string
}

// Client is a persisted client as returned by the backend list endpoints.
type Client struct {
	ID    string `json:"_id,omitempty"`
	Code  string `json:"COD_CLIENT" validate:"required,max=32"`
	Name  string `json:"RAZON_SOCI" validate:"max=200"`
	TaxID string `json:"IDENTIFTRI" validate:"required,max=32"`
	Level *int   `json:"LEVEL,omitempty" validate:"omitempty,gte=0"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

func (c Client) Identity() string { return c.ID }

// Product is a persisted product.
type Product struct {
	ID           string  `json:"_id,omitempty"`
	Code         string  `json:"code" validate:"required,max=64"`
	Lab          string  `json:"lab" validate:"required"`
	Desc         string  `json:"desc" validate:"required"`
	Category     string  `json:"category,omitempty"`
	Notes        *string `json:"notes"`
	ExtraDesc    *string `json:"extra_desc"`
	IVA          bool    `json:"iva"`
	MedinorPrice float64 `json:"medinor_price" validate:"gte=0"`
	PublicPrice  float64 `json:"public_price" validate:"gte=0"`
	Price        float64 `json:"price" validate:"gte=0"`
	ImageURL     *string `json:"imageUrl"`
}

func (p Product) Identity() string { return p.ID }

// Order status values.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// OrderLine is a single product line in an order.
type OrderLine struct {
	ProductCode string  `json:"productCode" validate:"required"`
	Quantity    int     `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
}

// Order is a client order.
type Order struct {
	ID         string      `json:"_id,omitempty"`
	Number     string      `json:"number,omitempty"`
	ClientCode string      `json:"clientCode" validate:"required"`
	Status     string      `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
	Total      float64     `json:"total" validate:"gte=0"`
	Lines      []OrderLine `json:"items,omitempty" validate:"dive"`
	CreatedAt  *time.Time  `json:"createdAt,omitempty"`
}

func (o Order) Identity() string { return o.ID }

// Admin is a dashboard operator account.
type Admin struct {
	ID       string `json:"_id,omitempty"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Role     string `json:"role" validate:"required,oneof=superadmin admin seller"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8"`
	Active   bool   `json:"active"`
}

func (a Admin) Identity() string { return a.ID }

// ProductImage is a normalized product image. The backend returns either
// "id" or "_id" and either "isMain" or a "role" of "main".
type ProductImage struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	IsMain bool   `json:"isMain"`
}

// LoginResult is returned by the backend login endpoint.
type LoginResult struct {
	Token string `json:"token"`
	User  any    `json:"user"`
	Role  string `json:"role"`
}
