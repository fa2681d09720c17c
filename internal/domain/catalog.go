package domain

import "context"

// User roles as stored in the catalog.
const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// User is a household member allowed to talk to the system.
// Created once at bootstrap; the role never changes during a session.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Restaurant is an orderable venue. AllowedForChildren controls whether
// child-role users are granted read access at bootstrap.
type Restaurant struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	AllowedForChildren bool   `json:"allowed_for_children"`
}

// Dish belongs to exactly one restaurant.
type Dish struct {
	ID           int64   `json:"id"`
	RestaurantID int64   `json:"restaurant_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
}

// CatalogStore is the durable mapping of users, restaurants, and dishes.
// Written only at bootstrap; all lookups return sentinel not-found errors.
type CatalogStore interface {
	UserByUsername(ctx context.Context, username string) (*User, error)
	Users(ctx context.Context) ([]User, error)
	Restaurants(ctx context.Context) ([]Restaurant, error)
	RestaurantByName(ctx context.Context, name string) (*Restaurant, error)
	RestaurantByDishName(ctx context.Context, dishName string) (*Restaurant, error)
	Dishes(ctx context.Context, restaurantID int64) ([]Dish, error)
	DishByName(ctx context.Context, restaurantID int64, name string) (*Dish, error)
	Close() error
}
