package catalog

import (
	"context"
	"fmt"

	"foodcourt/internal/domain"
)

// Seed populates the catalog with the household's users, restaurants, and
// dishes. It runs only when the restaurants table is empty, so restarting
// either binary never duplicates rows.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM restaurants").Scan(&count); err != nil {
		return fmt.Errorf("count restaurants: %w", err)
	}
	if count > 0 {
		return nil
	}

	users := []struct {
		username string
		role     string
	}{
		{"jacob", domain.RoleParent},
		{"jane", domain.RoleParent},
		{"henry", domain.RoleChild},
		{"rose", domain.RoleChild},
	}
	for _, u := range users {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO users (username, role) VALUES (?, ?)", u.username, u.role,
		); err != nil {
			return fmt.Errorf("seed user %s: %w", u.username, err)
		}
	}

	restaurants := []struct {
		name               string
		allowedForChildren bool
	}{
		{"Pizza Palace", true},
		{"Burger Bonanza", true},
		{"Fancy French", false},
		{"Sushi World", false},
	}
	for _, r := range restaurants {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO restaurants (name, allowed_for_children) VALUES (?, ?)",
			r.name, r.allowedForChildren,
		); err != nil {
			return fmt.Errorf("seed restaurant %s: %w", r.name, err)
		}
	}

	menus := map[string][]struct {
		name  string
		price float64
	}{
		"Pizza Palace": {
			{"Cheese Pizza", 8.99},
			{"Pepperoni Pizza", 10.99},
			{"Veggie Pizza", 9.49},
		},
		"Burger Bonanza": {
			{"Classic Burger", 7.99},
			{"Deluxe Burger", 12.99},
			{"Fries", 3.49},
		},
		"Fancy French": {
			{"Escargot", 15.99},
			{"Foie Gras", 19.99},
			{"Truffle Pasta", 18.49},
		},
		"Sushi World": {
			{"California Roll", 6.99},
			{"Sushi Platter", 22.99},
			{"Tempura", 9.99},
		},
	}

	seeded, err := s.Restaurants(ctx)
	if err != nil {
		return fmt.Errorf("read seeded restaurants: %w", err)
	}
	for _, r := range seeded {
		for _, d := range menus[r.Name] {
			if _, err := s.db.ExecContext(ctx,
				"INSERT OR IGNORE INTO dishes (restaurant_id, name, price) VALUES (?, ?, ?)",
				r.ID, d.name, d.price,
			); err != nil {
				return fmt.Errorf("seed dish %s: %w", d.name, err)
			}
		}
	}

	return nil
}
