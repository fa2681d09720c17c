package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"foodcourt/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "food_ordering.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newSeededStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := newTestStore(t)
	if err := store.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return store
}

func TestSeedPopulatesCatalog(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	users, err := store.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 4 {
		t.Fatalf("len(users) = %d, want 4", len(users))
	}
	if users[0].Username != "jacob" || users[0].Role != domain.RoleParent {
		t.Errorf("users[0] = %+v, want jacob/parent", users[0])
	}
	if users[3].Username != "rose" || users[3].Role != domain.RoleChild {
		t.Errorf("users[3] = %+v, want rose/child", users[3])
	}

	restaurants, err := store.Restaurants(ctx)
	if err != nil {
		t.Fatalf("Restaurants: %v", err)
	}
	if len(restaurants) != 4 {
		t.Fatalf("len(restaurants) = %d, want 4", len(restaurants))
	}
	wantNames := []string{"Pizza Palace", "Burger Bonanza", "Fancy French", "Sushi World"}
	wantKids := []bool{true, true, false, false}
	for i, r := range restaurants {
		if r.Name != wantNames[i] {
			t.Errorf("restaurants[%d].Name = %q, want %q", i, r.Name, wantNames[i])
		}
		if r.AllowedForChildren != wantKids[i] {
			t.Errorf("restaurants[%d].AllowedForChildren = %v, want %v", i, r.AllowedForChildren, wantKids[i])
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	if err := store.Seed(ctx); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	restaurants, err := store.Restaurants(ctx)
	if err != nil {
		t.Fatalf("Restaurants: %v", err)
	}
	if len(restaurants) != 4 {
		t.Errorf("len(restaurants) after reseed = %d, want 4", len(restaurants))
	}

	r, err := store.RestaurantByName(ctx, "Pizza Palace")
	if err != nil {
		t.Fatalf("RestaurantByName: %v", err)
	}
	dishes, err := store.Dishes(ctx, r.ID)
	if err != nil {
		t.Fatalf("Dishes: %v", err)
	}
	if len(dishes) != 3 {
		t.Errorf("len(dishes) after reseed = %d, want 3", len(dishes))
	}
}

func TestSeedSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "food_ordering.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	store.Close()

	// Reopen the same file; seeding again must not duplicate.
	store2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()
	if err := store2.Seed(ctx); err != nil {
		t.Fatalf("Seed on reopen: %v", err)
	}

	users, err := store2.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 4 {
		t.Errorf("len(users) = %d, want 4", len(users))
	}
}

func TestUserByUsername(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	u, err := store.UserByUsername(ctx, "henry")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if u.Role != domain.RoleChild {
		t.Errorf("Role = %q, want child", u.Role)
	}
	if u.ID == 0 {
		t.Error("ID should be assigned")
	}
}

func TestUserByUsernameNotFound(t *testing.T) {
	store := newSeededStore(t)

	_, err := store.UserByUsername(context.Background(), "stranger")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestUserByUsernameIsCaseSensitive(t *testing.T) {
	store := newSeededStore(t)

	_, err := store.UserByUsername(context.Background(), "Jacob")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound for mixed-case lookup", err)
	}
}

func TestRestaurantByName(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	r, err := store.RestaurantByName(ctx, "Fancy French")
	if err != nil {
		t.Fatalf("RestaurantByName: %v", err)
	}
	if r.AllowedForChildren {
		t.Error("Fancy French should not be allowed for children")
	}

	_, err = store.RestaurantByName(ctx, "Taco Town")
	if !errors.Is(err, domain.ErrRestaurantNotFound) {
		t.Errorf("err = %v, want ErrRestaurantNotFound", err)
	}
}

func TestDishesForRestaurant(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	r, err := store.RestaurantByName(ctx, "Sushi World")
	if err != nil {
		t.Fatalf("RestaurantByName: %v", err)
	}

	dishes, err := store.Dishes(ctx, r.ID)
	if err != nil {
		t.Fatalf("Dishes: %v", err)
	}
	if len(dishes) != 3 {
		t.Fatalf("len(dishes) = %d, want 3", len(dishes))
	}
	if dishes[0].Name != "California Roll" || dishes[0].Price != 6.99 {
		t.Errorf("dishes[0] = %+v, want California Roll 6.99", dishes[0])
	}
	for _, d := range dishes {
		if d.RestaurantID != r.ID {
			t.Errorf("dish %s has restaurant_id %d, want %d", d.Name, d.RestaurantID, r.ID)
		}
	}
}

func TestDishesEmptyForUnknownRestaurant(t *testing.T) {
	store := newSeededStore(t)

	dishes, err := store.Dishes(context.Background(), 9999)
	if err != nil {
		t.Fatalf("Dishes: %v", err)
	}
	if len(dishes) != 0 {
		t.Errorf("len(dishes) = %d, want 0", len(dishes))
	}
}

func TestDishByName(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	r, err := store.RestaurantByName(ctx, "Burger Bonanza")
	if err != nil {
		t.Fatalf("RestaurantByName: %v", err)
	}

	d, err := store.DishByName(ctx, r.ID, "Deluxe Burger")
	if err != nil {
		t.Fatalf("DishByName: %v", err)
	}
	if d.Price != 12.99 {
		t.Errorf("Price = %v, want 12.99", d.Price)
	}

	// Same dish name under the wrong restaurant is not found.
	other, err := store.RestaurantByName(ctx, "Pizza Palace")
	if err != nil {
		t.Fatalf("RestaurantByName: %v", err)
	}
	_, err = store.DishByName(ctx, other.ID, "Deluxe Burger")
	if !errors.Is(err, domain.ErrDishNotFound) {
		t.Errorf("err = %v, want ErrDishNotFound", err)
	}
}

func TestRestaurantByDishName(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	r, err := store.RestaurantByDishName(ctx, "Foie Gras")
	if err != nil {
		t.Fatalf("RestaurantByDishName: %v", err)
	}
	if r.Name != "Fancy French" {
		t.Errorf("Name = %q, want Fancy French", r.Name)
	}

	_, err = store.RestaurantByDishName(ctx, "Ghost Pepper Wings")
	if !errors.Is(err, domain.ErrDishNotFound) {
		t.Errorf("err = %v, want ErrDishNotFound", err)
	}
}

func TestEmptyCatalogBeforeSeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	restaurants, err := store.Restaurants(ctx)
	if err != nil {
		t.Fatalf("Restaurants: %v", err)
	}
	if len(restaurants) != 0 {
		t.Errorf("len(restaurants) = %d, want 0", len(restaurants))
	}

	_, err = store.UserByUsername(ctx, "jacob")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}
