package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"foodcourt/internal/domain"
)

// SQLiteStore implements domain.CatalogStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE,
			role     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS restaurants (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			name                 TEXT,
			allowed_for_children BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS dishes (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER,
			name          TEXT,
			price         REAL,
			FOREIGN KEY (restaurant_id) REFERENCES restaurants(id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, role FROM users WHERE username = ?", username,
	)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Role); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) Users(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, role FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) Restaurants(ctx context.Context) ([]domain.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, allowed_for_children FROM restaurants ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var restaurants []domain.Restaurant
	for rows.Next() {
		var r domain.Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.AllowedForChildren); err != nil {
			return nil, err
		}
		restaurants = append(restaurants, r)
	}
	return restaurants, rows.Err()
}

func (s *SQLiteStore) RestaurantByName(ctx context.Context, name string) (*domain.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, allowed_for_children FROM restaurants WHERE name = ?", name,
	)
	var r domain.Restaurant
	if err := row.Scan(&r.ID, &r.Name, &r.AllowedForChildren); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRestaurantNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) RestaurantByDishName(ctx context.Context, dishName string) (*domain.Restaurant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.name, r.allowed_for_children
		FROM restaurants r
		JOIN dishes d ON r.id = d.restaurant_id
		WHERE d.name = ?`, dishName,
	)
	var r domain.Restaurant
	if err := row.Scan(&r.ID, &r.Name, &r.AllowedForChildren); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrDishNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Dishes(ctx context.Context, restaurantID int64) ([]domain.Dish, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, restaurant_id, name, price FROM dishes WHERE restaurant_id = ? ORDER BY id", restaurantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dishes []domain.Dish
	for rows.Next() {
		var d domain.Dish
		if err := rows.Scan(&d.ID, &d.RestaurantID, &d.Name, &d.Price); err != nil {
			return nil, err
		}
		dishes = append(dishes, d)
	}
	return dishes, rows.Err()
}

func (s *SQLiteStore) DishByName(ctx context.Context, restaurantID int64, name string) (*domain.Dish, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, restaurant_id, name, price FROM dishes WHERE name = ? AND restaurant_id = ?",
		name, restaurantID,
	)
	var d domain.Dish
	if err := row.Scan(&d.ID, &d.RestaurantID, &d.Name, &d.Price); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrDishNotFound
		}
		return nil, err
	}
	return &d, nil
}
