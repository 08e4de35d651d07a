package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/KL-16/cart-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) FindCart(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	query := `SELECT id, total_price, created_at, updated_at FROM carts WHERE id = $1`

	var cart domain.Cart
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cart.ID,
		&cart.TotalPrice,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart by id: %w", err)
	}

	items, err := r.findLineItemsByCartID(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.LineItems = items

	return &cart, nil
}

func (r *PostgresRepository) FindAllCarts(ctx context.Context) ([]*domain.Cart, error) {
	query := `SELECT id, total_price, created_at, updated_at FROM carts ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all carts: %w", err)
	}
	defer rows.Close()

	var carts []*domain.Cart
	byID := make(map[uuid.UUID]*domain.Cart)
	for rows.Next() {
		var cart domain.Cart
		if err := rows.Scan(&cart.ID, &cart.TotalPrice, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart row: %w", err)
		}
		cart.LineItems = []domain.LineItem{}
		carts = append(carts, &cart)
		byID[cart.ID] = &cart
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	itemQuery := `SELECT id, cart_id, name, unit_price, quantity, created_at, updated_at
	              FROM line_items ORDER BY created_at`
	itemRows, err := r.db.QueryContext(ctx, itemQuery)
	if err != nil {
		return nil, fmt.Errorf("query all line items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.LineItem
		if err := scanLineItem(itemRows, &item); err != nil {
			return nil, err
		}
		if cart, ok := byID[item.CartID]; ok {
			cart.LineItems = append(cart.LineItems, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return carts, nil
}

func (r *PostgresRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	query := `INSERT INTO carts (id, total_price, created_at, updated_at)
	          VALUES ($1, $2, NOW(), NOW())
	          ON CONFLICT (id) DO UPDATE SET total_price = EXCLUDED.total_price, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, cart.ID, cart.TotalPrice); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveCartWithItems(ctx context.Context, cart *domain.Cart, items []domain.LineItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cartQuery := `INSERT INTO carts (id, total_price, created_at, updated_at)
	              VALUES ($1, $2, NOW(), NOW())
	              ON CONFLICT (id) DO UPDATE SET total_price = EXCLUDED.total_price, updated_at = NOW()`

	if _, err := tx.ExecContext(ctx, cartQuery, cart.ID, cart.TotalPrice); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	itemQuery := `INSERT INTO line_items (id, cart_id, name, unit_price, quantity, created_at, updated_at)
	              VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	              ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, itemQuery,
			item.ID, item.CartID, item.Name, item.UnitPrice, item.Quantity); err != nil {
			return fmt.Errorf("upsert line item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteCartByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cart rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *PostgresRepository) FindLineItem(ctx context.Context, id uuid.UUID) (*domain.LineItem, error) {
	query := `SELECT id, cart_id, name, unit_price, quantity, created_at, updated_at
	          FROM line_items WHERE id = $1`

	var item domain.LineItem
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.CartID,
		&item.Name,
		&item.UnitPrice,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query line item by id: %w", err)
	}

	return &item, nil
}

func (r *PostgresRepository) SaveLineItem(ctx context.Context, item *domain.LineItem) error {
	query := `INSERT INTO line_items (id, cart_id, name, unit_price, quantity, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	          ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query,
		item.ID, item.CartID, item.Name, item.UnitPrice, item.Quantity); err != nil {
		return fmt.Errorf("upsert line item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveLineItems(ctx context.Context, items []domain.LineItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO line_items (id, cart_id, name, unit_price, quantity, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	          ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, query,
			item.ID, item.CartID, item.Name, item.UnitPrice, item.Quantity); err != nil {
			return fmt.Errorf("upsert line item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteLineItemByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM line_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete line item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete line item rows affected: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteLineItemsByCartID(ctx context.Context, cartID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM line_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("delete line items by cart id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete line items rows affected: %w", err)
	}
	return affected, nil
}

// EmptyCart runs the bulk delete and the total reset inside one
// transaction, so the cart is never visible with zero items and a
// nonzero total.
func (r *PostgresRepository) EmptyCart(ctx context.Context, cartID uuid.UUID) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updateRes, err := tx.ExecContext(ctx,
		`UPDATE carts SET total_price = 0, updated_at = NOW() WHERE id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("reset cart total: %w", err)
	}
	updated, err := updateRes.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset cart total rows affected: %w", err)
	}
	if updated == 0 {
		return 0, ErrCartNotFound
	}

	deleteRes, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("delete line items: %w", err)
	}
	removed, err := deleteRes.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete line items rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return removed, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) findLineItemsByCartID(ctx context.Context, cartID uuid.UUID) ([]domain.LineItem, error) {
	query := `SELECT id, cart_id, name, unit_price, quantity, created_at, updated_at
	          FROM line_items WHERE cart_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query line items by cart id: %w", err)
	}
	defer rows.Close()

	items := []domain.LineItem{}
	for rows.Next() {
		var item domain.LineItem
		if err := scanLineItem(rows, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func scanLineItem(rows *sql.Rows, item *domain.LineItem) error {
	if err := rows.Scan(
		&item.ID,
		&item.CartID,
		&item.Name,
		&item.UnitPrice,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return fmt.Errorf("scan line item row: %w", err)
	}
	return nil
}
