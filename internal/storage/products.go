package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/model"
)

const productColumns = `id, user_id, run_id, name, description, country_of_origin, materials, unit_cost, vendor, sku, created_at`

// SaveProduct stores the product produced by a run.
func (s *SQLiteStorage) SaveProduct(ctx context.Context, product *model.Product) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.saveProductTx(ctx, s.q, product)
}

func (s *SQLiteStorage) saveProductTx(ctx context.Context, q queryable, product *model.Product) error {
	materials := product.Materials
	if materials == nil {
		materials = []model.Material{}
	}
	encoded, err := json.Marshal(materials)
	if err != nil {
		return fmt.Errorf("failed to encode materials: %w", err)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO products (user_id, run_id, name, description, country_of_origin, materials, unit_cost, vendor, sku, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, product.UserID, product.RunID, product.Name, product.Description, product.CountryOfOrigin,
		string(encoded), nullFloat(product.UnitCost), product.Vendor, product.SKU, product.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get product id: %w", err)
	}
	product.ID = id
	return nil
}

// GetProduct retrieves a product by ID.
func (s *SQLiteStorage) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, common.ErrNotFound)
	}
	return p, err
}

// ListProducts returns all of a user's products, newest first.
func (s *SQLiteStorage) ListProducts(ctx context.Context, userID string) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.Product
	for rows.Next() {
		p, scanErr := scanProduct(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var (
		p         model.Product
		materials string
		unitCost  sql.NullFloat64
	)
	err := row.Scan(&p.ID, &p.UserID, &p.RunID, &p.Name, &p.Description, &p.CountryOfOrigin,
		&materials, &unitCost, &p.Vendor, &p.SKU, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	if err := json.Unmarshal([]byte(materials), &p.Materials); err != nil {
		return nil, fmt.Errorf("failed to decode materials of product %d: %w", p.ID, err)
	}
	if len(p.Materials) == 0 {
		p.Materials = nil
	}
	p.UnitCost = floatPtr(unitCost)
	return &p, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
