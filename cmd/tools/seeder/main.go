package main

import (
	"context"
	"log"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL, "billing-seeder")
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	tenantID := seedTenant(ctx, pool)
	log.Printf("using tenant %s", tenantID)

	seedAdmin(ctx, pool, tenantID, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
	warehouseID := seedWarehouse(ctx, pool, tenantID)
	seedCatalog(ctx, pool, tenantID, warehouseID)

	log.Println("seeding completed")
}

func seedTenant(ctx context.Context, pool *pgxpool.Pool) string {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO tenants (slug, name) VALUES ('default', 'Default Store')
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`).Scan(&id)
	if err != nil {
		log.Fatalf("seed tenant: %v", err)
	}
	return id
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, tenantID, email, password string) {
	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "changeme-now"
		log.Println("SEED_ADMIN_PASSWORD not set, using the default; change it immediately")
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO users (tenant_id, name, email, password_hash, roles)
		VALUES ($1, 'Administrator', $2, $3, '{admin}')
		ON CONFLICT (tenant_id, email) DO NOTHING`,
		tenantID, email, hash)
	if err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	log.Printf("admin user ready: %s", email)
}

func seedWarehouse(ctx context.Context, pool *pgxpool.Pool, tenantID string) string {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO warehouses (tenant_id, name, address)
		VALUES ($1, 'Main Warehouse', 'Seeded address')
		ON CONFLICT (tenant_id, name) DO UPDATE SET address = EXCLUDED.address
		RETURNING id`,
		tenantID).Scan(&id)
	if err != nil {
		log.Fatalf("seed warehouse: %v", err)
	}
	return id
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, tenantID, warehouseID string) {
	var categoryID string
	err := pool.QueryRow(ctx, `
		INSERT INTO categories (tenant_id, name, slug)
		VALUES ($1, 'Beverages', 'beverages')
		ON CONFLICT (tenant_id, slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		tenantID).Scan(&categoryID)
	if err != nil {
		log.Fatalf("seed category: %v", err)
	}

	products := []struct {
		name, slug   string
		sellingPrice float64
		taxPercent   float64
		itemsPerBox  int
		boxes        int
	}{
		{"Cola 300ml", "cola-300ml", 118, 18, 24, 20},
		{"Lemon Soda 300ml", "lemon-soda-300ml", 95, 18, 24, 15},
		{"Mineral Water 1L", "mineral-water-1l", 20, 12, 12, 50},
	}
	for _, p := range products {
		var productID string
		err := pool.QueryRow(ctx, `
			INSERT INTO products (tenant_id, category_id, name, slug, selling_price, tax_percent, items_per_box)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_id, slug) DO UPDATE SET
				selling_price = EXCLUDED.selling_price,
				tax_percent = EXCLUDED.tax_percent,
				items_per_box = EXCLUDED.items_per_box,
				updated_at = now()
			RETURNING id`,
			tenantID, categoryID, p.name, p.slug, p.sellingPrice, p.taxPercent, p.itemsPerBox).Scan(&productID)
		if err != nil {
			log.Fatalf("seed product %s: %v", p.slug, err)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO stock_records (tenant_id, product_id, warehouse_id, boxes, items_per_box, loose_items, low_stock_boxes)
			VALUES ($1, $2, $3, $4, $5, 0, 2)
			ON CONFLICT (tenant_id, product_id, warehouse_id) DO UPDATE SET
				boxes = EXCLUDED.boxes,
				items_per_box = EXCLUDED.items_per_box,
				updated_at = now()`,
			tenantID, productID, warehouseID, p.boxes, p.itemsPerBox)
		if err != nil {
			log.Fatalf("seed stock for %s: %v", p.slug, err)
		}
		log.Printf("seeded %s (%d boxes)", p.name, p.boxes)
	}
}
