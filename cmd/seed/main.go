// Package main provides a CLI tool for seeding the database with demo stock data.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/config"
	"stockflow/pkg/logger"
)

// Fixed ids so example batches can reference the seeded rows.
var (
	systemActorID = id.MustParse("00000000-0000-7000-8000-000000000001")
	demoOrderID   = id.MustParse("00000000-0000-7000-8000-0000000000a0")
)

type itemSeed struct {
	id           id.ID
	name         string
	quantity     string
	reorderPoint *types.Quantity
	maxQuantity  *types.Quantity
	ordered      string // ordered on the demo purchase order, empty if not ordered
}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}

	if err := seedActor(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed actor", "error", err)
	}

	if err := seedStock(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed stock", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedActor(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	tag, err := pool.Pool.Exec(ctx, `
		INSERT INTO actors (id, name, is_active)
		VALUES ($1, $2, true)
		ON CONFLICT (id) DO NOTHING
	`, systemActorID, "system")
	if err != nil {
		return fmt.Errorf("insert actor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Infow("actor already exists", "actor_id", systemActorID)
		return nil
	}
	log.Infow("seeded actor", "actor_id", systemActorID)
	return nil
}

func seedStock(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	qty := func(s string) *types.Quantity {
		q := types.MustQuantity(s)
		return &q
	}

	items := []itemSeed{
		{id.MustParse("00000000-0000-7000-8000-000000000011"), "Nitrile gloves (box)", "40", qty("10"), qty("100"), "60"},
		{id.MustParse("00000000-0000-7000-8000-000000000012"), "Saline 0.9% 500ml", "12.5", qty("20"), qty("80"), "50"},
		{id.MustParse("00000000-0000-7000-8000-000000000013"), "Gauze pads", "200", qty("50"), nil, ""},
		{id.MustParse("00000000-0000-7000-8000-000000000014"), "Syringe 5ml", "0", nil, nil, "100"},
	}

	for _, it := range items {
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO stock_items (id, name, quantity, reorder_point, max_quantity, is_active)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (id) DO NOTHING
		`, it.id, it.name, types.MustQuantity(it.quantity), it.reorderPoint, it.maxQuantity)
		if err != nil {
			return fmt.Errorf("insert item %q: %w", it.name, err)
		}
	}
	log.Infow("seeded stock items", "count", len(items))

	tag, err := pool.Pool.Exec(ctx, `
		INSERT INTO purchase_orders (id, number, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, demoOrderID, "PO-0001", purchase_order.StatusFulfilled)
	if err != nil {
		return fmt.Errorf("insert purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Infow("purchase order already exists", "order_id", demoOrderID)
		return nil
	}

	lines := 0
	for _, it := range items {
		if it.ordered == "" {
			continue
		}
		_, err := pool.Pool.Exec(ctx, `
			INSERT INTO purchase_order_lines (id, order_id, item_id, ordered_quantity, received_quantity)
			VALUES ($1, $2, $3, $4, 0)
		`, id.New(), demoOrderID, it.id, types.MustQuantity(it.ordered))
		if err != nil {
			return fmt.Errorf("insert order line for %q: %w", it.name, err)
		}
		lines++
	}
	log.Infow("seeded purchase order", "order_id", demoOrderID, "lines", lines)
	return nil
}
