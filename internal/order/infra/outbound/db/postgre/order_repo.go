package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pgInfra "github.com/davicafu/ordersim/internal/infra/db/postgres"
	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
)

const orderColumns = `id, symbol, quantity, price, side, status, created_at, updated_at`

type OrderRepoPostgres struct {
	db *sql.DB
}

func NewOrderRepoPostgres(db *sql.DB) *OrderRepoPostgres {
	return &OrderRepoPostgres{db: db}
}

// ------------------ Escritura + Outbox ------------------

// Create inserta la orden (el ID lo genera BIGSERIAL) y su evento en una transacción.
func (r *OrderRepoPostgres) Create(ctx context.Context, o *orderDomain.Order, build orderDomain.OutboxBuilder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (symbol, quantity, price, side, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		o.Symbol, o.Quantity, o.Price, string(o.Side), string(o.Status), o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	o.ID = id

	evt, err := build(o)
	if err != nil {
		o.ID = 0
		return err
	}
	if err := pgInfra.InsertOutboxTx(ctx, tx, evt); err != nil {
		o.ID = 0
		return err
	}

	if err := tx.Commit(); err != nil {
		o.ID = 0
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// Update cambia estado y updatedAt si la orden sigue en 'from', junto con su evento.
func (r *OrderRepoPostgres) Update(ctx context.Context, o *orderDomain.Order, from orderDomain.Status, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(o.Status), o.UpdatedAt.UTC(), o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = $1`, o.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return sharedDomain.NewNotFoundError(o.ID)
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return orderDomain.ErrStatusConflict
	}

	if err := pgInfra.InsertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}

	return tx.Commit()
}

// ------------------ Lectura ------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s rowScanner) (*orderDomain.Order, error) {
	var o orderDomain.Order
	var side, status string
	if err := s.Scan(&o.ID, &o.Symbol, &o.Quantity, &o.Price, &side, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Side = orderDomain.Side(side)
	o.Status = orderDomain.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func (r *OrderRepoPostgres) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sharedDomain.NewNotFoundError(id)
		}
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	return o, nil
}

// FindByStatus devuelve las órdenes en orden de creación.
func (r *OrderRepoPostgres) FindByStatus(ctx context.Context, status orderDomain.Status) ([]*orderDomain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at, id`, string(status))
}

// ListByCriteria aplica filtros, paginación y ordenamiento.
func (r *OrderRepoPostgres) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*orderDomain.Order, error) {
	whereSQL, args, err := sharedDomain.BuildWhere(criteria, orderDomain.FilterColumns, sharedDomain.DollarPlaceholder)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	argOffset := len(args)
	query += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		sort.Column(orderDomain.SortColumns, "created_at"), sort.Direction(), sort.Direction(), argOffset+1, argOffset+2)

	p := pagination.Normalize()
	args = append(args, p.Limit, p.Offset)
	return r.query(ctx, query, args...)
}

func (r *OrderRepoPostgres) query(ctx context.Context, query string, args ...interface{}) ([]*orderDomain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*orderDomain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

var _ orderDomain.OrderRepository = (*OrderRepoPostgres)(nil)
