package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqliteInfra "github.com/davicafu/ordersim/internal/infra/db/sqlite"
	orderDomain "github.com/davicafu/ordersim/internal/order/domain"
	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	sharedQuery "github.com/davicafu/ordersim/internal/shared/infra/platform/query"
)

const orderColumns = `id, symbol, quantity, price, side, status, created_at, updated_at`

type OrderRepoSQLite struct {
	db *sql.DB
}

func NewOrderRepoSQLite(db *sql.DB) *OrderRepoSQLite {
	return &OrderRepoSQLite{db: db}
}

// ------------------ Escritura + Outbox ------------------

// Create inserta la orden y su evento en una transacción.
func (r *OrderRepoSQLite) Create(ctx context.Context, o *orderDomain.Order, build orderDomain.OutboxBuilder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (symbol, quantity, price, side, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.Symbol, o.Quantity.String(), o.Price.String(), string(o.Side), string(o.Status), o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read order id: %w", err)
	}
	o.ID = id

	evt, err := build(o)
	if err != nil {
		o.ID = 0
		return err
	}
	if err := sqliteInfra.InsertOutboxTx(ctx, tx, evt); err != nil {
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
func (r *OrderRepoSQLite) Update(ctx context.Context, o *orderDomain.Order, from orderDomain.Status, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(o.Status), o.UpdatedAt.UTC(), o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, o.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return sharedDomain.NewNotFoundError(o.ID)
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return orderDomain.ErrStatusConflict
	}

	if err := sqliteInfra.InsertOutboxTx(ctx, tx, evt); err != nil {
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

func (r *OrderRepoSQLite) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)

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
func (r *OrderRepoSQLite) FindByStatus(ctx context.Context, status orderDomain.Status) ([]*orderDomain.Order, error) {
	return r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY created_at, id`, string(status))
}

// ListByCriteria aplica filtros, paginación y ordenamiento.
func (r *OrderRepoSQLite) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*orderDomain.Order, error) {
	whereSQL, args, err := sharedDomain.BuildWhere(criteria, orderDomain.FilterColumns, sharedDomain.QuestionPlaceholder)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT ? OFFSET ?",
		sort.Column(orderDomain.SortColumns, "created_at"), sort.Direction(), sort.Direction())

	p := pagination.Normalize()
	args = append(args, p.Limit, p.Offset)
	return r.query(ctx, query, args...)
}

func (r *OrderRepoSQLite) query(ctx context.Context, query string, args ...interface{}) ([]*orderDomain.Order, error) {
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

var _ orderDomain.OrderRepository = (*OrderRepoSQLite)(nil)
