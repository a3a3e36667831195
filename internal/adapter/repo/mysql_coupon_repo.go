package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/npquoc/mallcore/internal/entity"
	"github.com/npquoc/mallcore/internal/usecase"
)

type MySQLCouponRepo struct{ db *sql.DB }

func NewMySQLCouponRepo(db *sql.DB) *MySQLCouponRepo { return &MySQLCouponRepo{db: db} }

func (r *MySQLCouponRepo) GetInstance(ctx context.Context, id string) (*domain.CouponInstance, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,user_id,template_id,status,order_id
FROM coupon_instances WHERE id=?`, id)
	var c domain.CouponInstance
	err := row.Scan(&c.ID, &c.UserID, &c.TemplateID, &c.Status, &c.OrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MySQLCouponRepo) GetTemplate(ctx context.Context, id string) (*domain.CouponTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,name,discount_cents,min_spend_cents,total,remaining,valid_from,valid_to
FROM coupon_templates WHERE id=?`, id)
	var t domain.CouponTemplate
	err := row.Scan(&t.ID, &t.Name, &t.DiscountCents, &t.MinSpendCents, &t.Total, &t.Remaining, &t.ValidFrom, &t.ValidTo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MySQLCouponRepo) CreateInstance(ctx context.Context, inst *domain.CouponInstance) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO coupon_instances (id,user_id,template_id,status,order_id,created_at)
VALUES (?,?,?,?,?,NOW())
`, inst.ID, inst.UserID, inst.TemplateID, inst.Status, inst.OrderID)
	return err
}

// UpdateInstanceStatusIf: per-instance CAS. Two concurrent lock attempts on
// one instance match the WHERE clause exactly once between them.
func (r *MySQLCouponRepo) UpdateInstanceStatusIf(ctx context.Context, id string, from, to domain.CouponStatus, orderID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE coupon_instances SET status = ?, order_id = ?, updated_at = NOW()
WHERE id = ? AND status = ?`,
		to, orderID, id, from,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// DecrementRemaining is guarded against issuing past the cap.
func (r *MySQLCouponRepo) DecrementRemaining(ctx context.Context, templateID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE coupon_templates SET remaining = remaining - 1
WHERE id = ? AND remaining > 0`, templateID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *MySQLCouponRepo) ExpireInstances(ctx context.Context, templateID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE coupon_instances SET status = ?, updated_at = NOW()
WHERE template_id = ? AND status IN (?, ?)`,
		domain.CouponExpired, templateID, domain.CouponAvailable, domain.CouponLocked,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *MySQLCouponRepo) ListLapsedTemplates(ctx context.Context, now time.Time) ([]*domain.CouponTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,name,discount_cents,min_spend_cents,total,remaining,valid_from,valid_to
FROM coupon_templates WHERE valid_to < ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CouponTemplate
	for rows.Next() {
		var t domain.CouponTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.DiscountCents, &t.MinSpendCents, &t.Total, &t.Remaining, &t.ValidFrom, &t.ValidTo); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

var _ usecase.CouponRepo = (*MySQLCouponRepo)(nil)
