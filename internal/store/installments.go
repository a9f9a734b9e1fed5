package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
)

func (s *Store) AddInstallment(ctx context.Context, in models.PaymentInstallment) (models.PaymentInstallment, error) {
	id, err := s.insertReturningID(ctx, s.sql().Insert("payment_installments").
		Columns("booking_id", "sequence", "payment_ref", "amount_minor", "refunded_minor").
		Values(in.BookingID, in.Sequence, in.PaymentRef, in.AmountMinor, in.RefundedMinor))
	if db.IsUniqueViolation(err) {
		return models.PaymentInstallment{}, fmt.Errorf("installment %d of booking %d: %w", in.Sequence, in.BookingID, ErrDuplicate)
	}
	if err != nil {
		return models.PaymentInstallment{}, fmt.Errorf("insert installment: %w", err)
	}
	in.ID = id
	return in, nil
}

// ListInstallments returns a booking's installments in payment order.
func (s *Store) ListInstallments(ctx context.Context, bookingID int64) ([]models.PaymentInstallment, error) {
	rows, err := s.query(ctx, s.sql().
		Select("id", "booking_id", "sequence", "payment_ref", "amount_minor", "refunded_minor").
		From("payment_installments").
		Where(sq.Eq{"booking_id": bookingID}).
		OrderBy("sequence"))
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentInstallment
	for rows.Next() {
		var in models.PaymentInstallment
		if err := rows.Scan(&in.ID, &in.BookingID, &in.Sequence, &in.PaymentRef, &in.AmountMinor, &in.RefundedMinor); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) AddInstallmentRefund(ctx context.Context, id int64, amountMinor int64) error {
	_, err := s.exec(ctx, s.sql().Update("payment_installments").
		Set("refunded_minor", sq.Expr("refunded_minor + ?", amountMinor)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("record installment refund: %w", err)
	}
	return nil
}
