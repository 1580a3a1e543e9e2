package domain

import (
	"context"
	"errors"
)

type Service interface {
	RecordCharge(ctx context.Context, req ChargeRequest) (*ChargeRecord, error)
	Rate(ctx context.Context, user string) (*BillReport, error)
	Users(ctx context.Context) []string
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidPrice = errors.New("invalid_price")
)
