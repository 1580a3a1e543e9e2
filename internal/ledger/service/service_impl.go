package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gavel/internal/clock"
	"github.com/smallbiznis/gavel/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/gavel/internal/observability/metrics"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Schedule pricetierdomain.Schedule
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type account struct {
	mu      sync.Mutex
	charges []domain.ChargeRecord
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	schedule pricetierdomain.Schedule
	metrics  *obsmetrics.Metrics

	mu       sync.RWMutex
	accounts map[string]*account
}

func NewService(p Params) domain.Service {
	return New(p)
}

func New(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:      log.Named("ledger.service"),
		genID:    p.GenID,
		clock:    clk,
		schedule: p.Schedule,
		metrics:  p.Metrics,
		accounts: make(map[string]*account),
	}
}

func (s *Service) RecordCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeRecord, error) {
	user := strings.TrimSpace(req.User)
	if user == "" {
		return nil, domain.ErrInvalidUser
	}
	if math.IsNaN(req.Price) || math.IsInf(req.Price, 0) || req.Price < 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, req.Price)
	}

	record := domain.ChargeRecord{
		ID:        s.genID.Generate(),
		AuctionID: req.AuctionID,
		Price:     req.Price,
		CreatedAt: s.clock.Now(),
	}

	acct := s.accountFor(user)
	acct.mu.Lock()
	acct.charges = append(acct.charges, record)
	acct.mu.Unlock()

	s.metrics.RecordCharge(ctx)
	s.log.Debug("charge recorded",
		zap.String("user", user),
		zap.Int64("auction_id", record.AuctionID),
		zap.Float64("price", record.Price),
		zap.String("charge_id", record.ID.String()),
	)
	return &record, nil
}

// Rate builds the bill from a copy of the user's charges and a single
// schedule snapshot, so concurrent writers never see a half-computed report.
func (s *Service) Rate(ctx context.Context, user string) (*domain.BillReport, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, domain.ErrInvalidUser
	}

	var charges []domain.ChargeRecord
	if acct := s.lookup(user); acct != nil {
		acct.mu.Lock()
		charges = slices.Clone(acct.charges)
		acct.mu.Unlock()
	}

	var snapshot pricetierdomain.Snapshot
	if s.schedule != nil {
		snapshot = s.schedule.Snapshot()
	}

	return domain.Rate(user, charges, snapshot, s.clock.Now()), nil
}

func (s *Service) Users(ctx context.Context) []string {
	s.mu.RLock()
	users := make([]string, 0, len(s.accounts))
	for user := range s.accounts {
		users = append(users, user)
	}
	s.mu.RUnlock()
	slices.Sort(users)
	return users
}

func (s *Service) lookup(user string) *account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[user]
}

func (s *Service) accountFor(user string) *account {
	if acct := s.lookup(user); acct != nil {
		return acct
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[user]
	if !ok {
		acct = &account{}
		s.accounts[user] = acct
	}
	return acct
}
