// Package walletservice manages business logic layer of wallets and their journal.
package walletservice

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
)

// WalletRepo provides wallet data access needed by wallet service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package walletservice
type WalletRepo interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Wallet, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
}

// Journal provides transaction data access needed by wallet service layer.
type Journal interface {
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int32) ([]domain.Transaction, error)
}

// Service facilitates wallet service layer logic.
type Service struct {
	wallets WalletRepo
	journal Journal
}

// New returns wallet service.
func New(wallets WalletRepo, journal Journal) *Service {
	return &Service{
		wallets: wallets,
		journal: journal,
	}
}

// List returns all wallets of the user.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	return s.wallets.ListByUser(ctx, userID)
}

// ListTransactions returns a page of the wallet's journal, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID, walletID uuid.UUID, pageSize, pageID int32) ([]domain.Transaction, error) {
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}

	if w.UserID != userID {
		zerolog.Ctx(ctx).Warn().Str("wallet_id", walletID.String()).Msg("wallet of another user requested")
		return nil, domain.ErrWalletOwnerMismatch
	}

	return s.journal.ListByWallet(ctx, walletID, pageSize, (pageID-1)*pageSize)
}
