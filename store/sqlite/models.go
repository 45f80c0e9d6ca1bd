package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/entry"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:credits_balances"`

	ID             string     `grove:"id,pk"`
	UserID         string     `grove:"user_id"`
	CurrentCredits int64      `grove:"current_credits"`
	LastRefreshAt  *time.Time `grove:"last_refresh_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toBalanceModel(b *balance.Balance) *balanceModel {
	return &balanceModel{
		ID:             b.ID.String(),
		UserID:         b.UserID,
		CurrentCredits: b.CurrentCredits,
		LastRefreshAt:  b.LastRefreshAt,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func fromBalanceModel(m *balanceModel) (*balance.Balance, error) {
	balID, err := id.ParseBalanceID(m.ID)
	if err != nil {
		return nil, err
	}

	return &balance.Balance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             balID,
		UserID:         m.UserID,
		CurrentCredits: m.CurrentCredits,
		LastRefreshAt:  m.LastRefreshAt,
	}, nil
}

// ==================== Entry models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:credits_entries"`

	ID                    string     `grove:"id,pk"`
	UserID                string     `grove:"user_id"`
	Type                  string     `grove:"type"`
	Amount                int64      `grove:"amount"`
	RemainingAmount       *int64     `grove:"remaining_amount"`
	Description           string     `grove:"description"`
	PaymentID             string     `grove:"payment_id"`
	ExpirationDate        *time.Time `grove:"expiration_date"`
	ExpirationProcessedAt *time.Time `grove:"expiration_processed_at"`
	CreatedAt             time.Time  `grove:"created_at"`
	UpdatedAt             time.Time  `grove:"updated_at"`
}

func toEntryModel(e *entry.Entry) *entryModel {
	return &entryModel{
		ID:                    e.ID.String(),
		UserID:                e.UserID,
		Type:                  string(e.Type),
		Amount:                e.Amount,
		RemainingAmount:       e.Remaining,
		Description:           e.Description,
		PaymentID:             e.PaymentID,
		ExpirationDate:        e.ExpirationDate,
		ExpirationProcessedAt: e.ExpirationProcessedAt,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

func fromEntryModel(m *entryModel) (*entry.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}

	return &entry.Entry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                    entryID,
		UserID:                m.UserID,
		Type:                  entry.Type(m.Type),
		Amount:                m.Amount,
		Remaining:             m.RemainingAmount,
		Description:           m.Description,
		PaymentID:             m.PaymentID,
		ExpirationDate:        m.ExpirationDate,
		ExpirationProcessedAt: m.ExpirationProcessedAt,
	}, nil
}

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:credits_accounts"`

	ID        string    `grove:"id,pk"`
	Email     string    `grove:"email"`
	Banned    bool      `grove:"banned"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:        a.ID,
		Email:     a.Email,
		Banned:    a.Banned,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:     m.ID,
		Email:  m.Email,
		Banned: m.Banned,
	}
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:credits_payments"`

	ID        string    `grove:"id,pk"`
	UserID    string    `grove:"user_id"`
	PriceID   string    `grove:"price_id"`
	Status    string    `grove:"status"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toPaymentModel(r *subscription.Record) *paymentModel {
	return &paymentModel{
		ID:        r.ID.String(),
		UserID:    r.UserID,
		PriceID:   r.PriceID,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*subscription.Record, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}

	return &subscription.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      payID,
		UserID:  m.UserID,
		PriceID: m.PriceID,
		Status:  subscription.Status(m.Status),
	}, nil
}
