package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/ej-moran/tillpoint/internal/domain"
)

func SeedUser(t *testing.T, db *sql.DB, email, name string, role domain.UserRole) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func SeedTill(t *testing.T, db *sql.DB, name string, tillFloat decimal.Decimal) *domain.Till {
	t.Helper()

	till := &domain.Till{
		ID:        uuid.New(),
		Name:      name,
		TillFloat: tillFloat,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO tills (id, name, till_float, created_at)
		 VALUES ($1, $2, $3, $4)`,
		till.ID, till.Name, till.TillFloat, till.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed till %s: %v", name, err)
	}
	return till
}

func SeedBankAccount(t *testing.T, db *sql.DB, name string) *domain.BankAccount {
	t.Helper()

	a := &domain.BankAccount{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO bank_accounts (id, name, created_at) VALUES ($1, $2, $3)`,
		a.ID, a.Name, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed bank account %s: %v", name, err)
	}
	return a
}

func GetBalance(t *testing.T, db *sql.DB, balanceID uuid.UUID) *domain.TillBalance {
	t.Helper()

	var b domain.TillBalance
	err := db.QueryRow(
		`SELECT id, till_id, status, amount, cash_float, deposit_id, end_time, created_at
		 FROM till_balances WHERE id = $1`, balanceID,
	).Scan(&b.ID, &b.TillID, &b.Status, &b.Amount, &b.CashFloat, &b.DepositID, &b.EndTime, &b.CreatedAt)
	if err != nil {
		t.Fatalf("get balance %s: %v", balanceID, err)
	}
	return &b
}

func GetOpenBalanceID(t *testing.T, db *sql.DB, tillID uuid.UUID) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := db.QueryRow(
		`SELECT id FROM till_balances WHERE till_id = $1 AND status <> 'cleared'`, tillID,
	).Scan(&id)
	if err != nil {
		t.Fatalf("get open balance for till %s: %v", tillID, err)
	}
	return id
}

func CountOpenBalances(t *testing.T, db *sql.DB, tillID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM till_balances WHERE till_id = $1 AND status = 'uncleared'`, tillID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count open balances for till %s: %v", tillID, err)
	}
	return count
}

func CountItemsInBalance(t *testing.T, db *sql.DB, balanceID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM balance_items WHERE balance_id = $1`, balanceID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count items in balance %s: %v", balanceID, err)
	}
	return count
}

func GetTill(t *testing.T, db *sql.DB, tillID uuid.UUID) *domain.Till {
	t.Helper()

	var till domain.Till
	err := db.QueryRow(
		`SELECT id, name, till_float, last_cleared, created_at FROM tills WHERE id = $1`, tillID,
	).Scan(&till.ID, &till.Name, &till.TillFloat, &till.LastCleared, &till.CreatedAt)
	if err != nil {
		t.Fatalf("get till %s: %v", tillID, err)
	}
	return &till
}

func GetItem(t *testing.T, db *sql.DB, itemID uuid.UUID) *domain.BalanceItem {
	t.Helper()

	var i domain.BalanceItem
	err := db.QueryRow(
		`SELECT id, till_id, balance_id, kind, status, amount, credit, created_at
		 FROM balance_items WHERE id = $1`, itemID,
	).Scan(&i.ID, &i.TillID, &i.BalanceID, &i.Kind, &i.Status, &i.Amount, &i.Credit, &i.CreatedAt)
	if err != nil {
		t.Fatalf("get item %s: %v", itemID, err)
	}
	return &i
}

func GetDeposit(t *testing.T, db *sql.DB, depositID uuid.UUID) *domain.BankDeposit {
	t.Helper()

	var d domain.BankDeposit
	err := db.QueryRow(
		`SELECT id, account_id, status, amount, deposited_at, created_at
		 FROM bank_deposits WHERE id = $1`, depositID,
	).Scan(&d.ID, &d.AccountID, &d.Status, &d.Amount, &d.DepositedAt, &d.CreatedAt)
	if err != nil {
		t.Fatalf("get deposit %s: %v", depositID, err)
	}
	return &d
}
