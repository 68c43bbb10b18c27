package deposit_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ej-moran/tillpoint/internal/domain"
	"github.com/ej-moran/tillpoint/internal/repository"
	"github.com/ej-moran/tillpoint/internal/service/deposit"
	"github.com/ej-moran/tillpoint/internal/service/till"
	"github.com/ej-moran/tillpoint/internal/testutil"
)

func setupDepositService(t *testing.T) (*deposit.Service, *till.Service, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	depositSvc := deposit.NewService(
		repository.NewDepositRepository(db),
		repository.NewBalanceRepository(db),
		db,
	)
	tillSvc := till.NewService(
		repository.NewTillRepository(db),
		repository.NewBalanceRepository(db),
		repository.NewItemRepository(db),
		repository.NewDepositRepository(db),
		repository.NewAccountRepository(db),
		db,
	)
	return depositSvc, tillSvc, db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// clearTill records a posted payment on a fresh till and clears it into the
// account, returning the cleared balance.
func clearTill(t *testing.T, tillSvc *till.Service, db *sql.DB, name, amount string, accountID uuid.UUID) *domain.TillBalance {
	t.Helper()
	ctx := context.Background()

	tll := testutil.SeedTill(t, db, name, dec("100.00"))
	_, err := tillSvc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec(amount),
		Post:   true,
	})
	require.NoError(t, err)

	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)
	balance, err := tillSvc.ClearDirect(context.Background(), balanceID, dec("100.00"), accountID)
	require.NoError(t, err)
	return balance
}

func TestDeposit_FinalizesOpenDeposit(t *testing.T) {
	depositSvc, tillSvc, db := setupDepositService(t)
	ctx := context.Background()
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	balA := clearTill(t, tillSvc, db, "Front Desk", "50.00", account.ID)
	balB := clearTill(t, tillSvc, db, "Pharmacy", "30.00", account.ID)
	require.NotNil(t, balA.DepositID)
	require.Equal(t, *balA.DepositID, *balB.DepositID)

	finalized, err := depositSvc.Deposit(ctx, *balA.DepositID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusDeposited, finalized.Status)
	assert.NotNil(t, finalized.DepositedAt)
	assert.True(t, finalized.Amount.Equal(dec("80.00")), "amount = %s", finalized.Amount)

	_, err = depositSvc.Deposit(ctx, *balA.DepositID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDeposited)
}

func TestDeposit_NewDepositStartsAfterFinalization(t *testing.T) {
	depositSvc, tillSvc, db := setupDepositService(t)
	ctx := context.Background()
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	balA := clearTill(t, tillSvc, db, "Front Desk", "50.00", account.ID)
	_, err := depositSvc.Deposit(ctx, *balA.DepositID)
	require.NoError(t, err)

	// The next cleared balance opens a fresh deposit for the account.
	balB := clearTill(t, tillSvc, db, "Pharmacy", "30.00", account.ID)
	require.NotNil(t, balB.DepositID)
	assert.NotEqual(t, *balA.DepositID, *balB.DepositID)

	fresh := testutil.GetDeposit(t, db, *balB.DepositID)
	assert.Equal(t, domain.DepositStatusUndeposited, fresh.Status)
	assert.True(t, fresh.Amount.Equal(dec("30.00")), "amount = %s", fresh.Amount)
}

func TestGetDeposit_ReturnsBalances(t *testing.T) {
	depositSvc, tillSvc, db := setupDepositService(t)
	ctx := context.Background()
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	balA := clearTill(t, tillSvc, db, "Front Desk", "50.00", account.ID)
	clearTill(t, tillSvc, db, "Pharmacy", "30.00", account.ID)

	got, balances, err := depositSvc.GetDeposit(ctx, *balA.DepositID)
	require.NoError(t, err)
	assert.Equal(t, *balA.DepositID, got.ID)
	assert.Len(t, balances, 2)

	_, _, err = depositSvc.GetDeposit(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDeposits_FiltersByStatus(t *testing.T) {
	depositSvc, tillSvc, db := setupDepositService(t)
	ctx := context.Background()
	accountA := testutil.SeedBankAccount(t, db, "Main Operating")
	accountB := testutil.SeedBankAccount(t, db, "Savings")

	balA := clearTill(t, tillSvc, db, "Front Desk", "50.00", accountA.ID)
	clearTill(t, tillSvc, db, "Pharmacy", "30.00", accountB.ID)

	open, err := depositSvc.ListDeposits(ctx, domain.DepositStatusUndeposited)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = depositSvc.Deposit(ctx, *balA.DepositID)
	require.NoError(t, err)

	open, err = depositSvc.ListDeposits(ctx, domain.DepositStatusUndeposited)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	done, err := depositSvc.ListDeposits(ctx, domain.DepositStatusDeposited)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, *balA.DepositID, done[0].ID)
}
