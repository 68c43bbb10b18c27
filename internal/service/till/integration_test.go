package till_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ej-moran/tillpoint/internal/domain"
	"github.com/ej-moran/tillpoint/internal/repository"
	"github.com/ej-moran/tillpoint/internal/service/till"
	"github.com/ej-moran/tillpoint/internal/testutil"
)

func setupTillService(t *testing.T) (*till.Service, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := till.NewService(
		repository.NewTillRepository(db),
		repository.NewBalanceRepository(db),
		repository.NewItemRepository(db),
		repository.NewDepositRepository(db),
		repository.NewAccountRepository(db),
		db,
	)
	return svc, db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRecordItem_CreatesOpenBalance(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	item, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("50.00"),
		Post:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPosted, item.Status)
	assert.True(t, item.Credit)

	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)
	balance := testutil.GetBalance(t, db, balanceID)
	assert.Equal(t, domain.BalanceStatusUncleared, balance.Status)
	// Balance total reflects the payment; the till float seeds CashFloat,
	// not the item total.
	assert.True(t, balance.Amount.Equal(dec("50.00")), "amount = %s", balance.Amount)
	assert.True(t, balance.CashFloat.Equal(dec("100.00")), "cash_float = %s", balance.CashFloat)

	saved := testutil.GetItem(t, db, item.ID)
	require.NotNil(t, saved.BalanceID)
	assert.Equal(t, balanceID, *saved.BalanceID)
}

func TestRecordItem_SingleOpenBalancePerTill(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	for _, amount := range []string{"10.00", "20.00", "30.00"} {
		_, err := svc.RecordItem(ctx, till.RecordItemRequest{
			TillID: tll.ID,
			Kind:   domain.ItemKindPayment,
			Amount: dec(amount),
			Post:   true,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, testutil.CountOpenBalances(t, db, tll.ID))
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)
	assert.Equal(t, 3, testutil.CountItemsInBalance(t, db, balanceID))

	balance := testutil.GetBalance(t, db, balanceID)
	assert.True(t, balance.Amount.Equal(dec("60.00")), "amount = %s", balance.Amount)
}

func TestRecordItem_RefundsDebitTheBalance(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("80.00"),
		Post:   true,
	})
	require.NoError(t, err)

	refund, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindRefund,
		Amount: dec("30.00"),
		Post:   true,
	})
	require.NoError(t, err)
	assert.False(t, refund.Credit)

	balance := testutil.GetBalance(t, db, testutil.GetOpenBalanceID(t, db, tll.ID))
	assert.True(t, balance.Amount.Equal(dec("50.00")), "amount = %s", balance.Amount)
}

func TestRecordItem_PendingNotCountedUntilPosted(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	item, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("25.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, item.Status)

	// No balance exists yet; the item links on post.
	assert.Equal(t, 0, testutil.CountOpenBalances(t, db, tll.ID))

	posted, err := svc.PostItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPosted, posted.Status)

	balance := testutil.GetBalance(t, db, testutil.GetOpenBalanceID(t, db, tll.ID))
	assert.True(t, balance.Amount.Equal(dec("25.00")), "amount = %s", balance.Amount)

	_, err = svc.PostItem(ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrItemAlreadyPosted)
}

func TestRecordItem_RejectsInvalidInput(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKind("invoice"),
		Amount: dec("10.00"),
	})
	assert.ErrorIs(t, err, domain.ErrCantAddToTill)

	_, err = svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("-5.00"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: uuid.New(),
		Kind:   domain.ItemKindPayment,
		Amount: dec("10.00"),
	})
	assert.ErrorIs(t, err, domain.ErrTillNotFound)
}

func TestUpdateBalance_IdempotentRecompute(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("40.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	// Corrupt the cached total, then recompute.
	_, err = db.Exec(`UPDATE till_balances SET amount = 999 WHERE id = $1`, balanceID)
	require.NoError(t, err)

	changed, err := svc.UpdateBalance(ctx, balanceID)
	require.NoError(t, err)
	assert.True(t, changed)

	balance := testutil.GetBalance(t, db, balanceID)
	assert.True(t, balance.Amount.Equal(dec("40.00")), "amount = %s", balance.Amount)

	// Second recompute finds nothing to fix.
	changed, err = svc.UpdateBalance(ctx, balanceID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStartClear_ReconcilesDeclaredFloat(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("50.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	// Declared 120 against a recorded float of 100: surplus of 20 becomes a
	// credit adjustment.
	balance, err := svc.StartClear(ctx, balanceID, dec("120.00"))
	require.NoError(t, err)
	assert.Equal(t, domain.BalanceStatusInProgress, balance.Status)
	assert.True(t, balance.Amount.Equal(dec("70.00")), "amount = %s", balance.Amount)

	assert.Equal(t, 2, testutil.CountItemsInBalance(t, db, balanceID))

	var amount decimal.Decimal
	var credit bool
	err = db.QueryRow(
		`SELECT amount, credit FROM balance_items WHERE balance_id = $1 AND kind = 'adjustment'`,
		balanceID,
	).Scan(&amount, &credit)
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("20.00")), "adjustment amount = %s", amount)
	assert.True(t, credit)

	savedTill := testutil.GetTill(t, db, tll.ID)
	assert.True(t, savedTill.TillFloat.Equal(dec("120.00")))
	assert.NotNil(t, savedTill.LastCleared)
}

func TestStartClear_NoAdjustmentWhenFloatMatches(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("50.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	_, err = svc.StartClear(ctx, balanceID, dec("100.00"))
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CountItemsInBalance(t, db, balanceID))
}

func TestStartClear_RejectsWrongStatus(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("10.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	_, err = svc.StartClear(ctx, balanceID, dec("100.00"))
	require.NoError(t, err)

	_, err = svc.StartClear(ctx, balanceID, dec("100.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatusForStartClear)
}

func TestRecordItem_BlockedWhileClearInProgress(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("10.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	_, err = svc.StartClear(ctx, balanceID, dec("100.00"))
	require.NoError(t, err)

	inProgress, err := svc.IsClearInProgress(ctx, tll.ID)
	require.NoError(t, err)
	assert.True(t, inProgress)

	// The frozen balance is no longer open for new items, and a fresh one
	// cannot start until the count finishes.
	_, err = svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("5.00"),
		Post:   true,
	})
	assert.ErrorIs(t, err, domain.ErrClearInProgress)
}

func TestClear_CompletesStartedClearAndDeposits(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("50.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	// Clear before start-clear is out of order.
	_, err = svc.Clear(ctx, balanceID, account.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusForClear)

	_, err = svc.StartClear(ctx, balanceID, dec("100.00"))
	require.NoError(t, err)

	balance, err := svc.Clear(ctx, balanceID, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BalanceStatusCleared, balance.Status)
	assert.NotNil(t, balance.EndTime)
	require.NotNil(t, balance.DepositID)

	deposit := testutil.GetDeposit(t, db, *balance.DepositID)
	assert.Equal(t, domain.DepositStatusUndeposited, deposit.Status)
	assert.True(t, deposit.Amount.Equal(dec("50.00")), "deposit amount = %s", deposit.Amount)

	// The cleared balance is immutable.
	_, err = svc.UpdateBalance(ctx, balanceID)
	assert.ErrorIs(t, err, domain.ErrClearedTill)

	// And the till is free for a new period.
	_, err = svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("10.00"),
		Post:   true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, balanceID, testutil.GetOpenBalanceID(t, db, tll.ID))
}

func TestClearDirect_SingleStepClear(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("50.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	// Shortfall: declared 90 against recorded 100 produces a 10 debit.
	balance, err := svc.ClearDirect(ctx, balanceID, dec("90.00"), account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BalanceStatusCleared, balance.Status)
	assert.True(t, balance.Amount.Equal(dec("40.00")), "amount = %s", balance.Amount)
	require.NotNil(t, balance.DepositID)

	var credit bool
	err = db.QueryRow(
		`SELECT credit FROM balance_items WHERE balance_id = $1 AND kind = 'adjustment'`,
		balanceID,
	).Scan(&credit)
	require.NoError(t, err)
	assert.False(t, credit)

	deposit := testutil.GetDeposit(t, db, *balance.DepositID)
	assert.True(t, deposit.Amount.Equal(dec("40.00")), "deposit amount = %s", deposit.Amount)
}

func TestClear_AggregatesBalancesIntoOneDeposit(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tillA := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))
	tillB := testutil.SeedTill(t, db, "Pharmacy", dec("50.00"))
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tillA.ID, Kind: domain.ItemKindPayment, Amount: dec("50.00"), Post: true,
	})
	require.NoError(t, err)
	_, err = svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tillB.ID, Kind: domain.ItemKindPayment, Amount: dec("30.00"), Post: true,
	})
	require.NoError(t, err)

	balA, err := svc.ClearDirect(ctx, testutil.GetOpenBalanceID(t, db, tillA.ID), dec("100.00"), account.ID)
	require.NoError(t, err)
	balB, err := svc.ClearDirect(ctx, testutil.GetOpenBalanceID(t, db, tillB.ID), dec("50.00"), account.ID)
	require.NoError(t, err)

	require.NotNil(t, balA.DepositID)
	require.NotNil(t, balB.DepositID)
	assert.Equal(t, *balA.DepositID, *balB.DepositID)

	deposit := testutil.GetDeposit(t, db, *balA.DepositID)
	assert.True(t, deposit.Amount.Equal(dec("80.00")), "deposit amount = %s", deposit.Amount)
}

func TestTransfer_MovesItemBetweenTills(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tillA := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))
	tillB := testutil.SeedTill(t, db, "Pharmacy", dec("50.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tillA.ID, Kind: domain.ItemKindPayment, Amount: dec("40.00"), Post: true,
	})
	require.NoError(t, err)
	item, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tillA.ID, Kind: domain.ItemKindPayment, Amount: dec("15.00"), Post: true,
	})
	require.NoError(t, err)

	sourceID := testutil.GetOpenBalanceID(t, db, tillA.ID)

	err = svc.Transfer(ctx, sourceID, item.ID, tillB.ID)
	require.NoError(t, err)

	source := testutil.GetBalance(t, db, sourceID)
	assert.True(t, source.Amount.Equal(dec("40.00")), "source amount = %s", source.Amount)
	assert.Equal(t, 1, testutil.CountItemsInBalance(t, db, sourceID))

	destID := testutil.GetOpenBalanceID(t, db, tillB.ID)
	dest := testutil.GetBalance(t, db, destID)
	assert.True(t, dest.Amount.Equal(dec("15.00")), "dest amount = %s", dest.Amount)

	moved := testutil.GetItem(t, db, item.ID)
	require.NotNil(t, moved.TillID)
	require.NotNil(t, moved.BalanceID)
	assert.Equal(t, tillB.ID, *moved.TillID)
	assert.Equal(t, destID, *moved.BalanceID)
}

func TestTransfer_Rejections(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tillA := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))
	tillB := testutil.SeedTill(t, db, "Pharmacy", dec("50.00"))
	account := testutil.SeedBankAccount(t, db, "Main Operating")

	item, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tillA.ID, Kind: domain.ItemKindPayment, Amount: dec("15.00"), Post: true,
	})
	require.NoError(t, err)
	sourceID := testutil.GetOpenBalanceID(t, db, tillA.ID)

	// Same till as the item already belongs to.
	err = svc.Transfer(ctx, sourceID, item.ID, tillA.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransferTill)

	// Unknown destination.
	err = svc.Transfer(ctx, sourceID, item.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrTillNotFound)

	// Adjustments stay where they were made.
	adj, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tillA.ID, Kind: domain.ItemKindAdjustment, Amount: dec("5.00"), Credit: true,
	})
	require.NoError(t, err)
	err = svc.Transfer(ctx, sourceID, adj.ID, tillB.ID)
	assert.ErrorIs(t, err, domain.ErrCantAddToTill)

	// Nothing moves out of a cleared balance.
	_, err = svc.ClearDirect(ctx, sourceID, dec("100.00"), account.ID)
	require.NoError(t, err)
	err = svc.Transfer(ctx, sourceID, item.ID, tillB.ID)
	assert.ErrorIs(t, err, domain.ErrClearedTill)
}

func TestAdjustment_RecountedInPlace(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	adj, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindAdjustment,
		Amount: dec("12.00"),
		Credit: true,
	})
	require.NoError(t, err)
	// Adjustments post immediately.
	assert.Equal(t, domain.ItemStatusPosted, adj.Status)

	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)
	balance := testutil.GetBalance(t, db, balanceID)
	assert.True(t, balance.Amount.Equal(dec("12.00")), "amount = %s", balance.Amount)

	// Flip the adjustment and recompute: the item stays linked to the same
	// balance and the total follows.
	_, err = db.Exec(`UPDATE balance_items SET credit = FALSE WHERE id = $1`, adj.ID)
	require.NoError(t, err)

	changed, err := svc.UpdateBalance(ctx, balanceID)
	require.NoError(t, err)
	assert.True(t, changed)

	balance = testutil.GetBalance(t, db, balanceID)
	assert.True(t, balance.Amount.Equal(dec("-12.00")), "amount = %s", balance.Amount)
	assert.Equal(t, 1, testutil.CountItemsInBalance(t, db, balanceID))
}

func TestGetOpenBalance_ReturnsItems(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID, Kind: domain.ItemKindPayment, Amount: dec("10.00"), Post: true,
	})
	require.NoError(t, err)
	_, err = svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID, Kind: domain.ItemKindRefund, Amount: dec("4.00"), Post: true,
	})
	require.NoError(t, err)

	balance, items, err := svc.GetOpenBalance(ctx, tll.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, balance.Amount.Equal(dec("6.00")), "amount = %s", balance.Amount)

	_, _, err = svc.GetOpenBalance(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStartClear_ConcurrentWithRecordItem(t *testing.T) {
	svc, db := setupTillService(t)
	ctx := context.Background()
	tll := testutil.SeedTill(t, db, "Front Desk", dec("100.00"))

	_, err := svc.RecordItem(ctx, till.RecordItemRequest{
		TillID: tll.ID,
		Kind:   domain.ItemKindPayment,
		Amount: dec("10.00"),
		Post:   true,
	})
	require.NoError(t, err)
	balanceID := testutil.GetOpenBalanceID(t, db, tll.ID)

	// Hammer the till with new items while a clear starts on it. Every
	// record must either land in the balance before the freeze or be
	// refused with ErrClearInProgress; a lock-order inversion would abort
	// one side with a driver-level deadlock error instead.
	const workers = 16
	var wg sync.WaitGroup
	recordErrs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordItem(ctx, till.RecordItemRequest{
				TillID: tll.ID,
				Kind:   domain.ItemKindPayment,
				Amount: dec("10.00"),
				Post:   true,
			})
			recordErrs <- err
		}()
	}

	_, clearErr := svc.StartClear(ctx, balanceID, dec("100.00"))
	wg.Wait()
	close(recordErrs)

	require.NoError(t, clearErr)

	landed := 1
	for err := range recordErrs {
		if err == nil {
			landed++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrClearInProgress)
	}

	balance := testutil.GetBalance(t, db, balanceID)
	assert.Equal(t, domain.BalanceStatusInProgress, balance.Status)
	assert.Equal(t, landed, testutil.CountItemsInBalance(t, db, balanceID))

	want := dec("10.00").Mul(decimal.NewFromInt(int64(landed)))
	assert.True(t, balance.Amount.Equal(want), "amount = %s, want %s", balance.Amount, want)
}
