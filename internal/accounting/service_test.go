package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	accounts map[int64]Account
	balances []InitialBalance
	nextID   int64
}

func newMemoryRepo(accountIDs ...int64) *memoryRepo {
	repo := &memoryRepo{accounts: map[int64]Account{}}
	for _, id := range accountIDs {
		repo.accounts[id] = Account{ID: id, IsActive: true}
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) YearHasApproved(ctx context.Context, year int) (bool, error) {
	for _, bal := range r.balances {
		if bal.Year == year && bal.Status == BalanceStatusApproved {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) MissingAccounts(ctx context.Context, ids []int64) ([]int64, error) {
	missing := []int64{}
	for _, id := range ids {
		if _, ok := r.accounts[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *memoryRepo) DeleteDraftYear(ctx context.Context, year int) (int64, error) {
	kept := r.balances[:0]
	var deleted int64
	for _, bal := range r.balances {
		if bal.Year == year && bal.Status == BalanceStatusDraft {
			deleted++
			continue
		}
		kept = append(kept, bal)
	}
	r.balances = kept
	return deleted, nil
}

func (r *memoryRepo) InsertBalances(ctx context.Context, balances []InitialBalance) error {
	for _, bal := range balances {
		r.nextID++
		bal.ID = r.nextID
		r.balances = append(r.balances, bal)
	}
	return nil
}

func (r *memoryRepo) ListYearForUpdate(ctx context.Context, year int, status BalanceStatus) ([]InitialBalance, error) {
	var out []InitialBalance
	for _, bal := range r.balances {
		if bal.Year == year && bal.Status == status {
			out = append(out, bal)
		}
	}
	return out, nil
}

func (r *memoryRepo) ApproveYear(ctx context.Context, year int, actorID int64, at time.Time) error {
	for i := range r.balances {
		if r.balances[i].Year == year && r.balances[i].Status == BalanceStatusDraft {
			r.balances[i].Status = BalanceStatusApproved
			r.balances[i].ApprovedBy = actorID
			r.balances[i].ApprovedAt = at
		}
	}
	return nil
}

func (r *memoryRepo) ListYear(ctx context.Context, year int) ([]InitialBalance, error) {
	var out []InitialBalance
	for _, bal := range r.balances {
		if bal.Year == year {
			out = append(out, bal)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListYears(ctx context.Context) ([]YearInfo, error) {
	seen := map[int]BalanceStatus{}
	for _, bal := range r.balances {
		seen[bal.Year] = bal.Status
	}
	var out []YearInfo
	for year, status := range seen {
		out = append(out, YearInfo{Year: year, Status: status})
	}
	return out, nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acc, nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	var out []Account
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	return out, nil
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func storeInput(year int, items ...BalanceItemInput) StoreYearInput {
	return StoreYearInput{Year: year, Items: items, ActorID: 7}
}

func TestStoreYearReplacesDraft(t *testing.T) {
	repo := newMemoryRepo(1, 2)
	svc := NewService(repo, nil)

	err := svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("1000"), Credit: dec("0")},
		BalanceItemInput{AccountID: 2, Debit: dec("0"), Credit: dec("500")},
	))
	require.NoError(t, err)

	err = svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("800"), Credit: dec("0")},
		BalanceItemInput{AccountID: 2, Debit: dec("0"), Credit: dec("800")},
	))
	require.NoError(t, err)

	summary, err := svc.ShowYear(context.Background(), 2026)
	require.NoError(t, err)
	require.Len(t, summary.Balances, 2)
	require.True(t, summary.TotalDebit.Equal(dec("800")))
	require.True(t, summary.TotalCredit.Equal(dec("800")))
	require.Equal(t, BalanceStatusDraft, summary.Status)
}

func TestStoreYearValidation(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo, nil)

	err := svc.StoreYear(context.Background(), storeInput(1999,
		BalanceItemInput{AccountID: 1, Debit: dec("1"), Credit: dec("0")}))
	require.ErrorIs(t, err, ErrValidation)

	err = svc.StoreYear(context.Background(), storeInput(2026))
	require.ErrorIs(t, err, ErrValidation)

	err = svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("-1"), Credit: dec("0")}))
	require.ErrorIs(t, err, ErrValidation)

	err = svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("1"), Credit: dec("0")},
		BalanceItemInput{AccountID: 1, Debit: dec("2"), Credit: dec("0")}))
	require.ErrorIs(t, err, ErrValidation)

	err = svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 9, Debit: dec("1"), Credit: dec("0")}))
	require.ErrorIs(t, err, ErrValidation)
}

func TestApproveYearRequiresBalancedTotals(t *testing.T) {
	repo := newMemoryRepo(1, 2)
	svc := NewService(repo, nil)

	require.NoError(t, svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("1000"), Credit: dec("0")},
		BalanceItemInput{AccountID: 2, Debit: dec("0"), Credit: dec("700")},
	)))

	err := svc.ApproveYear(context.Background(), 2026, 7)
	ue, ok := AsUnbalanced(err)
	require.True(t, ok)
	require.True(t, ue.TotalDebit.Equal(dec("1000")))
	require.True(t, ue.TotalCredit.Equal(dec("700")))

	summary, err := svc.ShowYear(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, BalanceStatusDraft, summary.Status)

	require.NoError(t, svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("1000"), Credit: dec("0")},
		BalanceItemInput{AccountID: 2, Debit: dec("0"), Credit: dec("1000")},
	)))
	require.NoError(t, svc.ApproveYear(context.Background(), 2026, 7))

	summary, err = svc.ShowYear(context.Background(), 2026)
	require.NoError(t, err)
	require.Equal(t, BalanceStatusApproved, summary.Status)
	require.Equal(t, int64(7), summary.Balances[0].ApprovedBy)
}

func TestApprovedYearIsImmutable(t *testing.T) {
	repo := newMemoryRepo(1, 2)
	svc := NewService(repo, nil)

	require.NoError(t, svc.StoreYear(context.Background(), storeInput(2025,
		BalanceItemInput{AccountID: 1, Debit: dec("500"), Credit: dec("0")},
		BalanceItemInput{AccountID: 2, Debit: dec("0"), Credit: dec("500")},
	)))
	require.NoError(t, svc.ApproveYear(context.Background(), 2025, 7))

	err := svc.StoreYear(context.Background(), storeInput(2025,
		BalanceItemInput{AccountID: 1, Debit: dec("1"), Credit: dec("1")}))
	require.ErrorIs(t, err, ErrYearApproved)

	require.ErrorIs(t, svc.DeleteYear(context.Background(), 2025, 7), ErrValidation)
	require.ErrorIs(t, svc.ApproveYear(context.Background(), 2025, 7), ErrValidation)
}

func TestDeleteYearDraftOnly(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo, nil)

	require.ErrorIs(t, svc.DeleteYear(context.Background(), 2026, 7), ErrValidation)

	require.NoError(t, svc.StoreYear(context.Background(), storeInput(2026,
		BalanceItemInput{AccountID: 1, Debit: dec("10"), Credit: dec("10")})))
	require.NoError(t, svc.DeleteYear(context.Background(), 2026, 7))

	_, err := svc.ShowYear(context.Background(), 2026)
	require.ErrorIs(t, err, ErrNotFound)
}
