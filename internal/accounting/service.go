package accounting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arunika-erp/arunika-erp/internal/shared"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	YearHasApproved(ctx context.Context, year int) (bool, error)
	MissingAccounts(ctx context.Context, ids []int64) ([]int64, error)
	DeleteDraftYear(ctx context.Context, year int) (int64, error)
	InsertBalances(ctx context.Context, balances []InitialBalance) error
	ListYearForUpdate(ctx context.Context, year int, status BalanceStatus) ([]InitialBalance, error)
	ApproveYear(ctx context.Context, year int, actorID int64, at time.Time) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListYear(ctx context.Context, year int) ([]InitialBalance, error)
	ListYears(ctx context.Context) ([]YearInfo, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
}

// AccountFilter narrows chart of accounts listings.
type AccountFilter struct {
	Type       string
	CashOnly   bool
	ActiveOnly bool
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives opening balance snapshots and the accounts read side.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the accounting service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// BalanceItemInput is one account's opening amounts.
type BalanceItemInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Budget    decimal.Decimal
}

// StoreYearInput replaces a year's draft balance set.
type StoreYearInput struct {
	Year    int
	Items   []BalanceItemInput
	ActorID int64
}

// StoreYear writes the draft opening balances for a year, replacing any prior
// draft. A year that is already approved cannot be restated.
func (s *Service) StoreYear(ctx context.Context, input StoreYearInput) error {
	if input.Year < 2000 || input.Year > 2100 {
		return fmt.Errorf("%w: year out of range", ErrValidation)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: minimal 1 balance line", ErrValidation)
	}
	seen := make(map[int64]struct{}, len(input.Items))
	ids := make([]int64, 0, len(input.Items))
	balances := make([]InitialBalance, 0, len(input.Items))
	for _, item := range input.Items {
		if item.AccountID == 0 {
			return fmt.Errorf("%w: line requires an account", ErrValidation)
		}
		if item.Debit.Sign() < 0 || item.Credit.Sign() < 0 || item.Budget.Sign() < 0 {
			return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
		}
		if _, dup := seen[item.AccountID]; dup {
			return fmt.Errorf("%w: duplicate account %d", ErrValidation, item.AccountID)
		}
		seen[item.AccountID] = struct{}{}
		ids = append(ids, item.AccountID)
		balances = append(balances, InitialBalance{
			Year:      input.Year,
			AccountID: item.AccountID,
			Debit:     item.Debit,
			Credit:    item.Credit,
			Budget:    item.Budget,
			Status:    BalanceStatusDraft,
			CreatedBy: input.ActorID,
		})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		approved, err := tx.YearHasApproved(ctx, input.Year)
		if err != nil {
			return err
		}
		if approved {
			return ErrYearApproved
		}
		missing, err := tx.MissingAccounts(ctx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: unknown accounts %v", ErrValidation, missing)
		}
		if _, err := tx.DeleteDraftYear(ctx, input.Year); err != nil {
			return err
		}
		return tx.InsertBalances(ctx, balances)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, input.ActorID, "initial_balance.store", input.Year,
		map[string]any{"lines": len(balances)})
	return nil
}

// ApproveYear locks the year's draft rows, verifies total debit equals total
// credit, and marks the whole set approved.
func (s *Service) ApproveYear(ctx context.Context, year int, actorID int64) error {
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		drafts, err := tx.ListYearForUpdate(ctx, year, BalanceStatusDraft)
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			return fmt.Errorf("%w: no draft balances for year %d", ErrValidation, year)
		}
		totalDebit, totalCredit := totals(drafts)
		if !totalDebit.Equal(totalCredit) {
			return &UnbalancedError{TotalDebit: totalDebit, TotalCredit: totalCredit}
		}
		return tx.ApproveYear(ctx, year, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "initial_balance.approve", year, nil)
	return nil
}

// DeleteYear removes a year's draft balances. Approved years stay.
func (s *Service) DeleteYear(ctx context.Context, year int, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeleteDraftYear(ctx, year)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("%w: no draft balances for year %d", ErrValidation, year)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "initial_balance.delete", year, nil)
	return nil
}

// ShowYear returns every balance row of a year with both totals.
func (s *Service) ShowYear(ctx context.Context, year int) (YearSummary, error) {
	balances, err := s.repo.ListYear(ctx, year)
	if err != nil {
		return YearSummary{}, err
	}
	if len(balances) == 0 {
		return YearSummary{}, ErrNotFound
	}
	totalDebit, totalCredit := totals(balances)
	return YearSummary{
		Year:        year,
		Status:      balances[0].Status,
		Balances:    balances,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
	}, nil
}

// ListYears lists the years that carry opening balances, newest first.
func (s *Service) ListYears(ctx context.Context) ([]YearInfo, error) {
	return s.repo.ListYears(ctx)
}

// GetAccount loads one chart of accounts entry.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts lists chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	return s.repo.ListAccounts(ctx, filter)
}

func totals(balances []InitialBalance) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, bal := range balances {
		debit = debit.Add(bal.Debit)
		credit = credit.Add(bal.Credit)
	}
	return debit, credit
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, year int, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "accounting." + action,
		Entity:   "initial_balance",
		EntityID: strconv.Itoa(year),
		Meta:     meta,
	})
}
