package holdings

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"portfolio-holdings/internal/config"
	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/lock"
	"portfolio-holdings/internal/models"
)

// Sources groups the collaborators of a Materializer.
type Sources struct {
	Accounts   AccountSource
	Securities SecuritySource
	Trades     TradeSource
	Positions  PositionSource
	Holdings   HoldingStore
	Prices     PriceSources
}

// Result summarizes one account materialization.
type Result struct {
	RunID      string    `json:"run_id"`
	AccountID  uint      `json:"account_id"`
	Strategy   string    `json:"strategy"`
	Today      date.Date `json:"today"`
	Rows       int       `json:"rows"`
	Securities int       `json:"securities"`
}

// Materializer computes and persists the daily holdings of accounts.
type Materializer struct {
	src     Sources
	cfg     config.Materializer
	locker  lock.Locker
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
	workers int
}

// NewMaterializer creates a materializer. A nil locker serializes runs
// within the process only.
func NewMaterializer(src Sources, cfg config.Materializer, locker lock.Locker, logger *zap.Logger) (*Materializer, error) {
	loc := time.UTC
	if cfg.DefaultTimezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.DefaultTimezone); err != nil {
			return nil, fmt.Errorf("invalid default timezone %q: %w", cfg.DefaultTimezone, err)
		}
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Materializer{
		src:     src,
		cfg:     cfg,
		locker:  locker,
		logger:  logger.Named("materializer"),
		loc:     loc,
		now:     time.Now,
		workers: workers,
	}, nil
}

// Materialize recomputes the whole holding history of one account and
// replaces what is stored. Running it twice with the same inputs leaves the
// same rows behind.
func (m *Materializer) Materialize(ctx context.Context, accountID uint) (Result, error) {
	res := Result{RunID: uuid.NewString(), AccountID: accountID}
	l := m.logger.With(zap.String("run_id", res.RunID), zap.Uint("account_id", accountID))

	unlock, err := m.locker.TryLock(ctx, "account:"+strconv.FormatUint(uint64(accountID), 10))
	if err != nil {
		return res, fmt.Errorf("account %d: %w", accountID, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			l.Warn("Failed to release account lock", zap.Error(err))
		}
	}()

	start := time.Now()
	account, err := m.src.Accounts.Get(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	res.Today = date.In(m.now(), account.Location(m.loc))

	trades, err := m.src.Trades.Trades(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("failed to load trades of account %d: %w", accountID, err)
	}
	trades = slices.DeleteFunc(trades, func(t models.Trade) bool { return t.Date.After(res.Today) })

	positions, err := m.src.Positions.Positions(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("failed to load positions of account %d: %w", accountID, err)
	}
	snapshot := NewPortfolioSnapshot(positions, trades)

	securities, err := m.src.Securities.ByIDs(ctx, snapshot.SecurityIDs())
	if err != nil {
		return res, fmt.Errorf("failed to load securities of account %d: %w", accountID, err)
	}

	calc := m.selectCalculator(account, snapshot)
	res.Strategy = calc.Name()
	l = l.With(zap.String("strategy", res.Strategy))
	l.Debug("Calculating holdings", zap.Int("trades", len(trades)), zap.Int("positions", len(positions)))

	rows, err := calc.Calculate(ctx, Input{
		Account:    account,
		Trades:     trades,
		Securities: securities,
		Today:      res.Today,
	})
	if err != nil {
		return res, fmt.Errorf("%s calculation of account %d: %w", res.Strategy, accountID, err)
	}

	keep := computedSecurities(rows)
	if err := m.src.Holdings.Sync(ctx, accountID, rows, keep); err != nil {
		l.Error("Failed to persist holdings", zap.Error(err))
		return res, fmt.Errorf("failed to persist holdings of account %d: %w", accountID, err)
	}

	res.Rows = len(rows)
	res.Securities = len(keep)
	l.Info("Holdings materialized",
		zap.Int("rows", res.Rows),
		zap.Int("securities", res.Securities),
		zap.Stringer("today", res.Today),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// selectCalculator picks the strategy once per account: reverse when the
// custodian snapshot of this connection type is trusted and non-empty.
func (m *Materializer) selectCalculator(account models.Account, snapshot *PortfolioSnapshot) Calculator {
	named := m.logger.With(zap.Uint("account_id", account.ID))
	if m.cfg.SnapshotAuthoritative(account.ConnectionType) && snapshot.HasPositions() {
		return NewReverseCalculator(m.src.Prices, snapshot, named)
	}
	return NewForwardCalculator(m.src.Prices, named)
}

// MaterializeAll materializes accounts concurrently with at most the
// configured number of workers. A failing account does not stop the others;
// the returned error joins every failure. Results are sorted by account id.
func (m *Materializer) MaterializeAll(ctx context.Context, accountIDs []uint) ([]Result, error) {
	type outcome struct {
		res Result
		err error
	}

	sem := make(chan struct{}, m.workers)
	outcomes := make(chan outcome, len(accountIDs))
	var wg sync.WaitGroup

	for _, id := range accountIDs {
		select {
		case <-ctx.Done():
			outcomes <- outcome{res: Result{AccountID: id}, err: fmt.Errorf("account %d: %w", id, ctx.Err())}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := m.Materialize(ctx, id)
			outcomes <- outcome{res: res, err: err}
		}(id)
	}

	wg.Wait()
	close(outcomes)

	var (
		results []Result
		errs    []error
	)
	for o := range outcomes {
		if o.err != nil {
			m.logger.Error("Account materialization failed", zap.Uint("account_id", o.res.AccountID), zap.Error(o.err))
			errs = append(errs, o.err)
			continue
		}
		results = append(results, o.res)
	}
	slices.SortFunc(results, func(a, b Result) int { return cmp.Compare(a.AccountID, b.AccountID) })
	return results, errors.Join(errs...)
}

func computedSecurities(rows []models.Holding) []uint {
	ids := make([]uint, 0)
	seen := make(map[uint]struct{})
	for _, h := range rows {
		if _, ok := seen[h.SecurityID]; ok {
			continue
		}
		seen[h.SecurityID] = struct{}{}
		ids = append(ids, h.SecurityID)
	}
	slices.Sort(ids)
	return ids
}
