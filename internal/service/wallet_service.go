package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/userclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultStoreTimeout = 2 * time.Second
	defaultHistoryLimit = 50
)

// Options tunes a WalletService. Zero values pick defaults; a nil Cache
// disables caching and a nil Users skips email resolution.
type Options struct {
	StoreTimeout  time.Duration
	LookupRetries int
	HistoryLimit  int
	Cache         repo.WalletCache
	Users         userclient.Provider
}

// WalletService orchestrates wallet lookups and transfers over a Store.
// It holds no balances itself.
type WalletService struct {
	store        repo.Store
	cache        repo.WalletCache
	users        userclient.Provider
	log          *zap.SugaredLogger
	timeout      time.Duration
	retries      int
	historyLimit int
	creating     singleflight.Group

	// cacheGen counts invalidations; a snapshot read before the latest
	// one must not be written back.
	cacheMu  sync.Mutex
	cacheGen uint64
}

// NewWalletService returns WalletService.
func NewWalletService(store repo.Store, logger *zap.SugaredLogger, opts Options) *WalletService {
	s := &WalletService{
		store:        store,
		cache:        opts.Cache,
		users:        opts.Users,
		log:          logger,
		timeout:      opts.StoreTimeout,
		retries:      opts.LookupRetries,
		historyLimit: opts.HistoryLimit,
	}
	if s.cache == nil {
		s.cache = repo.NopCache{}
	}
	if s.timeout <= 0 {
		s.timeout = defaultStoreTimeout
	}
	if s.retries < 0 {
		s.retries = 0
	}
	if s.historyLimit <= 0 {
		s.historyLimit = defaultHistoryLimit
	}
	return s
}

// bounded runs one store call under the store timeout.
func (s *WalletService) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// lookup runs a read-only store call, retrying transient storage failures.
func (s *WalletService) lookup(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(20*time.Millisecond),
			backoff.WithMaxInterval(200*time.Millisecond),
		), uint64(s.retries)),
		ctx,
	)
	err := backoff.Retry(func() error {
		if attempt > 0 {
			storeRetries.WithLabelValues(op).Inc()
		}
		attempt++
		err := s.bounded(ctx, fn)
		if err != nil && !isUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	// Retry reports the caller's own cancellation bare
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !isUnavailable(err) {
			return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
	}
	return err
}

func (s *WalletService) findWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	var w *model.Wallet
	err := s.lookup(ctx, "find_wallet", func(ctx context.Context) error {
		var err error
		w, err = s.store.FindByUser(ctx, userID)
		return err
	})
	return w, err
}

// GetOrCreate returns userID's wallet, creating an empty Active one on
// first access. Concurrent first requests for one user share a single
// store round trip.
func (s *WalletService) GetOrCreate(ctx context.Context, userID int64) (*model.Wallet, error) {
	if w, err := s.cache.Get(ctx, userID); err == nil {
		return w, nil
	} else if !errors.Is(err, repo.ErrCacheMiss) {
		s.log.Warnw("wallet cache read failed", "user_id", userID, "error", err)
	}

	gen := s.generation()
	v, err, _ := s.creating.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		w, err := s.findWallet(ctx, userID)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, model.ErrWalletNotFound) {
			return nil, err
		}
		err = s.bounded(ctx, func(ctx context.Context) error {
			var cerr error
			w, cerr = s.store.Create(ctx, userID, decimal.Zero)
			return cerr
		})
		if errors.Is(err, model.ErrStorageConflict) {
			// lost the race to another process
			return s.findWallet(ctx, userID)
		}
		if err != nil {
			return nil, err
		}
		s.log.Infow("wallet created", "user_id", userID, "norek", w.Norek)
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	w := v.(*model.Wallet).Snapshot()
	s.fill(ctx, w, gen)
	return w, nil
}

func (s *WalletService) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// fill caches w unless an invalidation ran after gen was taken.
func (s *WalletService) fill(ctx context.Context, w *model.Wallet, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen != gen {
		return
	}
	if err := s.cache.Set(ctx, w); err != nil {
		s.log.Warnw("wallet cache write failed", "user_id", w.UserID, "error", err)
	}
}

// activeWallet loads a wallet that may take part in a balance change.
func (s *WalletService) activeWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	w, err := s.findWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !w.IsActive() {
		return nil, model.ErrWalletInactive
	}
	return w, nil
}

// Transfer moves amount from fromID's wallet to toID's wallet and returns
// the sender's wallet as it stands after the move. Every attempt past
// amount validation leaves a Transfer audit record.
func (s *WalletService) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (*model.Wallet, error) {
	if !amount.IsPositive() {
		transfersTotal.WithLabelValues("invalid_amount").Inc()
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidAmount, amount.String())
	}
	start := time.Now()
	xfer := model.NewTransfer(fromID, toID, amount)
	log := s.log.With("reference", xfer.Reference, "from", fromID, "to", toID, "amount", amount.String())

	w, err := s.transfer(ctx, xfer)
	transfersTotal.WithLabelValues(outcome(err)).Inc()
	transferLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		xfer.MarkFailed(err.Error())
		if serr := s.bounded(context.WithoutCancel(ctx), func(ctx context.Context) error {
			return s.store.SaveTransfer(ctx, xfer)
		}); serr != nil {
			log.Errorw("record failed transfer", "error", serr)
		}
		log.Warnw("transfer failed", "error", err)
		return nil, err
	}
	log.Infow("transfer completed", "balance", w.Balance.String())
	return w, nil
}

func (s *WalletService) transfer(ctx context.Context, xfer *model.Transfer) (*model.Wallet, error) {
	if xfer.DebitUserID == xfer.CreditUserID {
		return nil, model.ErrSelfTransfer
	}
	sender, err := s.activeWallet(ctx, xfer.DebitUserID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	xfer.AccountDebit = sender.Norek

	// advisory; the store's conditional update decides
	probe := sender.Snapshot()
	if err := probe.Debit(xfer.Amount); err != nil {
		return nil, err
	}

	receiver, err := s.activeWallet(ctx, xfer.CreditUserID)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	xfer.AccountCredit = receiver.Norek
	xfer.UserEmail = s.email(ctx, xfer.DebitUserID)

	var senderBal decimal.Decimal
	err = s.bounded(ctx, func(ctx context.Context) error {
		var terr error
		senderBal, _, terr = s.store.Transfer(ctx, xfer)
		return terr
	})
	s.invalidate(ctx, xfer.DebitUserID, xfer.CreditUserID)
	if err != nil {
		return nil, err
	}

	out := sender.Snapshot()
	out.Balance = senderBal
	out.Touch()
	return out, nil
}

// email resolves the account holder's address. Failures are logged and
// leave it empty.
func (s *WalletService) email(ctx context.Context, userID int64) string {
	if s.users == nil {
		return ""
	}
	u, err := s.users.FindUser(ctx, userID)
	if err != nil {
		s.log.Warnw("user lookup failed", "user_id", userID, "error", err)
		return ""
	}
	return u.Email
}

// UpdateBalance debits amount from userID's wallet outside of a transfer.
func (s *WalletService) UpdateBalance(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Wallet, error) {
	return s.adjust(ctx, userID, amount, (*model.Wallet).Debit, amount.Neg())
}

// Credit adds amount to userID's wallet outside of a transfer.
func (s *WalletService) Credit(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Wallet, error) {
	return s.adjust(ctx, userID, amount, (*model.Wallet).Credit, amount)
}

func (s *WalletService) adjust(ctx context.Context, userID int64, amount decimal.Decimal,
	apply func(*model.Wallet, decimal.Decimal) error, delta decimal.Decimal) (*model.Wallet, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidAmount, amount.String())
	}
	w, err := s.activeWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := w.Snapshot()
	if err := apply(snap, amount); err != nil {
		return nil, err
	}
	err = s.bounded(ctx, func(ctx context.Context) error {
		return s.store.AdjustBalance(ctx, userID, delta)
	})
	s.invalidate(ctx, userID)
	if err != nil {
		s.log.Warnw("balance adjustment failed", "user_id", userID, "delta", delta.String(), "error", err)
		return nil, err
	}
	s.log.Infow("balance adjusted", "user_id", userID, "delta", delta.String())
	return snap, nil
}

// Delete deactivates userID's wallet. The row and its balance are kept.
func (s *WalletService) Delete(ctx context.Context, userID int64) error {
	if _, err := s.findWallet(ctx, userID); err != nil {
		return err
	}
	err := s.bounded(ctx, func(ctx context.Context) error {
		return s.store.SetStatus(ctx, userID, model.WalletNonActive)
	})
	s.invalidate(ctx, userID)
	if err != nil {
		return err
	}
	s.log.Infow("wallet deactivated", "user_id", userID)
	return nil
}

// Receipt returns the receipt of a recorded transfer.
func (s *WalletService) Receipt(ctx context.Context, reference string) (*model.Receipt, error) {
	var t *model.Transfer
	err := s.lookup(ctx, "find_transfer", func(ctx context.Context) error {
		var err error
		t, err = s.store.FindTransfer(ctx, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return model.NewReceipt(t), nil
}

// History lists transfers touching userID, newest first. limit is capped
// at the configured history limit.
func (s *WalletService) History(ctx context.Context, userID int64, limit int, since time.Time) ([]model.Transfer, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	var out []model.Transfer
	err := s.lookup(ctx, "list_transfers", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListTransfers(ctx, userID, limit, since)
		return err
	})
	return out, err
}

func (s *WalletService) invalidate(ctx context.Context, userIDs ...int64) {
	s.cacheMu.Lock()
	s.cacheGen++
	s.cacheMu.Unlock()
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), userIDs...); err != nil {
		s.log.Warnw("wallet cache invalidation failed", "user_ids", userIDs, "error", err)
	}
}

func isInsufficient(err error) bool { return errors.Is(err, model.ErrInsufficientBalance) }
func isNotFound(err error) bool     { return errors.Is(err, model.ErrWalletNotFound) }
func isInactive(err error) bool     { return errors.Is(err, model.ErrWalletInactive) }
func isUnavailable(err error) bool  { return errors.Is(err, model.ErrStorageUnavailable) }
