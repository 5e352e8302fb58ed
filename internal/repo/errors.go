package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

var domainErrors = []error{
	model.ErrWalletNotFound,
	model.ErrWalletInactive,
	model.ErrInsufficientBalance,
	model.ErrTransferNotFound,
	model.ErrStorageConflict,
	model.ErrStorageUnavailable,
}

// translate maps driver and gorm errors onto the ledger taxonomy.
// notFound is returned for gorm.ErrRecordNotFound.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", model.ErrStorageConflict, err)
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return fmt.Errorf("%w: %v", model.ErrInsufficientBalance, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", model.ErrStorageConflict, pgErr.Message)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", model.ErrInsufficientBalance, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
}
