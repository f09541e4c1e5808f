package services

import (
	"errors"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "moara/internal/errors"
	"moara/internal/models"
)

// lockForUpdate applies a FOR UPDATE row lock on engines that support it.
// The sqlite test database has a single writer, which already serializes
// row access there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// lockForClaim is lockForUpdate with SKIP LOCKED, so concurrent claimers
// pass over rows another claimer is holding instead of blocking on them.
func lockForClaim(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return tx
}

// lockAccountPair locks two account rows in id order. Always acquiring in
// the same order prevents deadlocks between transfers running in opposite
// directions over the same pair.
func lockAccountPair(tx *gorm.DB, idA, idB string) (map[string]*models.Account, error) {
	ids := []string{idA, idB}
	sort.Strings(ids)

	locked := make(map[string]*models.Account, 2)
	for _, id := range ids {
		var account models.Account
		if err := lockForUpdate(tx).Where("id = ?", id).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrAccountNotFound
			}
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		locked[id] = &account
	}
	return locked, nil
}
