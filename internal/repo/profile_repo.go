// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-only accessors for the Profile
// model, which is owned by the surrounding account system.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/jmallia/go-match-backend/internal/domain"
)

// GetProfile fetches a single profile by user id, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfiles fetches the profiles for the given ids, keyed by id. Missing
// ids are simply absent from the result; callers that need strictness should
// compare lengths.
func GetProfiles(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Profile
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}
