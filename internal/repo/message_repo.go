// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model. Messages are append-only: there are no update or delete paths.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jmallia/go-match-backend/internal/domain"
)

// CreateMessage appends a message to a match conversation.
func CreateMessage(ctx context.Context, db *gorm.DB, matchID, senderID, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC,
// ID ASC). A limit of 0 returns everything.
func ListMessages(ctx context.Context, db *gorm.DB, matchID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// LatestMessages returns the newest n messages in chronological order.
// This is the context window read used by the reply orchestrator.
func LatestMessages(ctx context.Context, db *gorm.DB, matchID string, n int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LatestMessage returns the newest message of a match, or ErrNotFound for
// an empty conversation.
func LatestMessage(ctx context.Context, db *gorm.DB, matchID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, matchID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE match_id = ?", matchID).
		Scan(&total).Error
	return total, err
}

// GetMessage fetches a message by id.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
