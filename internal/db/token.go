package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tongjisync/internal/tongji"
)

// TokenInfo is the persisted OAuth token pair of the Tongji open API.
// There is a single row, keyed by the API key it was granted to.
type TokenInfo struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// APIKey is the OAuth client id the token belongs to.
	APIKey string `gorm:"column:api_key;uniqueIndex;size:128;not null"`

	AccessToken  string `gorm:"size:255;not null"`
	RefreshToken string `gorm:"size:255;not null"`
	ExpiresAt    time.Time
}

// TokenStore implements tongji.TokenStore on the token_infos table.
type TokenStore struct {
	db     *gorm.DB
	apiKey string
}

func NewTokenStore(db *gorm.DB, apiKey string) *TokenStore {
	return &TokenStore{db: db, apiKey: apiKey}
}

// LoadToken returns the stored token, or the zero Token when none exists.
func (s *TokenStore) LoadToken(ctx context.Context) (tongji.Token, error) {
	var row TokenInfo
	err := s.db.WithContext(ctx).Where("api_key = ?", s.apiKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tongji.Token{}, nil
	}
	if err != nil {
		return tongji.Token{}, err
	}
	return tongji.Token{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

func (s *TokenStore) SaveToken(ctx context.Context, t tongji.Token) error {
	row := TokenInfo{
		APIKey:       s.apiKey,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "api_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(&row).Error
}
