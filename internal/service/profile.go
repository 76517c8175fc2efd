package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fueldelivery/internal/model"
)

type ProfileService struct {
	db DB
}

func NewProfileService(db DB) *ProfileService {
	return &ProfileService{db: db}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := s.db.QueryRow(ctx,
		`SELECT user_id::text, first_name, last_name, avatar_url, onboarding_seen FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.FirstName, &p.LastName, &p.AvatarURL, &p.OnboardingSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileService) Create(ctx context.Context, p model.Profile) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO profiles (user_id, first_name, last_name, avatar_url, onboarding_seen) VALUES ($1, $2, $3, $4, $5)`,
		p.UserID, p.FirstName, p.LastName, p.AvatarURL, p.OnboardingSeen,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileExists
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *ProfileService) Update(ctx context.Context, p model.Profile) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET first_name = $2, last_name = $3, avatar_url = $4, onboarding_seen = $5
		WHERE user_id = $1
	`, p.UserID, p.FirstName, p.LastName, p.AvatarURL, p.OnboardingSeen)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *ProfileService) SetAvatar(ctx context.Context, userID, url string) error {
	tag, err := s.db.Exec(ctx, `UPDATE profiles SET avatar_url = $2 WHERE user_id = $1`, userID, url)
	if err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *ProfileService) Delete(ctx context.Context, userID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
