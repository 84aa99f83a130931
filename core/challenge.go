package core

// Challenge daemon — rotates the process wide signing challenge used by the
// owner authenticated metadata upload flow.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewChallengeKey returns a fresh random challenge token.
func NewChallengeKey() string {
	buf := make([]byte, 64)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// RefreshChallenge rotates the singleton Challenge row every lifetime until
// the context is cancelled.
func RefreshChallenge(ctx context.Context, db *gorm.DB, lifetime time.Duration, log *logrus.Logger) error {
	log.Info("Challenge refresher started.")
	var challenge Challenge
	if err := db.First(&challenge).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		start := time.Now()
		key := NewChallengeKey()
		for key == challenge.Key {
			key = NewChallengeKey()
		}
		challenge.Key = key
		if err := db.Save(&challenge).Error; err != nil {
			return err
		}
		if elapsed := time.Since(start); elapsed < lifetime {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(lifetime - elapsed):
			}
		}
	}
}
