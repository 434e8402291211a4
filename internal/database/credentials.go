package database

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/wbhoster/wbhoster/internal/models"

	"gorm.io/gorm"
)

const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUsername produces a subscription username of the form
// iptv<6 digits>, retrying until it is unused.
func GenerateUsername(db *gorm.DB) (string, error) {
	for i := 0; i < 20; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(900000))
		if err != nil {
			return "", err
		}
		username := fmt.Sprintf("iptv%06d", n.Int64()+100000)

		var count int64
		if err := db.Model(&models.Subscription{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return username, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique username")
}

// GeneratePassword returns a random alphanumeric password.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = 10
	}
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordChars))))
		if err != nil {
			return "", err
		}
		buf[i] = passwordChars[n.Int64()]
	}
	return string(buf), nil
}
