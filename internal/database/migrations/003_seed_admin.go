package migrations

import (
	"os"

	"github.com/sgoodman/tradecopy-api/internal/types"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedAdminUser creates the initial admin account if no admin exists.
// Demo credentials; override via ADMIN_EMAIL / ADMIN_PASSWORD.
func SeedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.User{}).Where("role = ?", types.RoleAdmin).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@tradecopy.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin-password"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := types.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Admin",
		KycStatus:    types.KycVerified,
		Role:         types.RoleAdmin,
	}

	return db.Create(&admin).Error
}
