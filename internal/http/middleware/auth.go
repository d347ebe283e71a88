package middleware

import (
	"crypto/subtle"
	"errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// is returned when username/password don’t match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// uses bcrypt to hash a plaintext password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// compares a bcrypt hash with the plaintext.
func CheckPassword(hash, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}

// Admin is the single operator account, configured out of band.
type Admin struct {
	Username     string
	PasswordHash string
}

// Authenticate checks a login against the admin account.
func (a Admin) Authenticate(username, password string) (*model.User, error) {
	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	passOK := CheckPassword(a.PasswordHash, password)
	if !nameOK || !passOK || a.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	return &model.User{Username: a.Username}, nil
}

// retrieves *model.User from Gin context (after JWTMiddleware has run).
func GetCurrentUser(c *gin.Context) (*model.User, bool) {
	u, exists := c.Get("currentUser")
	if !exists {
		return nil, false
	}
	user, ok := u.(*model.User)
	return user, ok
}
