package domain

// User is a registered account owner. PasswordHash is a bcrypt hash, never
// the plain password.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
}
