package services

import "golang.org/x/crypto/bcrypt"

// bcrypt ignores input past this length, so longer passwords are rejected.
const maxPasswordBytes = 72

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
