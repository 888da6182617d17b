package domain

import (
	"strings"
	"time"
)

// UserRole определяет права пользователя.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

// User - покупатель или администратор витрины.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      UserRole
	CreatedAt time.Time
}

// IsAdmin сообщает, есть ли у пользователя права администратора.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

const nationalNumberLen = 10

// NormalizePhone приводит телефон к 10 значащим цифрам.
// Убирает всё кроме цифр, код страны 91 или 1, при иных длинах берёт последние 10 цифр.
// Пустая строка означает, что номер нормализовать не удалось.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == nationalNumberLen+2 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == nationalNumberLen+1 && strings.HasPrefix(digits, "1"):
		digits = digits[1:]
	}

	if len(digits) < nationalNumberLen {
		return ""
	}
	return digits[len(digits)-nationalNumberLen:]
}
