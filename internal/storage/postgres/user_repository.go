package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const userColumns = `id, name, email, phone, role, created_at`

type userRepository struct {
	q querier
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) Save(ctx context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = domain.UserRoleCustomer
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, phone_normalized, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    phone_normalized = EXCLUDED.phone_normalized,
		    role = EXCLUDED.role
	`,
		user.ID, user.Name, user.Email, user.Phone, domain.NormalizePhone(user.Phone),
		string(user.Role), user.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *userRepository) FindByNormalizedPhone(ctx context.Context, phone string) ([]domain.User, error) {
	if phone == "" {
		return nil, nil
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE phone_normalized = $1
		ORDER BY created_at ASC, id ASC
	`, phone)
	if err != nil {
		return nil, fmt.Errorf("find users by phone: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.getOne(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, email)
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (domain.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &role, &user.CreatedAt); err != nil {
		return domain.User{}, err
	}
	user.Role = domain.UserRole(role)
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
