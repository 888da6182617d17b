package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type userRepository struct {
	st *state
}

func (r *userRepository) Get(_ context.Context, id string) (domain.User, error) {
	user, ok := r.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepository) Save(_ context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = domain.UserRoleCustomer
	}
	r.st.users[user.ID] = user
	return nil
}

func (r *userRepository) FindByNormalizedPhone(_ context.Context, phone string) ([]domain.User, error) {
	if phone == "" {
		return nil, nil
	}

	var result []domain.User
	for _, user := range r.st.users {
		if domain.NormalizePhone(user.Phone) == phone {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *userRepository) FindByEmail(_ context.Context, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, domain.ErrUserNotFound
	}

	var (
		found domain.User
		ok    bool
	)
	for _, user := range r.st.users {
		if !strings.EqualFold(user.Email, email) {
			continue
		}
		if !ok || user.CreatedAt.Before(found.CreatedAt) ||
			(user.CreatedAt.Equal(found.CreatedAt) && user.ID < found.ID) {
			found, ok = user, true
		}
	}
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return found, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
