package memory

import (
	"context"
	"strings"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/repositories"
)

// UserRepository is the in-memory UserRepository.
type UserRepository struct {
	store *Store
}

func (r *UserRepository) Insert(_ context.Context, user domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.users[user.ID]; exists {
		return repositories.NewConflictError("users.insert", "user")
	}
	for _, existing := range r.store.users {
		if strings.EqualFold(existing.Email, user.Email) || (user.PhoneNumber != "" && existing.PhoneNumber == user.PhoneNumber) {
			return repositories.NewConflictError("users.insert", "user")
		}
	}
	r.store.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, userID string) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	u, ok := r.store.users[userID]
	if !ok || u.IsDeleted {
		return domain.User{}, repositories.NewNotFoundError("users.get", "user")
	}
	return cloneUser(u), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, u := range r.store.users {
		if !u.IsDeleted && strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, repositories.NewNotFoundError("users.find_by_email", "user")
}

// FindByLogin looks a user up by email, or by phone number when email is empty.
func (r *UserRepository) FindByLogin(ctx context.Context, email string, phoneNumber string) (domain.User, error) {
	if email != "" {
		return r.FindByEmail(ctx, email)
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, u := range r.store.users {
		if !u.IsDeleted && phoneNumber != "" && u.PhoneNumber == phoneNumber {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, repositories.NewNotFoundError("users.find_by_login", "user")
}

func (r *UserRepository) EmailTaken(_ context.Context, email string, excludeUserID string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for id, u := range r.store.users {
		if id != excludeUserID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) PhoneTaken(_ context.Context, phoneNumber string, excludeUserID string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for id, u := range r.store.users {
		if id != excludeUserID && u.PhoneNumber == phoneNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) UpdateProfile(_ context.Context, user domain.User) error {
	return r.mutate("users.update_profile", user.ID, func(u *domain.User) error {
		u.Name = user.Name
		u.Gender = user.Gender
		u.Email = user.Email
		u.UpdatedAt = user.UpdatedAt
		return nil
	})
}

func (r *UserRepository) SetCredentialToken(_ context.Context, userID string, token string, updatedAt time.Time) error {
	return r.mutate("users.set_token", userID, func(u *domain.User) error {
		u.CredentialToken = token
		u.UpdatedAt = updatedAt
		return nil
	})
}

// PushAddress appends an address to the user.
func (r *UserRepository) PushAddress(_ context.Context, userID string, address domain.Address) error {
	return r.mutate("users.push_address", userID, func(u *domain.User) error {
		u.Addresses = append(u.Addresses, address)
		return nil
	})
}

// SetAddress replaces the embedded address with the same id.
func (r *UserRepository) SetAddress(_ context.Context, userID string, address domain.Address) error {
	return r.mutate("users.set_address", userID, func(u *domain.User) error {
		for i := range u.Addresses {
			if u.Addresses[i].ID == address.ID {
				u.Addresses[i] = address
				return nil
			}
		}
		return repositories.NewNotFoundError("users.set_address", "address")
	})
}

// SoftDeleteAddress flags an embedded address as deleted.
func (r *UserRepository) SoftDeleteAddress(_ context.Context, userID string, addressID string, deletedAt time.Time) error {
	return r.mutate("users.delete_address", userID, func(u *domain.User) error {
		for i := range u.Addresses {
			if u.Addresses[i].ID == addressID {
				u.Addresses[i].IsDeleted = true
				u.Addresses[i].UpdatedAt = deletedAt
				return nil
			}
		}
		return repositories.NewNotFoundError("users.delete_address", "address")
	})
}

// PushOrder appends an order reference to the user.
func (r *UserRepository) PushOrder(_ context.Context, userID string, orderID string, updatedAt time.Time) error {
	return r.mutate("users.push_order", userID, func(u *domain.User) error {
		u.Orders = append(u.Orders, orderID)
		u.UpdatedAt = updatedAt
		return nil
	})
}

func (r *UserRepository) mutate(op, userID string, fn func(*domain.User) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[userID]
	if !ok || u.IsDeleted {
		return repositories.NewNotFoundError(op, "user")
	}
	u = cloneUser(u)
	if err := fn(&u); err != nil {
		return err
	}
	r.store.users[userID] = u
	return nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)
