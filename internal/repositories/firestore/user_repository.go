package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/gemvault/api/internal/domain"
	pfirestore "github.com/gemvault/api/internal/platform/firestore"
	"github.com/gemvault/api/internal/repositories"
)

const userCollection = "users"

type userDocument struct {
	Name            string            `firestore:"name"`
	Email           string            `firestore:"email"`
	PhoneNumber     string            `firestore:"phoneNumber"`
	PasswordHash    string            `firestore:"passwordHash"`
	Gender          string            `firestore:"gender"`
	Addresses       []addressDocument `firestore:"addresses"`
	Orders          []string          `firestore:"orders"`
	CredentialToken string            `firestore:"credentialToken"`
	IsDeleted       bool              `firestore:"isDeleted"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

type addressDocument struct {
	ID        string    `firestore:"id"`
	Address   string    `firestore:"address"`
	City      string    `firestore:"city"`
	State     string    `firestore:"state"`
	Country   string    `firestore:"country"`
	Pincode   string    `firestore:"pincode"`
	IsDeleted bool      `firestore:"isDeleted"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// UserRepository stores users with their addresses embedded and orders referenced by id.
// Emails are stored lower-cased so equality queries are case-insensitive.
type UserRepository struct {
	provider *pfirestore.Provider
	coll     *pfirestore.Collection[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		coll:     pfirestore.NewCollection[userDocument](provider, userCollection),
	}, nil
}

// Insert checks email and phone uniqueness inside the same transaction as the create.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	coll, err := r.coll.Ref(ctx)
	if err != nil {
		return err
	}
	doc := fromDomainUser(user)
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		clashes, err := pfirestore.DecodeAll[userDocument](tx.Documents(coll.Where("email", "==", doc.Email).Limit(1)))
		if err != nil {
			return err
		}
		if len(clashes) == 0 && doc.PhoneNumber != "" {
			clashes, err = pfirestore.DecodeAll[userDocument](tx.Documents(coll.Where("phoneNumber", "==", doc.PhoneNumber).Limit(1)))
			if err != nil {
				return err
			}
		}
		if len(clashes) > 0 {
			return repositories.NewConflictError(r.coll.Op("insert"), "user")
		}
		return tx.Create(coll.Doc(user.ID), doc)
	})
	return pfirestore.WrapError(r.coll.Op("insert"), err)
}

// FindByID loads an active user.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.coll.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if doc.Data.IsDeleted {
		return domain.User{}, repositories.NewNotFoundError(r.coll.Op("get"), "user")
	}
	return toDomainUser(doc), nil
}

// FindByEmail loads an active user by case-insensitive email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findActive(ctx, "email", normalizeEmail(email))
}

// FindByLogin looks a user up by email, or by phone number when email is empty.
func (r *UserRepository) FindByLogin(ctx context.Context, email string, phoneNumber string) (domain.User, error) {
	if email != "" {
		return r.FindByEmail(ctx, email)
	}
	if phoneNumber == "" {
		return domain.User{}, repositories.NewNotFoundError(r.coll.Op("find_by_login"), "user")
	}
	return r.findActive(ctx, "phoneNumber", phoneNumber)
}

func (r *UserRepository) findActive(ctx context.Context, field, value string) (domain.User, error) {
	doc, err := r.coll.First(ctx, "user", func(q firestore.Query) firestore.Query {
		return activeOnly(q).Where(field, "==", value)
	})
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

// EmailTaken reports whether another user than excludeUserID holds the email.
func (r *UserRepository) EmailTaken(ctx context.Context, email string, excludeUserID string) (bool, error) {
	return r.taken(ctx, "email", normalizeEmail(email), excludeUserID)
}

// PhoneTaken reports whether another user than excludeUserID holds the phone number.
func (r *UserRepository) PhoneTaken(ctx context.Context, phoneNumber string, excludeUserID string) (bool, error) {
	return r.taken(ctx, "phoneNumber", phoneNumber, excludeUserID)
}

func (r *UserRepository) taken(ctx context.Context, field, value, excludeUserID string) (bool, error) {
	docs, err := r.coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(2)
	})
	if err != nil {
		return false, err
	}
	for _, doc := range docs {
		if doc.ID != excludeUserID {
			return true, nil
		}
	}
	return false, nil
}

// UpdateProfile writes the name, gender and email of user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user domain.User) error {
	return r.mutate(ctx, user.ID, func(u *userDocument) error {
		u.Name = user.Name
		u.Gender = user.Gender
		u.Email = normalizeEmail(user.Email)
		u.UpdatedAt = user.UpdatedAt
		return nil
	})
}

// SetCredentialToken records the token issued at login, or clears it when empty.
func (r *UserRepository) SetCredentialToken(ctx context.Context, userID string, token string, updatedAt time.Time) error {
	return r.mutate(ctx, userID, func(u *userDocument) error {
		u.CredentialToken = token
		u.UpdatedAt = updatedAt
		return nil
	})
}

// PushAddress appends an address inside a transaction on the user document.
func (r *UserRepository) PushAddress(ctx context.Context, userID string, address domain.Address) error {
	return r.mutate(ctx, userID, func(u *userDocument) error {
		u.Addresses = append(u.Addresses, fromDomainAddress(address))
		return nil
	})
}

// SetAddress replaces the embedded address with the same id.
func (r *UserRepository) SetAddress(ctx context.Context, userID string, address domain.Address) error {
	replacement := fromDomainAddress(address)
	return r.mutate(ctx, userID, func(u *userDocument) error {
		for i := range u.Addresses {
			if u.Addresses[i].ID == address.ID {
				u.Addresses[i] = replacement
				return nil
			}
		}
		return repositories.NewNotFoundError(r.coll.Op("set_address"), "address")
	})
}

// SoftDeleteAddress flags an embedded address as deleted.
func (r *UserRepository) SoftDeleteAddress(ctx context.Context, userID string, addressID string, deletedAt time.Time) error {
	return r.mutate(ctx, userID, func(u *userDocument) error {
		for i := range u.Addresses {
			if u.Addresses[i].ID == addressID {
				u.Addresses[i].IsDeleted = true
				u.Addresses[i].UpdatedAt = deletedAt
				return nil
			}
		}
		return repositories.NewNotFoundError(r.coll.Op("delete_address"), "address")
	})
}

// PushOrder appends an order reference to the user.
func (r *UserRepository) PushOrder(ctx context.Context, userID string, orderID string, updatedAt time.Time) error {
	return r.mutate(ctx, userID, func(u *userDocument) error {
		u.Orders = append(u.Orders, orderID)
		u.UpdatedAt = updatedAt
		return nil
	})
}

func (r *UserRepository) mutate(ctx context.Context, userID string, fn func(*userDocument) error) error {
	_, err := r.coll.Mutate(ctx, userID, func(u *userDocument) error {
		if u.IsDeleted {
			return repositories.NewNotFoundError(r.coll.Op("mutate"), "user")
		}
		return fn(u)
	})
	return err
}

func toDomainUser(doc pfirestore.Document[userDocument]) domain.User {
	u := domain.User{
		ID:              doc.ID,
		Name:            doc.Data.Name,
		Email:           doc.Data.Email,
		PhoneNumber:     doc.Data.PhoneNumber,
		PasswordHash:    doc.Data.PasswordHash,
		Gender:          doc.Data.Gender,
		Orders:          append([]string(nil), doc.Data.Orders...),
		CredentialToken: doc.Data.CredentialToken,
		IsDeleted:       doc.Data.IsDeleted,
		CreatedAt:       doc.Data.CreatedAt,
		UpdatedAt:       doc.Data.UpdatedAt,
	}
	for _, a := range doc.Data.Addresses {
		u.Addresses = append(u.Addresses, domain.Address{
			ID:        a.ID,
			Address:   a.Address,
			City:      a.City,
			State:     a.State,
			Country:   a.Country,
			Pincode:   a.Pincode,
			IsDeleted: a.IsDeleted,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		})
	}
	return u
}

func fromDomainUser(u domain.User) userDocument {
	doc := userDocument{
		Name:            u.Name,
		Email:           normalizeEmail(u.Email),
		PhoneNumber:     u.PhoneNumber,
		PasswordHash:    u.PasswordHash,
		Gender:          u.Gender,
		Addresses:       make([]addressDocument, 0, len(u.Addresses)),
		Orders:          append([]string{}, u.Orders...),
		CredentialToken: u.CredentialToken,
		IsDeleted:       u.IsDeleted,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
	for _, a := range u.Addresses {
		doc.Addresses = append(doc.Addresses, fromDomainAddress(a))
	}
	return doc
}

func fromDomainAddress(a domain.Address) addressDocument {
	return addressDocument{
		ID:        a.ID,
		Address:   a.Address,
		City:      a.City,
		State:     a.State,
		Country:   a.Country,
		Pincode:   a.Pincode,
		IsDeleted: a.IsDeleted,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
