package mongo

import (
	"context"
	"strings"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/mongodb"
	"github.com/gemvault/api/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const userCollection = "users"

type userDocument struct {
	ID              primitive.ObjectID `bson:"_id"`
	Name            string             `bson:"name"`
	Email           string             `bson:"email"`
	PhoneNumber     string             `bson:"phoneNumber"`
	PasswordHash    string             `bson:"passwordHash"`
	Gender          string             `bson:"gender"`
	Addresses       []addressDocument  `bson:"addresses"`
	Orders          []string           `bson:"orders"`
	CredentialToken string             `bson:"credentialToken,omitempty"`
	IsDeleted       bool               `bson:"isDeleted"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

type addressDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Address   string             `bson:"address"`
	City      string             `bson:"city"`
	State     string             `bson:"state"`
	Country   string             `bson:"country"`
	Pincode   string             `bson:"pincode"`
	IsDeleted bool               `bson:"isDeleted"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// UserRepository stores users with embedded addresses. Unique indexes on email and phoneNumber
// turn duplicate registrations into conflicts.
type UserRepository struct {
	coll *mongo.Collection
}

// Insert stores a new user. A taken email or phone number is a conflict.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	doc, err := fromDomainUser(user)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return mongodb.WrapError("users.insert", err)
}

// FindByID loads an active user.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	oid, ok := mongodb.ObjectID(userID)
	if !ok {
		return domain.User{}, repositories.NewNotFoundError("users.get", "user")
	}
	return r.findOne(ctx, "users.get", bson.M{"_id": oid, "isDeleted": false})
}

// FindByEmail loads an active user by case-insensitive email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, "users.find_by_email", bson.M{"email": normalizeEmail(email), "isDeleted": false})
}

// FindByLogin looks a user up by email, or by phone number when email is empty.
func (r *UserRepository) FindByLogin(ctx context.Context, email string, phoneNumber string) (domain.User, error) {
	if email != "" {
		return r.FindByEmail(ctx, email)
	}
	if phoneNumber == "" {
		return domain.User{}, repositories.NewNotFoundError("users.find_by_login", "user")
	}
	return r.findOne(ctx, "users.find_by_login", bson.M{"phoneNumber": phoneNumber, "isDeleted": false})
}

func (r *UserRepository) findOne(ctx context.Context, op string, filter bson.M) (domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.User{}, mongodb.WrapError(op, err)
	}
	return toDomainUser(doc), nil
}

// EmailTaken reports whether another user than excludeUserID holds the email.
func (r *UserRepository) EmailTaken(ctx context.Context, email string, excludeUserID string) (bool, error) {
	return r.taken(ctx, "users.email_taken", bson.M{"email": normalizeEmail(email)}, excludeUserID)
}

// PhoneTaken reports whether another user than excludeUserID holds the phone number.
func (r *UserRepository) PhoneTaken(ctx context.Context, phoneNumber string, excludeUserID string) (bool, error) {
	return r.taken(ctx, "users.phone_taken", bson.M{"phoneNumber": phoneNumber}, excludeUserID)
}

func (r *UserRepository) taken(ctx context.Context, op string, filter bson.M, excludeUserID string) (bool, error) {
	if oid, ok := mongodb.ObjectID(excludeUserID); ok {
		filter["_id"] = bson.M{"$ne": oid}
	}
	count, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return false, mongodb.WrapError(op, err)
	}
	return count > 0, nil
}

// UpdateProfile writes the name, gender and email of user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user domain.User) error {
	return r.updateUser(ctx, "users.update_profile", user.ID, bson.M{"$set": bson.M{
		"name":      user.Name,
		"gender":    user.Gender,
		"email":     normalizeEmail(user.Email),
		"updatedAt": user.UpdatedAt,
	}})
}

// SetCredentialToken records the token issued at login, or clears it when empty.
func (r *UserRepository) SetCredentialToken(ctx context.Context, userID string, token string, updatedAt time.Time) error {
	return r.updateUser(ctx, "users.set_token", userID, bson.M{"$set": bson.M{
		"credentialToken": token,
		"updatedAt":       updatedAt,
	}})
}

// PushAddress appends an address to the user.
func (r *UserRepository) PushAddress(ctx context.Context, userID string, address domain.Address) error {
	doc, err := fromDomainAddress(address)
	if err != nil {
		return err
	}
	return r.updateUser(ctx, "users.push_address", userID, bson.M{"$push": bson.M{"addresses": doc}})
}

// SetAddress replaces the embedded address with the same id.
func (r *UserRepository) SetAddress(ctx context.Context, userID string, address domain.Address) error {
	doc, err := fromDomainAddress(address)
	if err != nil {
		return err
	}
	return r.updateAddress(ctx, "users.set_address", userID, doc.ID, bson.M{"addresses.$": doc})
}

// SoftDeleteAddress flags an embedded address as deleted.
func (r *UserRepository) SoftDeleteAddress(ctx context.Context, userID string, addressID string, deletedAt time.Time) error {
	oid, ok := mongodb.ObjectID(addressID)
	if !ok {
		return repositories.NewNotFoundError("users.delete_address", "address")
	}
	return r.updateAddress(ctx, "users.delete_address", userID, oid, bson.M{
		"addresses.$.isDeleted": true,
		"addresses.$.updatedAt": deletedAt,
	})
}

// PushOrder appends an order reference to the user.
func (r *UserRepository) PushOrder(ctx context.Context, userID string, orderID string, updatedAt time.Time) error {
	return r.updateUser(ctx, "users.push_order", userID, bson.M{
		"$push": bson.M{"orders": orderID},
		"$set":  bson.M{"updatedAt": updatedAt},
	})
}

func (r *UserRepository) updateUser(ctx context.Context, op, userID string, update bson.M) error {
	oid, ok := mongodb.ObjectID(userID)
	if !ok {
		return repositories.NewNotFoundError(op, "user")
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid, "isDeleted": false}, update)
	if err != nil {
		return mongodb.WrapError(op, err)
	}
	if res.MatchedCount == 0 {
		return repositories.NewNotFoundError(op, "user")
	}
	return nil
}

// updateAddress sets fields on the embedded address through the positional operator. A miss
// is reported against the user when the user is gone, otherwise against the address.
func (r *UserRepository) updateAddress(ctx context.Context, op, userID string, addressID primitive.ObjectID, set bson.M) error {
	oid, ok := mongodb.ObjectID(userID)
	if !ok {
		return repositories.NewNotFoundError(op, "user")
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid, "isDeleted": false, "addresses._id": addressID}, bson.M{"$set": set})
	if err != nil {
		return mongodb.WrapError(op, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid, "isDeleted": false})
	if err != nil {
		return mongodb.WrapError(op, err)
	}
	if count == 0 {
		return repositories.NewNotFoundError(op, "user")
	}
	return repositories.NewNotFoundError(op, "address")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toDomainUser(doc userDocument) domain.User {
	u := domain.User{
		ID:              doc.ID.Hex(),
		Name:            doc.Name,
		Email:           doc.Email,
		PhoneNumber:     doc.PhoneNumber,
		PasswordHash:    doc.PasswordHash,
		Gender:          doc.Gender,
		Orders:          doc.Orders,
		CredentialToken: doc.CredentialToken,
		IsDeleted:       doc.IsDeleted,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, a := range doc.Addresses {
		u.Addresses = append(u.Addresses, domain.Address{
			ID:        a.ID.Hex(),
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

func fromDomainUser(u domain.User) (userDocument, error) {
	oid, ok := mongodb.ObjectID(u.ID)
	if !ok {
		return userDocument{}, invalidID("users.encode", u.ID)
	}
	doc := userDocument{
		ID:              oid,
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
		aDoc, err := fromDomainAddress(a)
		if err != nil {
			return userDocument{}, err
		}
		doc.Addresses = append(doc.Addresses, aDoc)
	}
	return doc, nil
}

func fromDomainAddress(a domain.Address) (addressDocument, error) {
	oid, ok := mongodb.ObjectID(a.ID)
	if !ok {
		return addressDocument{}, invalidID("users.encode_address", a.ID)
	}
	return addressDocument{
		ID:        oid,
		Address:   a.Address,
		City:      a.City,
		State:     a.State,
		Country:   a.Country,
		Pincode:   a.Pincode,
		IsDeleted: a.IsDeleted,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)
