package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/textutil"
	"github.com/gemvault/api/internal/repositories"
)

const minPhoneDigits = 10

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Passwords   PasswordHasher
	Tokens      TokenIssuer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	passwords PasswordHasher
	tokens    TokenIssuer
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("user service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("user service: product repository is required")
	}
	if deps.Passwords == nil {
		return nil, errors.New("user service: password hasher is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = domain.NewID
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &userService{
		users:     deps.Users,
		orders:    deps.Orders,
		products:  deps.Products,
		passwords: deps.Passwords,
		tokens:    deps.Tokens,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error) {
	const op = "users.register"
	name := textutil.Clean(cmd.Name)
	email := normalizeEmail(cmd.Email)
	phone := strings.TrimSpace(cmd.PhoneNumber)
	if name == "" || email == "" || phone == "" || cmd.Password == "" || cmd.ConfirmPassword == "" || strings.TrimSpace(cmd.Gender) == "" {
		return AuthResult{}, validationError(op, "all fields are required")
	}
	if cmd.Password != cmd.ConfirmPassword {
		return AuthResult{}, validationError(op, "passwords do not match")
	}
	if !emailPattern.MatchString(email) {
		return AuthResult{}, validationError(op, "invalid email format")
	}
	if !textutil.IsDigits(phone) || len(phone) < minPhoneDigits {
		return AuthResult{}, validationError(op, "phone number must be numeric and at least %d digits", minPhoneDigits)
	}
	gender, ok := textutil.NormalizeGender(cmd.Gender, domain.GenderMale, domain.GenderFemale)
	if !ok {
		return AuthResult{}, validationError(op, "gender must be %s or %s", domain.GenderMale, domain.GenderFemale)
	}

	taken, err := s.users.EmailTaken(ctx, email, "")
	if err != nil {
		return AuthResult{}, translateRepoError(op, "user", err)
	}
	if taken {
		return AuthResult{}, conflictError(op, "email already registered")
	}
	taken, err = s.users.PhoneTaken(ctx, phone, "")
	if err != nil {
		return AuthResult{}, translateRepoError(op, "user", err)
	}
	if taken {
		return AuthResult{}, conflictError(op, "phone number already registered")
	}

	hash, err := s.passwords.Hash(cmd.Password)
	if err != nil {
		return AuthResult{}, &Error{Kind: KindPersistence, Op: op, Message: "failed to hash password", Err: err}
	}

	now := s.clock()
	user := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		Gender:       gender,
		Addresses:    []domain.Address{},
		Orders:       []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, &Error{Kind: KindPersistence, Op: op, Message: "failed to issue token", Err: err}
	}
	user.CredentialToken = token

	if err := s.users.Insert(ctx, user); err != nil {
		return AuthResult{}, translateRepoError(op, "user", err)
	}
	s.logger(ctx, "users.registered", map[string]any{"userId": user.ID})
	return AuthResult{Token: token, User: publicUser(user)}, nil
}

func (s *userService) Login(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	const op = "users.login"
	email := normalizeEmail(cmd.Email)
	phone := strings.TrimSpace(cmd.PhoneNumber)
	if email == "" && phone == "" {
		return AuthResult{}, validationError(op, "email or phone number is required")
	}
	if cmd.Password == "" {
		return AuthResult{}, validationError(op, "password is required")
	}

	user, err := s.users.FindByLogin(ctx, email, phone)
	if err != nil {
		return AuthResult{}, translateRepoError(op, "user", err)
	}
	if err := s.passwords.Compare(user.PasswordHash, cmd.Password); err != nil {
		return AuthResult{}, unauthorizedError(op, "invalid credentials")
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, &Error{Kind: KindPersistence, Op: op, Message: "failed to issue token", Err: err}
	}
	now := s.clock()
	if err := s.users.SetCredentialToken(ctx, user.ID, token, now); err != nil {
		return AuthResult{}, translateRepoError(op, "user", err)
	}
	user.CredentialToken = token
	user.UpdatedAt = now
	return AuthResult{Token: token, User: publicUser(user)}, nil
}

func (s *userService) Logout(ctx context.Context, userID string) error {
	const op = "users.logout"
	userID, err := requireID(op, "user id", userID)
	if err != nil {
		return err
	}
	if err := s.users.SetCredentialToken(ctx, userID, "", s.clock()); err != nil {
		return translateRepoError(op, "user", err)
	}
	return nil
}

func (s *userService) GetUserByEmail(ctx context.Context, email string) (UserProfile, error) {
	const op = "users.get_by_email"
	email = normalizeEmail(email)
	if email == "" {
		return UserProfile{}, validationError(op, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return UserProfile{}, translateRepoError(op, "user", err)
	}
	orders, err := populateOrders(ctx, op, s.orders, s.products, user.Orders)
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{User: publicUser(user), Orders: orders}, nil
}

func (s *userService) UpdateUser(ctx context.Context, cmd UpdateUserCommand) (domain.User, error) {
	const op = "users.update"
	userID, err := requireID(op, "user id", cmd.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if !cmd.Name.IsSet() && !cmd.Gender.IsSet() && !cmd.Email.IsSet() {
		return domain.User{}, validationError(op, "no update provided")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.User{}, translateRepoError(op, "user", err)
	}

	if cmd.Name.IsSet() {
		if user.Name = textutil.Clean(cmd.Name.Value()); user.Name == "" {
			return domain.User{}, validationError(op, "name must not be blank")
		}
	}
	if cmd.Gender.IsSet() {
		gender, ok := textutil.NormalizeGender(cmd.Gender.Value(), domain.GenderMale, domain.GenderFemale)
		if !ok {
			return domain.User{}, validationError(op, "gender must be %s or %s", domain.GenderMale, domain.GenderFemale)
		}
		user.Gender = gender
	}
	if cmd.Email.IsSet() {
		email := normalizeEmail(cmd.Email.Value())
		if !emailPattern.MatchString(email) {
			return domain.User{}, validationError(op, "invalid email format")
		}
		taken, err := s.users.EmailTaken(ctx, email, userID)
		if err != nil {
			return domain.User{}, translateRepoError(op, "user", err)
		}
		if taken {
			return domain.User{}, conflictError(op, "email already registered")
		}
		user.Email = email
	}
	user.UpdatedAt = s.clock()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return domain.User{}, translateRepoError(op, "user", err)
	}
	return publicUser(user), nil
}

func (s *userService) AddAddress(ctx context.Context, cmd AddAddressCommand) (domain.Address, error) {
	const op = "users.add_address"
	userID, err := requireID(op, "user id", cmd.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	address := domain.Address{
		Address: textutil.Clean(cmd.Address),
		City:    textutil.Clean(cmd.City),
		State:   textutil.Clean(cmd.State),
		Country: textutil.Clean(cmd.Country),
		Pincode: textutil.Clean(cmd.Pincode),
	}
	if address.Address == "" || address.City == "" || address.State == "" || address.Country == "" || address.Pincode == "" {
		return domain.Address{}, validationError(op, "address, city, state, country and pincode are required")
	}
	now := s.clock()
	address.ID = s.newID()
	address.CreatedAt = now
	address.UpdatedAt = now

	if err := s.users.PushAddress(ctx, userID, address); err != nil {
		return domain.Address{}, translateRepoError(op, "user", err)
	}
	return address, nil
}

func (s *userService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	const op = "users.list_addresses"
	userID, err := requireID(op, "user id", userID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateRepoError(op, "user", err)
	}
	return user.ActiveAddresses(), nil
}

func (s *userService) UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (domain.Address, error) {
	const op = "users.update_address"
	userID, err := requireID(op, "user id", cmd.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	addressID, err := requireID(op, "address id", cmd.AddressID)
	if err != nil {
		return domain.Address{}, err
	}
	fields := []struct {
		name   string
		value  domain.Optional[string]
		target func(*domain.Address) *string
	}{
		{"address", cmd.Address, func(a *domain.Address) *string { return &a.Address }},
		{"city", cmd.City, func(a *domain.Address) *string { return &a.City }},
		{"state", cmd.State, func(a *domain.Address) *string { return &a.State }},
		{"country", cmd.Country, func(a *domain.Address) *string { return &a.Country }},
		{"pincode", cmd.Pincode, func(a *domain.Address) *string { return &a.Pincode }},
	}
	changed := false
	for _, f := range fields {
		changed = changed || f.value.IsSet()
	}
	if !changed {
		return domain.Address{}, validationError(op, "no update provided")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.Address{}, translateRepoError(op, "user", err)
	}
	var address domain.Address
	found := false
	for _, a := range user.ActiveAddresses() {
		if a.ID == addressID {
			address, found = a, true
			break
		}
	}
	if !found {
		return domain.Address{}, notFoundError(op, "address not found")
	}

	for _, f := range fields {
		if !f.value.IsSet() {
			continue
		}
		cleaned := textutil.Clean(f.value.Value())
		if cleaned == "" {
			return domain.Address{}, validationError(op, "%s must not be blank", f.name)
		}
		*f.target(&address) = cleaned
	}
	address.UpdatedAt = s.clock()

	if err := s.users.SetAddress(ctx, userID, address); err != nil {
		return domain.Address{}, translateRepoError(op, "address", err)
	}
	return address, nil
}

func (s *userService) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	const op = "users.delete_address"
	userID, err := requireID(op, "user id", userID)
	if err != nil {
		return err
	}
	addressID, err = requireID(op, "address id", addressID)
	if err != nil {
		return err
	}
	if err := s.users.SoftDeleteAddress(ctx, userID, addressID, s.clock()); err != nil {
		return translateRepoError(op, "address", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// publicUser strips secrets and deleted addresses before a user leaves the service layer.
func publicUser(user domain.User) domain.User {
	user.PasswordHash = ""
	user.CredentialToken = ""
	user.Addresses = user.ActiveAddresses()
	return user
}
