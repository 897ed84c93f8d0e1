package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/api/internal/services"
)

// UserHandlers exposes registration, login, profiles and embedded addresses.
type UserHandlers struct {
	users  services.UserService
	owner  []func(http.Handler) http.Handler
	scoped []func(chi.Router)
	auth   rateLimiter
	clock  func() time.Time
}

// UserOption customises user handlers.
type UserOption func(*UserHandlers)

// WithOwnerMiddleware wraps every /users/{userID} route, e.g. with an ownership check.
func WithOwnerMiddleware(mw ...func(http.Handler) http.Handler) UserOption {
	return func(h *UserHandlers) {
		h.owner = append(h.owner, mw...)
	}
}

// WithUserScopedRoutes mounts additional routes under /users/{userID}.
func WithUserScopedRoutes(register func(chi.Router)) UserOption {
	return func(h *UserHandlers) {
		if register != nil {
			h.scoped = append(h.scoped, register)
		}
	}
}

// WithAuthRateLimit caps register and login attempts per client address to limit per window.
func WithAuthRateLimit(limit int, window time.Duration) UserOption {
	return func(h *UserHandlers) {
		h.auth = newWindowLimiter(limit, window, h.clock)
	}
}

// NewUserHandlers constructs user handlers backed by the user service.
func NewUserHandlers(users services.UserService, opts ...UserOption) *UserHandlers {
	h := &UserHandlers{users: users, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the user endpoints on the API router.
func (h *UserHandlers) Routes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.getUserByEmail)
		r.With(limitByClient(h.auth, h.clock)).Post("/register", h.register)
		r.With(limitByClient(h.auth, h.clock)).Post("/login", h.login)
		r.Route("/{userID}", func(r chi.Router) {
			r.Use(h.owner...)
			r.Put("/", h.updateUser)
			r.Post("/logout", h.logout)
			r.Get("/addresses", h.listAddresses)
			r.Post("/addresses", h.addAddress)
			r.Put("/addresses/{addressID}", h.updateAddress)
			r.Delete("/addresses/{addressID}", h.deleteAddress)
			for _, register := range h.scoped {
				register(r)
			}
		})
	})
}

type registerRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	PhoneNumber     string `json:"phoneNumber" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	Gender          string `json:"gender" validate:"required"`
}

type loginRequest struct {
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password" validate:"required"`
}

type updateUserRequest struct {
	Name   *string `json:"name"`
	Gender *string `json:"gender"`
	Email  *string `json:"email" validate:"omitempty,email"`
}

type addressRequest struct {
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Country string `json:"country" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
}

type updateAddressRequest struct {
	Address *string `json:"address"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	Country *string `json:"country"`
	Pincode *string `json:"pincode"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

func (h *UserHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	result, err := h.users.Register(ctx, services.RegisterCommand{
		Name:            req.Name,
		Email:           req.Email,
		PhoneNumber:     req.PhoneNumber,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Gender:          req.Gender,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, authResponse{Token: result.Token, User: buildUserPayload(result.User)})
}

func (h *UserHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	result, err := h.users.Login(ctx, services.LoginCommand{
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, authResponse{Token: result.Token, User: buildUserPayload(result.User)})
}

func (h *UserHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Logout(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *UserHandlers) getUserByEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeFormError(w, r, "email", "is required")
		return
	}
	profile, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"user":   buildUserPayload(profile.User),
		"orders": buildOrderViewPayloads(profile.Orders),
	})
}

func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateUserRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	user, err := h.users.UpdateUser(ctx, services.UpdateUserCommand{
		UserID: chi.URLParam(r, "userID"),
		Name:   optionalString(req.Name),
		Gender: optionalString(req.Gender),
		Email:  optionalString(req.Email),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

func (h *UserHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.users.ListAddresses(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"addresses": buildAddressPayloads(addresses)})
}

func (h *UserHandlers) addAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addressRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	address, err := h.users.AddAddress(ctx, services.AddAddressCommand{
		UserID:  chi.URLParam(r, "userID"),
		Address: req.Address,
		City:    req.City,
		State:   req.State,
		Country: req.Country,
		Pincode: req.Pincode,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+address.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"address": buildAddressPayload(address)})
}

func (h *UserHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateAddressRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	address, err := h.users.UpdateAddress(ctx, services.UpdateAddressCommand{
		UserID:    chi.URLParam(r, "userID"),
		AddressID: chi.URLParam(r, "addressID"),
		Address:   optionalString(req.Address),
		City:      optionalString(req.City),
		State:     optionalString(req.State),
		Country:   optionalString(req.Country),
		Pincode:   optionalString(req.Pincode),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"address": buildAddressPayload(address)})
}

func (h *UserHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteAddress(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "addressID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeMessage(w, http.StatusOK, "address deleted")
}
