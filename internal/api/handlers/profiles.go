package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tipkoro/internal/core"
	"tipkoro/internal/onboarding"
	"tipkoro/internal/payments"
	"tipkoro/internal/types"
)

// OnboardingService runs profile and onboarding operations for the caller.
type OnboardingService interface {
	EnsureProfile(ctx context.Context, actor types.Actor) (*types.Profile, error)
	UpdateProfile(ctx context.Context, actor types.Actor, upd types.ProfileUpdate) (*types.Profile, error)
	ChooseAccountType(ctx context.Context, actor types.Actor, accountType types.AccountType) (*types.Profile, error)
	Back(ctx context.Context, actor types.Actor) (*types.Profile, error)
	StartPayment(ctx context.Context, actor types.Actor) (*payments.CheckoutResult, error)
	SubmitProfile(ctx context.Context, actor types.Actor, in onboarding.ProfileSubmission) (*types.Profile, error)
	CheckUsername(ctx context.Context, identityID, username string) (*onboarding.UsernameAvailability, error)
}

// UpdateProfileRequest is the body of PATCH /v1/me/profile. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Username  *string `json:"username,omitempty" validate:"omitempty,username"`
	Bio       *string `json:"bio,omitempty" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,max=500,http_url"`
	Twitter   *string `json:"twitter,omitempty" validate:"omitempty,max=500,http_url"`
	Instagram *string `json:"instagram,omitempty" validate:"omitempty,max=500,http_url"`
	Youtube   *string `json:"youtube,omitempty" validate:"omitempty,max=500,http_url"`
	Facebook  *string `json:"facebook,omitempty" validate:"omitempty,max=500,http_url"`
	OtherLink *string `json:"other_link,omitempty" validate:"omitempty,max=500,http_url"`
}

func (req UpdateProfileRequest) toUpdate() types.ProfileUpdate {
	return types.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		Twitter:   req.Twitter,
		Instagram: req.Instagram,
		Youtube:   req.Youtube,
		Facebook:  req.Facebook,
		OtherLink: req.OtherLink,
	}
}

// AccountTypeRequest is the body of POST /v1/onboarding/account-type.
type AccountTypeRequest struct {
	AccountType types.AccountType `json:"account_type" validate:"required,oneof=supporter creator"`
}

// ProfileHandler serves the caller's profile, the onboarding steps and the
// username availability check.
type ProfileHandler struct {
	service   OnboardingService
	validator *core.Validator
	logger    *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(service OnboardingService, v *core.Validator, l *slog.Logger) *ProfileHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ProfileHandler{service: service, validator: v, logger: l}
}

// RegisterPublicRoutes mounts the advisory username check, which also
// answers signed-in callers about their own username.
func (h *ProfileHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/usernames/{username}", h.CheckUsername)
}

// RegisterRoutes mounts the endpoints that need a signed-in caller.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/profile", h.GetProfile)
	r.Patch("/me/profile", h.UpdateProfile)

	r.Route("/onboarding", func(r chi.Router) {
		r.Post("/account-type", h.ChooseAccountType)
		r.Post("/back", h.Back)
		r.Post("/payment", h.StartPayment)
		r.Post("/profile", h.SubmitProfile)
	})
}

// GetProfile handles GET /v1/me/profile. The profile is created on first
// read when the identity webhook has not delivered yet.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	p, err := h.service.EnsureProfile(r.Context(), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, p)
}

// UpdateProfile handles PATCH /v1/me/profile.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), actor, req.toUpdate())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, p)
}

// CheckUsername handles GET /v1/usernames/{username}.
func (h *ProfileHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var identityID string
	if actor, ok := types.GetActor(r.Context()); ok {
		identityID = actor.ID
	}

	res, err := h.service.CheckUsername(r.Context(), identityID, chi.URLParam(r, "username"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, res)
}

// ChooseAccountType handles POST /v1/onboarding/account-type.
func (h *ProfileHandler) ChooseAccountType(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req AccountTypeRequest
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	p, err := h.service.ChooseAccountType(r.Context(), actor, req.AccountType)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, p)
}

// Back handles POST /v1/onboarding/back.
func (h *ProfileHandler) Back(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	p, err := h.service.Back(r.Context(), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, p)
}

// StartPayment handles POST /v1/onboarding/payment.
func (h *ProfileHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	res, err := h.service.StartPayment(r.Context(), actor)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "creator promo checkout failed",
			"user_id", actor.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	writeData(w, r, res)
}

// SubmitProfile handles POST /v1/onboarding/profile.
func (h *ProfileHandler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req onboarding.ProfileSubmission
	if !decodeValid(w, r, h.validator, &req) {
		return
	}

	p, err := h.service.SubmitProfile(r.Context(), actor, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, p)
}
