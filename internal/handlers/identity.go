package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/types"
	"go.uber.org/zap"
)

// IdentityResponse is the public representation of an identity.
type IdentityResponse struct {
	ID           int        `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	FullName     string     `json:"full_name"`
	ProfileImage string     `json:"profile_image"`
	PhoneNumber  *string    `json:"phone_number"`
	IsStudying   bool       `json:"is_studying"`
	Role         types.Role `json:"role"`
	RoleLabel    string     `json:"role_label"`
	IsStaff      bool       `json:"is_staff"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IdentityListResponse is a page of identities.
type IdentityListResponse struct {
	Items []IdentityResponse `json:"items"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
	Total int                `json:"total"`
}

// IdentityRequest is the write payload shared by the users and role view
// endpoints. Absent fields are left untouched on update.
type IdentityRequest struct {
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
	IsStudying  *bool   `json:"is_studying"`
	IsActive    *bool   `json:"is_active"`
	Role        *string `json:"role"`
	Password1   *string `json:"password1"`
	Password2   *string `json:"password2"`
}

func (req IdentityRequest) role() *types.Role {
	if req.Role == nil {
		return nil
	}
	role, ok := types.ParseRole(*req.Role)
	if !ok {
		// Left as typed so the service reports it as an invalid choice.
		role = types.Role(strings.TrimSpace(*req.Role))
	}
	return &role
}

func (req IdentityRequest) registration() services.Registration {
	in := services.Registration{
		Email:       deref(req.Email),
		FirstName:   deref(req.FirstName),
		LastName:    deref(req.LastName),
		PhoneNumber: req.PhoneNumber,
		IsStudying:  req.IsStudying,
		Password1:   deref(req.Password1),
		Password2:   deref(req.Password2),
	}
	if role := req.role(); role != nil {
		in.Role = *role
	}
	return in
}

func (req IdentityRequest) patch() services.IdentityPatch {
	return services.IdentityPatch{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		IsStudying:  req.IsStudying,
		IsActive:    req.IsActive,
		Role:        req.role(),
		Password1:   req.Password1,
		Password2:   req.Password2,
	}
}

// requireFields reports the fields a full replacement must carry.
func (req IdentityRequest) requireFields() error {
	verr := &services.ValidationError{Fields: map[string]string{}}
	if req.Email == nil {
		verr.Fields["email"] = "This field is required."
	}
	if req.FirstName == nil {
		verr.Fields["first_name"] = "This field is required."
	}
	if req.LastName == nil {
		verr.Fields["last_name"] = "This field is required."
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// presenter renders identities, resolving profile image keys to URLs.
type presenter struct {
	images services.ImageURLResolver
	logger *zap.Logger
}

func (p presenter) identity(ctx context.Context, identity types.Identity) IdentityResponse {
	key := identity.ProfileImage
	if strings.TrimSpace(key) == "" {
		key = types.DefaultProfileImage
	}
	imageURL := key
	if p.images != nil {
		resolved, err := p.images.URL(ctx, key)
		if err != nil {
			p.logger.Warn("failed to resolve profile image",
				zap.Int("identity_id", identity.ID), zap.String("key", key), zap.Error(err))
		} else {
			imageURL = resolved
		}
	}

	return IdentityResponse{
		ID:           identity.ID,
		Email:        identity.Email,
		Username:     identity.Username,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		FullName:     identity.FullName(),
		ProfileImage: imageURL,
		PhoneNumber:  identity.PhoneNumberDisplay(),
		IsStudying:   identity.IsStudying,
		Role:         identity.Role,
		RoleLabel:    identity.Role.Label(),
		IsStaff:      identity.IsStaff,
		IsActive:     identity.IsActive,
		CreatedAt:    identity.CreatedAt,
		UpdatedAt:    identity.UpdatedAt,
	}
}

func (p presenter) list(ctx context.Context, items []types.Identity, page, limit, total int) IdentityListResponse {
	resp := IdentityListResponse{
		Items: make([]IdentityResponse, 0, len(items)),
		Page:  page,
		Limit: limit,
		Total: total,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, p.identity(ctx, item))
	}
	return resp
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
