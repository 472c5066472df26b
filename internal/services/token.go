package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

// ErrInvalidToken covers bad signatures, expired tokens and tokens of the
// wrong type.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	TokenType    string     `json:"token_type"`
	UserID       int        `json:"user_id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         types.Role `json:"role"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsTeacher    bool       `json:"is_teacher"`
	IsAdmin      bool       `json:"is_admin"`
	IsStudent    bool       `json:"is_student"`
	IsStudying   bool       `json:"is_studying"`
	PhoneNumber  *string    `json:"phone_number"`
	ProfileImage string     `json:"profile_image"`
	jwt.RegisteredClaims
}

// TokenPair is returned by the token obtain endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ImageURLResolver turns a stored image key into a client facing URL.
type ImageURLResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

// IdentityLookup loads the identity a refresh token was issued for.
type IdentityLookup interface {
	Get(ctx context.Context, id int) (types.Identity, error)
}

// TokenService signs and verifies HS256 tokens carrying identity claims.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	images     ImageURLResolver
	identities IdentityLookup
	now        func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, images ImageURLResolver, identities IdentityLookup) *TokenService {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		images:     images,
		identities: identities,
		now:        time.Now,
	}
}

// Issue returns an access/refresh pair for an authenticated identity.
func (s *TokenService) Issue(ctx context.Context, identity types.Identity) (TokenPair, error) {
	claims, err := s.identityClaims(ctx, identity)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.sign(claims, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.sign(claims, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token. Claims are
// rebuilt from the current identity record.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}

	identity, err := s.identities.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrAuthenticationFailed
		}
		return "", err
	}
	if !identity.IsActive {
		return "", ErrAuthenticationFailed
	}

	fresh, err := s.identityClaims(ctx, identity)
	if err != nil {
		return "", err
	}
	return s.sign(fresh, TokenTypeAccess, s.accessTTL)
}

// ParseAccess verifies an access token and returns its claims.
func (s *TokenService) ParseAccess(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenTypeAccess)
}

func (s *TokenService) identityClaims(ctx context.Context, identity types.Identity) (Claims, error) {
	imageKey := identity.ProfileImage
	if strings.TrimSpace(imageKey) == "" {
		imageKey = types.DefaultProfileImage
	}
	if s.images == nil {
		return Claims{}, ErrProfileImageUnresolvable
	}
	imageURL, err := s.images.URL(ctx, imageKey)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrProfileImageUnresolvable, err)
	}

	return Claims{
		UserID:       identity.ID,
		Email:        identity.Email,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		Role:         identity.Role,
		IsSuperuser:  identity.IsSuperuser(),
		IsTeacher:    identity.IsTeacher(),
		IsAdmin:      identity.IsAdmin(),
		IsStudent:    identity.IsStudent(),
		IsStudying:   identity.IsStudying,
		PhoneNumber:  identity.PhoneNumber,
		ProfileImage: imageURL,
	}, nil
}

func (s *TokenService) sign(claims Claims, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims.TokenType = tokenType
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parse(tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, tokenType)
	}
	if claims.UserID < 1 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
