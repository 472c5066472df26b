package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ustoz-edu/apiserver/internal/metrics"
	"github.com/ustoz-edu/apiserver/internal/storage"
	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	profileImagePrefix  = "profile-images/"
	invalidPhoneMessage = "Enter a valid phone number."

	// maxNameLength bounds email, first_name and last_name, matching the
	// VARCHAR(50) columns.
	maxNameLength = 50
)

// IdentityRepository defines persistence operations for identities.
type IdentityRepository interface {
	List(ctx context.Context, filter store.IdentityFilter, offset, limit int) ([]types.Identity, int, error)
	GetByID(ctx context.Context, id int) (types.Identity, error)
	GetByEmail(ctx context.Context, email string) (types.Identity, error)
	Create(ctx context.Context, identity types.Identity) (types.Identity, error)
	Update(ctx context.Context, identity types.Identity) (types.Identity, error)
	Delete(ctx context.Context, id int) error
}

// EventPublisher delivers encoded identity events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ImageStore stores uploaded profile images.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// NewIdentity is the input of Create and CreateSuperuser.
type NewIdentity struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Registration is the input of the public registration path.
type Registration struct {
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber *string
	IsStudying  *bool
	Role        types.Role
	Password1   string
	Password2   string
}

// IdentityPatch lists optional changes; nil fields are left untouched. An
// empty PhoneNumber clears the stored number.
type IdentityPatch struct {
	Email       *string
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	IsStudying  *bool
	IsActive    *bool
	Role        *types.Role
	Password1   *string
	Password2   *string
}

// ProfileImageUpload is an image received from a client.
type ProfileImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// IdentityService encapsulates identity use-cases. Every write goes through
// Save, which enforces the role and credential invariants.
type IdentityService struct {
	repo    IdentityRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
	images  ImageStore
	events  EventPublisher
	channel string
}

func NewIdentityService(repo IdentityRepository, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{repo: repo, logger: logger}
}

// WithMetrics records identity writes on m.
func (s *IdentityService) WithMetrics(m *metrics.Metrics) *IdentityService {
	s.metrics = m
	return s
}

// WithImages enables profile image uploads.
func (s *IdentityService) WithImages(images ImageStore) *IdentityService {
	s.images = images
	return s
}

// WithEvents publishes identity lifecycle events to channel.
func (s *IdentityService) WithEvents(events EventPublisher, channel string) *IdentityService {
	s.events = events
	s.channel = channel
	return s
}

func (s *IdentityService) Get(ctx context.Context, id int) (types.Identity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *IdentityService) List(ctx context.Context, filter store.IdentityFilter, offset, limit int) ([]types.Identity, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, filter, offset, limit)
}

// Create registers a student account.
func (s *IdentityService) Create(ctx context.Context, in NewIdentity) (types.Identity, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return types.Identity{}, newValidationError("email", "The Email field must be set")
	}
	if in.Password == "" {
		return types.Identity{}, newValidationError("password", "This field is required.")
	}

	hashed, err := hashField("password", in.Password)
	if err != nil {
		return types.Identity{}, err
	}

	return s.Save(ctx, types.Identity{
		Email:        NormalizeEmail(email),
		Username:     usernameFromEmail(email),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         types.RoleStudent,
		IsStudying:   true,
		IsActive:     true,
		PasswordHash: hashed,
	})
}

// CreateSuperuser creates the account as a student and promotes it.
func (s *IdentityService) CreateSuperuser(ctx context.Context, in NewIdentity) (types.Identity, error) {
	identity, err := s.Create(ctx, in)
	if err != nil {
		return types.Identity{}, err
	}
	identity.Role = types.RoleSuperuser
	return s.Save(ctx, identity)
}

// Register validates a registration payload and persists it. An empty Role
// registers a student.
func (s *IdentityService) Register(ctx context.Context, in Registration) (types.Identity, error) {
	verr := &ValidationError{}

	email := strings.TrimSpace(in.Email)
	switch {
	case email == "":
		verr.add("email", "This field is required.")
	case !validEmail(email):
		verr.add("email", "Enter a valid email address.")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		verr.add("first_name", "This field is required.")
	}
	if strings.TrimSpace(in.LastName) == "" {
		verr.add("last_name", "This field is required.")
	}
	checkLength(verr, "email", email)
	checkLength(verr, "first_name", strings.TrimSpace(in.FirstName))
	checkLength(verr, "last_name", strings.TrimSpace(in.LastName))
	if in.Password1 == "" {
		verr.add("password1", "This field is required.")
	}
	if in.Password2 == "" {
		verr.add("password2", "This field is required.")
	}
	if in.Password1 != "" && in.Password2 != "" && in.Password1 != in.Password2 {
		verr.add("password2", "The two password fields didn't match.")
	}

	role := in.Role
	if role == "" {
		role = types.RoleStudent
	}
	if !role.Valid() {
		verr.add("role", fmt.Sprintf("%q is not a valid choice.", string(in.Role)))
	}

	phone, ok := normalizePhone(in.PhoneNumber)
	if !ok {
		verr.add("phone_number", invalidPhoneMessage)
	}

	if !verr.empty() {
		return types.Identity{}, verr
	}

	hashed, err := hashField("password1", in.Password1)
	if err != nil {
		return types.Identity{}, err
	}

	isStudying := true
	if in.IsStudying != nil {
		isStudying = *in.IsStudying
	}

	return s.Save(ctx, types.Identity{
		Email:        NormalizeEmail(email),
		Username:     usernameFromEmail(email),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  phone,
		IsStudying:   isStudying,
		Role:         role,
		IsActive:     true,
		PasswordHash: hashed,
	})
}

// Update applies patch to the identity with the given id.
func (s *IdentityService) Update(ctx context.Context, id int, patch IdentityPatch) (types.Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}

	verr := &ValidationError{}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if !validEmail(email) {
			verr.add("email", "Enter a valid email address.")
		}
		identity.Email = NormalizeEmail(email)
	}
	if patch.FirstName != nil {
		if strings.TrimSpace(*patch.FirstName) == "" {
			verr.add("first_name", "This field may not be blank.")
		}
		identity.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		if strings.TrimSpace(*patch.LastName) == "" {
			verr.add("last_name", "This field may not be blank.")
		}
		identity.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.PhoneNumber != nil {
		phone, ok := normalizePhone(patch.PhoneNumber)
		if !ok {
			verr.add("phone_number", invalidPhoneMessage)
		}
		identity.PhoneNumber = phone
	}
	checkLength(verr, "email", identity.Email)
	checkLength(verr, "first_name", identity.FirstName)
	checkLength(verr, "last_name", identity.LastName)
	if patch.IsStudying != nil {
		identity.IsStudying = *patch.IsStudying
	}
	if patch.IsActive != nil {
		identity.IsActive = *patch.IsActive
	}
	if patch.Role != nil {
		identity.Role = *patch.Role
	}
	if patch.Password1 != nil || patch.Password2 != nil {
		p1, p2 := deref(patch.Password1), deref(patch.Password2)
		switch {
		case p1 == "":
			verr.add("password1", "This field may not be blank.")
		case p1 != p2:
			verr.add("password2", "The two password fields didn't match.")
		}
	}
	if !verr.empty() {
		return types.Identity{}, verr
	}
	if patch.Password1 != nil {
		hashed, err := hashField("password1", *patch.Password1)
		if err != nil {
			return types.Identity{}, err
		}
		identity.PasswordHash = hashed
	}

	return s.Save(ctx, identity)
}

// SetPassword stores a new credential for the identity.
func (s *IdentityService) SetPassword(ctx context.Context, id int, password string) error {
	if password == "" {
		return newValidationError("password", "This field may not be blank.")
	}
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	hashed, err := hashField("password", password)
	if err != nil {
		return err
	}
	identity.PasswordHash = hashed
	_, err = s.Save(ctx, identity)
	return err
}

// Save is the single write path for identities. It forces is_staff for
// superusers, hashes any credential that is not already hashed, fills the
// default profile image and then inserts or updates the record.
func (s *IdentityService) Save(ctx context.Context, identity types.Identity) (types.Identity, error) {
	if identity.Role == "" {
		identity.Role = types.RoleStudent
	}
	if !identity.Role.Valid() {
		return types.Identity{}, newValidationError("role", fmt.Sprintf("%q is not a valid choice.", string(identity.Role)))
	}
	if strings.TrimSpace(identity.Email) == "" {
		return types.Identity{}, newValidationError("email", "The Email field must be set")
	}
	verr := &ValidationError{}
	checkLength(verr, "email", identity.Email)
	checkLength(verr, "first_name", identity.FirstName)
	checkLength(verr, "last_name", identity.LastName)
	if !verr.empty() {
		return types.Identity{}, verr
	}
	if identity.IsSuperuser() {
		identity.IsStaff = true
	}
	if identity.PasswordHash != "" && !IsHashed(identity.PasswordHash) {
		hashed, err := hashField("password", identity.PasswordHash)
		if err != nil {
			return types.Identity{}, err
		}
		identity.PasswordHash = hashed
	}
	if strings.TrimSpace(identity.ProfileImage) == "" {
		identity.ProfileImage = types.DefaultProfileImage
	}

	var (
		saved     types.Identity
		err       error
		operation string
		event     types.IdentityEventType
	)
	if identity.ID == 0 {
		operation, event = "create", types.IdentityCreated
		saved, err = s.repo.Create(ctx, identity)
	} else {
		operation, event = "update", types.IdentityUpdated
		saved, err = s.repo.Update(ctx, identity)
	}
	if err != nil {
		return types.Identity{}, err
	}

	s.recordWrite(operation, saved.Role)
	s.publish(ctx, event, saved)
	return saved, nil
}

func (s *IdentityService) Delete(ctx context.Context, id int) error {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordWrite("delete", identity.Role)
	s.publish(ctx, types.IdentityDeleted, identity)
	return nil
}

// Authenticate returns the active identity matching the credentials.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (types.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.Identity{}, ErrAuthenticationFailed
	}

	identity, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, ErrAuthenticationFailed
		}
		return types.Identity{}, err
	}
	if !identity.IsActive || !CheckPassword(identity.PasswordHash, password) {
		return types.Identity{}, ErrAuthenticationFailed
	}
	return identity, nil
}

// SetProfileImage uploads the image and points the identity at it. The
// previous upload is removed unless it was the shared placeholder.
func (s *IdentityService) SetProfileImage(ctx context.Context, id int, upload ProfileImageUpload) (types.Identity, error) {
	if s.images == nil {
		return types.Identity{}, storage.ErrNotConfigured
	}
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Identity{}, err
	}

	key := profileImagePrefix + uuid.NewString() + strings.ToLower(path.Ext(upload.Filename))
	if err := s.images.Put(ctx, key, upload.Data, upload.Size, upload.ContentType); err != nil {
		return types.Identity{}, fmt.Errorf("upload profile image: %w", err)
	}

	previous := identity.ProfileImage
	identity.ProfileImage = key
	saved, err := s.Save(ctx, identity)
	if err != nil {
		_ = s.images.Delete(ctx, key)
		return types.Identity{}, err
	}

	if previous != "" && previous != types.DefaultProfileImage {
		if err := s.images.Delete(ctx, previous); err != nil {
			s.logger.Warn("failed to remove previous profile image",
				zap.Int("identity_id", id), zap.String("key", previous), zap.Error(err))
		}
	}
	return saved, nil
}

func (s *IdentityService) recordWrite(operation string, role types.Role) {
	if s.metrics == nil {
		return
	}
	s.metrics.IdentityWrites.WithLabelValues(operation, role.String()).Inc()
}

// publish is best effort: a broker outage never fails the write that
// already happened.
func (s *IdentityService) publish(ctx context.Context, eventType types.IdentityEventType, identity types.Identity) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(types.IdentityEvent{
		Type:       eventType,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Role:       identity.Role,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to encode identity event", zap.Error(err))
		return
	}
	attrs := map[string]string{"event_type": string(eventType)}
	if _, err := s.events.Publish(ctx, s.channel, data, attrs); err != nil {
		s.logger.Warn("failed to publish identity event",
			zap.String("event_type", string(eventType)),
			zap.Int("identity_id", identity.ID),
			zap.Error(err))
	}
}

// NormalizeEmail lower-cases the domain part and keeps the local part as
// typed.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

// normalizePhone reports false when raw is set but cannot be parsed.
func normalizePhone(raw *string) (*string, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, true
	}
	normalized, err := types.NormalizePhoneNumber(*raw)
	if err != nil {
		return nil, false
	}
	return &normalized, true
}

func checkLength(verr *ValidationError, field, value string) {
	if utf8.RuneCountInString(value) > maxNameLength {
		verr.add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
	}
}

func hashField(field, password string) (string, error) {
	hashed, err := HashPassword(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", newValidationError(field, "Ensure this field has no more than 72 bytes.")
		}
		return "", err
	}
	return hashed, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
