package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ustoz-edu/apiserver/internal/db/dbtest"
	"github.com/ustoz-edu/apiserver/internal/metrics"
	"github.com/ustoz-edu/apiserver/internal/storage"
	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
)

type recordedEvent struct {
	channel string
	event   types.IdentityEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	var event types.IdentityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	p.events = append(p.events, recordedEvent{channel: channel, event: event})
	return "msg-1", nil
}

type fakeImages struct {
	objects map[string][]byte
	deleted []string
}

func (f *fakeImages) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestIdentityService(t *testing.T) *IdentityService {
	t.Helper()
	return NewIdentityService(store.NewIdentityRepository(dbtest.Open(t)), nil)
}

func TestIdentityService_CreateStudent(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()

	identity, err := svc.Create(ctx, NewIdentity{
		Email:     "Ali@Example.COM",
		FirstName: "Ali",
		LastName:  "Valiyev",
		Password:  "s3cret-pass",
	})
	require.NoError(t, err)

	assert.Equal(t, types.RoleStudent, identity.Role)
	assert.Equal(t, "Ali@example.com", identity.Email)
	assert.Equal(t, "Ali", identity.Username)
	assert.Equal(t, types.DefaultProfileImage, identity.ProfileImage)
	assert.True(t, identity.IsActive)
	assert.False(t, identity.IsStaff)
	assert.NotEqual(t, "s3cret-pass", identity.PasswordHash)
	assert.True(t, IsHashed(identity.PasswordHash))
	assert.True(t, CheckPassword(identity.PasswordHash, "s3cret-pass"))
}

func TestIdentityService_CreateRequiresEmail(t *testing.T) {
	svc := newTestIdentityService(t)

	_, err := svc.Create(context.Background(), NewIdentity{Password: "x"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "The Email field must be set", verr.Fields["email"])
}

func TestIdentityService_CreateSuperuser(t *testing.T) {
	svc := newTestIdentityService(t)

	identity, err := svc.CreateSuperuser(context.Background(), NewIdentity{
		Email:     "root@example.com",
		FirstName: "Root",
		LastName:  "User",
		Password:  "rootpass",
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleSuperuser, identity.Role)
	assert.True(t, identity.IsStaff)
	assert.True(t, identity.IsSuperuser())

	stored, err := svc.Get(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleSuperuser, stored.Role)
	assert.True(t, stored.IsStaff)
}

func TestIdentityService_SaveDoesNotRehash(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()

	identity, err := svc.Create(ctx, NewIdentity{Email: "a@example.com", FirstName: "A", LastName: "B", Password: "pw"})
	require.NoError(t, err)
	hash := identity.PasswordHash

	identity.FirstName = "Aa"
	saved, err := svc.Save(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, hash, saved.PasswordHash)
	assert.True(t, CheckPassword(saved.PasswordHash, "pw"))
}

func TestIdentityService_SaveHashesPlaintext(t *testing.T) {
	svc := newTestIdentityService(t)

	saved, err := svc.Save(context.Background(), types.Identity{
		Email:        "plain@example.com",
		FirstName:    "Plain",
		LastName:     "Text",
		PasswordHash: "plaintext",
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, saved.Role)
	assert.True(t, IsHashed(saved.PasswordHash))
	assert.True(t, CheckPassword(saved.PasswordHash, "plaintext"))
}

func TestIdentityService_SaveRejectsUnknownRole(t *testing.T) {
	svc := newTestIdentityService(t)

	_, err := svc.Save(context.Background(), types.Identity{
		Email:     "x@example.com",
		FirstName: "X",
		LastName:  "Y",
		Role:      types.Role("JANITOR"),
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "role")
}

func TestIdentityService_UniqueConstraints(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, NewIdentity{Email: "dup@example.com", FirstName: "Ali", LastName: "Valiyev", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, NewIdentity{Email: "dup@example.com", FirstName: "Other", LastName: "Name", Password: "pw"})
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	_, err = svc.Create(ctx, NewIdentity{Email: "else@example.com", FirstName: "Ali", LastName: "Valiyev", Password: "pw"})
	assert.ErrorIs(t, err, store.ErrConstraintViolation)
}

func TestIdentityService_Register(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()

	phone := "+998 90 123-45-67"
	studying := false
	identity, err := svc.Register(ctx, Registration{
		Email:       "teacher@example.com",
		FirstName:   "Nodira",
		LastName:    "Karimova",
		PhoneNumber: &phone,
		IsStudying:  &studying,
		Role:        types.RoleTeacher,
		Password1:   "pw-123456",
		Password2:   "pw-123456",
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleTeacher, identity.Role)
	require.NotNil(t, identity.PhoneNumber)
	assert.Equal(t, "+998901234567", *identity.PhoneNumber)
	assert.False(t, identity.IsStudying)
	assert.True(t, CheckPassword(identity.PasswordHash, "pw-123456"))
}

func TestIdentityService_RegisterValidation(t *testing.T) {
	svc := newTestIdentityService(t)

	bad := "not a phone"
	_, err := svc.Register(context.Background(), Registration{
		Email:       "broken",
		PhoneNumber: &bad,
		Role:        types.Role("JANITOR"),
		Password1:   "one",
		Password2:   "two",
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"email", "first_name", "last_name", "password2", "role", "phone_number"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.NotContains(t, verr.Fields, "password1")
}

func TestIdentityService_RegisterRejectsHashLookingPassword(t *testing.T) {
	svc := newTestIdentityService(t)

	raw := "$2a$10$notreallyahash"
	identity, err := svc.Register(context.Background(), Registration{
		Email:     "sneaky@example.com",
		FirstName: "S",
		LastName:  "N",
		Password1: raw,
		Password2: raw,
	})
	require.NoError(t, err)
	assert.NotEqual(t, raw, identity.PasswordHash)
	assert.True(t, CheckPassword(identity.PasswordHash, raw))
}

func TestIdentityService_Update(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()

	identity, err := svc.Create(ctx, NewIdentity{Email: "u@example.com", FirstName: "U", LastName: "V", Password: "old"})
	require.NoError(t, err)

	name := "Umid"
	role := types.RoleTeacher
	pw := "new-password"
	updated, err := svc.Update(ctx, identity.ID, IdentityPatch{
		FirstName: &name,
		Role:      &role,
		Password1: &pw,
		Password2: &pw,
	})
	require.NoError(t, err)
	assert.Equal(t, "Umid", updated.FirstName)
	assert.Equal(t, types.RoleTeacher, updated.Role)
	assert.True(t, CheckPassword(updated.PasswordHash, "new-password"))

	empty := ""
	updated, err = svc.Update(ctx, identity.ID, IdentityPatch{PhoneNumber: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.PhoneNumber)

	mismatch := "other"
	_, err = svc.Update(ctx, identity.ID, IdentityPatch{Password1: &pw, Password2: &mismatch})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "password2")

	_, err = svc.Update(ctx, 9999, IdentityPatch{FirstName: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIdentityService_Authenticate(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()

	identity, err := svc.Create(ctx, NewIdentity{Email: "login@example.com", FirstName: "L", LastName: "I", Password: "pw"})
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "login@EXAMPLE.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, got.ID)

	_, err = svc.Authenticate(ctx, "login@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = svc.Authenticate(ctx, "missing@example.com", "pw")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	inactive := false
	_, err = svc.Update(ctx, identity.ID, IdentityPatch{IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "login@example.com", "pw")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestIdentityService_PublishesEventsAndMetrics(t *testing.T) {
	publisher := &fakePublisher{}
	m := metrics.New()
	svc := newTestIdentityService(t).WithEvents(publisher, "identity-events").WithMetrics(m)
	ctx := context.Background()

	identity, err := svc.Create(ctx, NewIdentity{Email: "e@example.com", FirstName: "E", LastName: "V", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, identity.ID))

	require.Len(t, publisher.events, 2)
	assert.Equal(t, "identity-events", publisher.events[0].channel)
	assert.Equal(t, types.IdentityCreated, publisher.events[0].event.Type)
	assert.Equal(t, identity.ID, publisher.events[0].event.IdentityID)
	assert.Equal(t, types.IdentityDeleted, publisher.events[1].event.Type)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdentityWrites.WithLabelValues("create", "STUDENT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdentityWrites.WithLabelValues("delete", "STUDENT")))
}

func TestIdentityService_PublishFailureDoesNotFailWrite(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc := newTestIdentityService(t).WithEvents(publisher, "identity-events")

	identity, err := svc.Create(context.Background(), NewIdentity{Email: "b@example.com", FirstName: "B", LastName: "D", Password: "pw"})
	require.NoError(t, err)
	assert.NotZero(t, identity.ID)
}

func TestIdentityService_SetProfileImage(t *testing.T) {
	images := &fakeImages{}
	svc := newTestIdentityService(t).WithImages(images)
	ctx := context.Background()

	identity, err := svc.Create(ctx, NewIdentity{Email: "p@example.com", FirstName: "P", LastName: "I", Password: "pw"})
	require.NoError(t, err)

	first, err := svc.SetProfileImage(ctx, identity.ID, ProfileImageUpload{
		Filename:    "Me.PNG",
		ContentType: "image/png",
		Size:        3,
		Data:        bytes.NewReader([]byte("png")),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ProfileImage, "profile-images/"))
	assert.True(t, strings.HasSuffix(first.ProfileImage, ".png"))
	assert.Contains(t, images.objects, first.ProfileImage)
	assert.Empty(t, images.deleted)

	second, err := svc.SetProfileImage(ctx, identity.ID, ProfileImageUpload{
		Filename: "next.jpg",
		Size:     3,
		Data:     bytes.NewReader([]byte("jpg")),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ProfileImage, second.ProfileImage)
	assert.Equal(t, []string{first.ProfileImage}, images.deleted)
}

func TestIdentityService_SetProfileImageWithoutStorage(t *testing.T) {
	svc := newTestIdentityService(t)

	_, err := svc.SetProfileImage(context.Background(), 1, ProfileImageUpload{Filename: "a.png"})
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "John.Doe@example.com", NormalizeEmail(" John.Doe@EXAMPLE.com "))
	assert.Equal(t, "no-at-sign", NormalizeEmail("no-at-sign"))
}

func TestIdentityService_RejectsOverlongFields(t *testing.T) {
	long := strings.Repeat("a", maxNameLength+1)
	atLimit := strings.Repeat("b", maxNameLength)
	longEmail := strings.Repeat("c", maxNameLength) + "@example.com"
	// Multi-byte characters count as one each.
	cyrillic := strings.Repeat("ж", maxNameLength)

	cases := []struct {
		name    string
		in      Registration
		field   string
		wantErr bool
	}{
		{name: "email", in: Registration{Email: longEmail, FirstName: "A", LastName: "B"}, field: "email", wantErr: true},
		{name: "first name", in: Registration{Email: "f@example.com", FirstName: long, LastName: "B"}, field: "first_name", wantErr: true},
		{name: "last name", in: Registration{Email: "l@example.com", FirstName: "A", LastName: long}, field: "last_name", wantErr: true},
		{name: "at limit", in: Registration{Email: "ok@example.com", FirstName: atLimit, LastName: "B"}},
		{name: "multi-byte at limit", in: Registration{Email: "mb@example.com", FirstName: cyrillic, LastName: "C"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestIdentityService(t)
			tc.in.Password1, tc.in.Password2 = "pw", "pw"

			identity, err := svc.Register(context.Background(), tc.in)
			if !tc.wantErr {
				require.NoError(t, err)
				assert.NotZero(t, identity.ID)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, "Ensure this field has no more than 50 characters.", verr.Fields[tc.field])
		})
	}
}

func TestIdentityService_LengthCheckedOnEveryWritePath(t *testing.T) {
	svc := newTestIdentityService(t)
	ctx := context.Background()
	long := strings.Repeat("x", maxNameLength+1)

	_, err := svc.Create(ctx, NewIdentity{Email: long + "@example.com", FirstName: "A", LastName: "B", Password: "pw"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")

	identity, err := svc.Create(ctx, NewIdentity{Email: "u@example.com", FirstName: "A", LastName: "B", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, identity.ID, IdentityPatch{LastName: &long})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "last_name")

	identity.FirstName = long
	_, err = Students(svc).Save(ctx, identity)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "first_name")

	stored, err := svc.Get(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", stored.FirstName)
	assert.Equal(t, "B", stored.LastName)
}
