package types

import (
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// DefaultProfileImage is the object key used when an identity has no
// uploaded profile image.
const DefaultProfileImage = "profile-images/user-default.png"

// InvalidPhoneNumber is returned by PhoneNumberDisplay when the stored
// number cannot be parsed.
const InvalidPhoneNumber = "Invalid phone number"

// Identity is the single user record shared by every role.
type Identity struct {
	// ID is the unique identifier of the identity.
	ID int `json:"id" db:"id"`

	// Email is the unique login identifier.
	Email string `json:"email" db:"email"`

	// Username is the local part of the email at creation time.
	Username string `json:"username" db:"username"`

	// FirstName and LastName are required; the pair is unique.
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// ProfileImage is the object storage key of the profile picture.
	ProfileImage string `json:"profile_image" db:"profile_image"`

	// PhoneNumber is stored in E.164 form, or nil when unset.
	PhoneNumber *string `json:"phone_number" db:"phone_number"`

	// IsStudying is only meaningful for students.
	IsStudying bool `json:"is_studying" db:"is_studying"`

	// Role determines every derived permission of the identity.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsStaff is forced on for superusers.
	IsStaff bool `json:"is_staff" db:"is_staff"`

	// IsActive gates authentication; inactive identities cannot obtain tokens.
	IsActive bool `json:"is_active" db:"is_active"`

	// CreatedAt is the timestamp when the identity was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins the first and last name with a single space.
func (i Identity) FullName() string {
	return i.FirstName + " " + i.LastName
}

func (i Identity) String() string {
	return i.FullName()
}

func (i Identity) IsStudent() bool   { return i.Role == RoleStudent }
func (i Identity) IsTeacher() bool   { return i.Role == RoleTeacher }
func (i Identity) IsAdmin() bool     { return i.Role == RoleAdmin }
func (i Identity) IsSuperuser() bool { return i.Role == RoleSuperuser }

// HasPerm reports whether the identity holds perm. Permissions are not
// fine grained: admins and superusers hold all of them, nobody else holds any.
func (i Identity) HasPerm(perm string) bool {
	return i.Role == RoleAdmin || i.Role == RoleSuperuser
}

// HasModulePerms always reports true; there is no module level restriction.
func (i Identity) HasModulePerms(appLabel string) bool {
	return true
}

// PhoneNumberDisplay formats the stored number in international format.
// It returns nil when no number is stored and InvalidPhoneNumber when the
// stored value cannot be parsed. It never fails.
func (i Identity) PhoneNumberDisplay() *string {
	if i.PhoneNumber == nil || strings.TrimSpace(*i.PhoneNumber) == "" {
		return nil
	}
	formatted := InvalidPhoneNumber
	if num, err := parsePhoneNumber(*i.PhoneNumber); err == nil {
		formatted = phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	}
	return &formatted
}

// NormalizePhoneNumber converts raw into E.164 form. Numbers without a
// leading "+" are read as already carrying their country code.
func NormalizePhoneNumber(raw string) (string, error) {
	num, err := parsePhoneNumber(raw)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func parsePhoneNumber(raw string) (*phonenumbers.PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}
	return phonenumbers.Parse(raw, "")
}
