// Package validation checks submitted forms before they reach the services.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"threads/internal/models"
)

const (
	MaxNameLength     = 30
	MaxUsernameLength = 30
	MaxBioLength      = 1000
	MaxThreadLength   = 10000
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.]+$`)

// Usernames that collide with page paths.
var reservedUsernames = map[string]struct{}{
	"admin":      {},
	"api":        {},
	"onboarding": {},
	"profile":    {},
	"thread":     {},
	"search":     {},
	"activity":   {},
	"metrics":    {},
	"health":     {},
	"media":      {},
}

// ProfileForm is the onboarding / edit profile form.
type ProfileForm struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	Bio          string `json:"bio"`
	ProfilePhoto string `json:"profile_photo"`
}

// ValidateProfile trims and lowercases the form in place and returns a
// field validation error listing every invalid field.
func ValidateProfile(form *ProfileForm) error {
	form.Name = strings.TrimSpace(form.Name)
	form.Username = strings.ToLower(strings.TrimSpace(form.Username))
	form.Bio = strings.TrimSpace(form.Bio)
	form.ProfilePhoto = strings.TrimSpace(form.ProfilePhoto)

	fields := map[string]string{}

	switch {
	case form.Name == "":
		fields["name"] = "name is required"
	case utf8.RuneCountInString(form.Name) > MaxNameLength:
		fields["name"] = fmt.Sprintf("name must be at most %d characters", MaxNameLength)
	}

	if err := ValidateUsername(form.Username); err != nil {
		fields["username"] = err.Error()
	}

	if utf8.RuneCountInString(form.Bio) > MaxBioLength {
		fields["bio"] = fmt.Sprintf("bio must be at most %d characters", MaxBioLength)
	}

	if form.ProfilePhoto != "" && !IsBase64Image(form.ProfilePhoto) && !isHTTPURL(form.ProfilePhoto) {
		fields["profile_photo"] = "profile photo must be an image"
	}

	if len(fields) > 0 {
		return models.NewFieldValidationError(fields)
	}
	return nil
}

// ValidateUsername validates an already lowercased username.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return fmt.Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username may only contain letters, numbers, underscores and dots")
	}
	if _, exists := reservedUsernames[username]; exists {
		return fmt.Errorf("username is reserved")
	}
	return nil
}

// ValidateThreadText trims text and checks it is a postable thread body.
func ValidateThreadText(field, text string) (string, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", models.NewFieldValidationError(map[string]string{field: field + " is required"})
	case utf8.RuneCountInString(text) > MaxThreadLength:
		return "", models.NewFieldValidationError(map[string]string{
			field: fmt.Sprintf("%s must be at most %d characters", field, MaxThreadLength),
		})
	}
	return text, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
