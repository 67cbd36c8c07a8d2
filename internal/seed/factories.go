// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"

	"threads/internal/repository"
	"threads/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds realistic profiles and thread text.
type Factory struct {
	faker *gofakeit.Faker
	taken map[string]struct{}
}

// NewFactory returns a Factory. A zero seed picks a random one.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed), taken: map[string]struct{}{}}
}

// Profile returns a unique, valid onboarding profile.
func (f *Factory) Profile() repository.UpsertUserParams {
	first := f.faker.FirstName()
	last := f.faker.LastName()
	return repository.UpsertUserParams{
		ExternalID: "seed_" + f.faker.UUID(),
		Username:   f.username(first, last),
		Name:       truncate(first+" "+last, validation.MaxNameLength),
		Bio:        truncate(f.faker.HipsterSentence(12), validation.MaxBioLength),
		Image:      fmt.Sprintf("https://picsum.photos/seed/%s/256/256", f.faker.UUID()),
	}
}

func (f *Factory) username(first, last string) string {
	base := strings.ToLower(first + "." + last)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			return r
		}
		return -1
	}, base)
	base = truncate(base, validation.MaxUsernameLength-4)

	name := base
	for i := 0; ; i++ {
		if _, dup := f.taken[name]; !dup && validation.ValidateUsername(name) == nil {
			f.taken[name] = struct{}{}
			return name
		}
		name = fmt.Sprintf("%s_%d", base, f.faker.Number(10, 999))
		if i > 50 {
			name = "user_" + strings.ToLower(f.faker.LetterN(12))
		}
	}
}

// ThreadText returns a short post.
func (f *Factory) ThreadText() string {
	switch f.faker.Number(0, 3) {
	case 0:
		return f.faker.Question()
	case 1:
		return f.faker.Quote()
	case 2:
		return f.faker.HackerPhrase()
	default:
		return f.faker.Paragraph(1, 3, 12, " ")
	}
}

// CommentText returns a short reply.
func (f *Factory) CommentText() string {
	if f.faker.Bool() {
		return f.faker.HipsterSentence(8)
	}
	return f.faker.Phrase()
}

// Intn returns a number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
