package service

import (
	"context"
	"log/slog"

	"threads/internal/cache"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/upload"
	"threads/internal/validation"
)

// Navigation tells the UI where to go after a successful submission.
type Navigation struct {
	Action string `json:"action"`
	To     string `json:"to,omitempty"`
}

const (
	NavigateBack     = "back"
	NavigateRedirect = "redirect"
)

// ProfileSubmission is the onboarding or edit profile form as submitted.
type ProfileSubmission struct {
	ExternalID string
	Form       validation.ProfileForm
	// Path is the page the form lives on: /onboarding or /profile/edit.
	Path string
}

type ProfileResult struct {
	User       *models.User `json:"user"`
	Navigation Navigation   `json:"navigation"`
}

// ProfileWorkflow validates a profile form, uploads a newly picked photo
// and saves the profile.
type ProfileWorkflow struct {
	users    *UserService
	uploader upload.Uploader
}

func NewProfileWorkflow(users *UserService, uploader upload.Uploader) *ProfileWorkflow {
	return &ProfileWorkflow{users: users, uploader: uploader}
}

func (w *ProfileWorkflow) Submit(ctx context.Context, sub ProfileSubmission) (*ProfileResult, error) {
	form := sub.Form
	if err := validation.ValidateProfile(&form); err != nil {
		return nil, err
	}

	image := form.ProfilePhoto
	if validation.IsBase64Image(image) {
		url, err := w.uploadPhoto(ctx, image)
		if err != nil {
			return nil, err
		}
		image = url
	}

	user, err := w.users.UpdateUser(ctx, UpdateUserInput{
		ExternalID: sub.ExternalID,
		Username:   form.Username,
		Name:       form.Name,
		Bio:        form.Bio,
		Image:      image,
		Path:       sub.Path,
	})
	if err != nil {
		return nil, err
	}

	nav := Navigation{Action: NavigateRedirect, To: cache.FeedPath}
	if sub.Path == cache.ProfileEditPath {
		nav = Navigation{Action: NavigateBack}
	}
	return &ProfileResult{User: user, Navigation: nav}, nil
}

func (w *ProfileWorkflow) uploadPhoto(ctx context.Context, dataURL string) (string, error) {
	content, contentType, err := validation.DecodeDataURL(dataURL)
	if err != nil {
		return "", models.NewFieldValidationError(map[string]string{"profile_photo": err.Error()})
	}

	results, err := w.uploader.Upload(ctx, upload.PolicyMedia, []upload.File{{
		Name:        "profile_photo",
		ContentType: contentType,
		Content:     content,
	}})
	if err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].URL == "" {
		middleware.Logger.ErrorContext(ctx, "Upload returned no URL", slog.Int("results", len(results)))
		return "", models.NewUploadError("image upload returned no URL", nil)
	}
	return results[0].URL, nil
}

// ThreadSubmission is the create thread form.
type ThreadSubmission struct {
	ExternalID  string
	Text        string
	CommunityID *string
	Path        string
}

type ThreadResult struct {
	Thread     *models.Thread `json:"thread"`
	Navigation Navigation     `json:"navigation"`
}

// ThreadWorkflow posts a new top-level thread for an onboarded author.
type ThreadWorkflow struct {
	users   *UserService
	threads *ThreadService
}

func NewThreadWorkflow(users *UserService, threads *ThreadService) *ThreadWorkflow {
	return &ThreadWorkflow{users: users, threads: threads}
}

func (w *ThreadWorkflow) Submit(ctx context.Context, sub ThreadSubmission) (*ThreadResult, error) {
	text, err := validation.ValidateThreadText("thread", sub.Text)
	if err != nil {
		return nil, err
	}

	author, err := onboardedAuthor(ctx, w.users, sub.ExternalID)
	if err != nil {
		return nil, err
	}

	thread, err := w.threads.CreateThread(ctx, CreateThreadInput{
		Text:        text,
		AuthorID:    author.ID,
		CommunityID: sub.CommunityID,
		Path:        sub.Path,
	})
	if err != nil {
		return nil, err
	}
	return &ThreadResult{Thread: thread, Navigation: Navigation{Action: NavigateRedirect, To: cache.FeedPath}}, nil
}

// CommentSubmission is the reply form under a thread.
type CommentSubmission struct {
	ExternalID string
	ThreadID   uint
	Text       string
}

// CommentWorkflow replies to a thread and refreshes its page.
type CommentWorkflow struct {
	users   *UserService
	threads *ThreadService
}

func NewCommentWorkflow(users *UserService, threads *ThreadService) *CommentWorkflow {
	return &CommentWorkflow{users: users, threads: threads}
}

func (w *CommentWorkflow) Submit(ctx context.Context, sub CommentSubmission) (*models.Thread, error) {
	text, err := validation.ValidateThreadText("thread", sub.Text)
	if err != nil {
		return nil, err
	}

	author, err := onboardedAuthor(ctx, w.users, sub.ExternalID)
	if err != nil {
		return nil, err
	}

	return w.threads.AddComment(ctx, AddCommentInput{
		ThreadID: sub.ThreadID,
		Text:     text,
		AuthorID: author.ID,
		Path:     cache.ThreadPath(sub.ThreadID),
	})
}

func onboardedAuthor(ctx context.Context, users *UserService, externalID string) (*models.User, error) {
	author, err := users.FetchUser(ctx, externalID)
	if models.IsNotFound(err) {
		return nil, models.NewOnboardingRequiredError()
	}
	if err != nil {
		return nil, err
	}
	if !author.Onboarded {
		return nil, models.NewOnboardingRequiredError()
	}
	return author, nil
}
