package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/vidhub/apiserver/internal/events"
	"github.com/vidhub/apiserver/internal/media"
	"github.com/vidhub/apiserver/internal/store"
	"github.com/vidhub/apiserver/types"
	"go.uber.org/zap"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetPublicByID(ctx context.Context, id string) (types.PublicUser, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	// ReplaceRefreshToken swaps current for next only while current is still
	// the stored token, returning store.ErrNotFound otherwise.
	ReplaceRefreshToken(ctx context.Context, id, current, next string) error
}

// MediaUploader stores profile images and returns their public URL.
type MediaUploader interface {
	Upload(ctx context.Context, folder string, f media.File) (media.Object, error)
	Remove(ctx context.Context, key string) error
}

// RegisterInput is a new-account request. Avatar is required, CoverImage is not.
type RegisterInput struct {
	Username   string
	Fullname   string
	Email      string
	Password   string
	Avatar     *media.File
	CoverImage *media.File
}

// LoginInput identifies the account by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User types.PublicUser
	TokenPair
}

// UserService implements registration and the session lifecycle: login,
// logout and refresh-token rotation.
type UserService struct {
	repo     UserRepository
	tokens   *TokenIssuer
	uploader MediaUploader
	events   events.Publisher
	logger   *zap.Logger
}

func NewUserService(repo UserRepository, tokens *TokenIssuer, uploader MediaUploader, publisher events.Publisher, logger *zap.Logger) *UserService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		uploader: uploader,
		events:   publisher,
		logger:   logger,
	}
}

// Register validates the input, uploads the profile images and creates the
// account. The stored username is lowercase.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.PublicUser, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Fullname = strings.TrimSpace(in.Fullname)
	in.Email = strings.TrimSpace(in.Email)

	if errs := validateRegistration(in); errs.HasErrors() {
		return types.PublicUser{}, validationError("invalid registration data", errs)
	}

	username := strings.ToLower(in.Username)
	email := strings.ToLower(in.Email)

	if _, err := s.repo.FindByUsernameOrEmail(ctx, username, email); err == nil {
		return types.PublicUser{}, conflictError("user with email or username already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.PublicUser{}, internalError("failed to check user", err)
	}

	if in.Avatar == nil || len(in.Avatar.Data) == 0 {
		return types.PublicUser{}, validationError("avatar file is required", map[string]string{"avatar": "avatar file is required"})
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return types.PublicUser{}, internalError("failed to hash password", err)
	}

	avatar, err := s.uploader.Upload(ctx, media.FolderAvatars, *in.Avatar)
	if err != nil {
		s.logger.Warn("avatar upload failed", zap.String("username", username), zap.Error(err))
		return types.PublicUser{}, validationError("avatar upload failed", map[string]string{"avatar": "avatar upload failed"})
	}
	uploaded := []string{avatar.Key}

	var cover media.Object
	if in.CoverImage != nil && len(in.CoverImage.Data) > 0 {
		cover, err = s.uploader.Upload(ctx, media.FolderCovers, *in.CoverImage)
		if err != nil {
			s.logger.Warn("cover image upload failed, continuing without it", zap.String("username", username), zap.Error(err))
			cover = media.Object{}
		} else {
			uploaded = append(uploaded, cover.Key)
		}
	}

	created, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		Fullname:     in.Fullname,
		Avatar:       avatar.URL,
		CoverImage:   cover.URL,
		PasswordHash: hash,
	})
	if err != nil {
		s.discardUploads(ctx, uploaded)
		if errors.Is(err, store.ErrConflict) {
			return types.PublicUser{}, conflictError("user with email or username already exists")
		}
		return types.PublicUser{}, internalError("failed to create user", err)
	}

	user, err := s.repo.GetPublicByID(ctx, created.ID)
	if err != nil {
		return types.PublicUser{}, internalError("something went wrong while registering the user", err)
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeUserRegistered, UserID: user.ID})
	return user, nil
}

// Login verifies the credentials, issues a token pair and stores the new
// refresh token on the account.
func (s *UserService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := normalizeIdentifier(in.Username)
	email := normalizeIdentifier(in.Email)
	if username == "" && email == "" {
		return LoginResult{}, validationError("username or email is required", map[string]string{
			"username": "username or email is required",
		})
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, notFoundError("user does not exist")
		}
		return LoginResult{}, internalError("failed to load user", err)
	}

	if !checkPassword(user.PasswordHash, in.Password) {
		return LoginResult{}, unauthorizedError("invalid user credentials", nil)
	}

	pair, err := s.issueTokens(ctx, user.ID, "")
	if err != nil {
		return LoginResult{}, err
	}

	public, err := s.repo.GetPublicByID(ctx, user.ID)
	if err != nil {
		return LoginResult{}, internalError("failed to load user", err)
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeUserLoggedIn, UserID: user.ID})
	return LoginResult{User: public, TokenPair: pair}, nil
}

// Logout clears the stored refresh token of an authenticated user. Logging out
// twice, or after the account vanished, is not an error.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
		return internalError("failed to clear session", err)
	}
	s.events.Publish(ctx, events.Event{Type: events.TypeUserLoggedOut, UserID: userID})
	return nil
}

// RefreshAccessToken exchanges a valid refresh token for a new pair. The
// presented token must be the one currently stored on the account, so each
// refresh token can be used once.
func (s *UserService) RefreshAccessToken(ctx context.Context, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return TokenPair{}, unauthorizedError("unauthorized request", nil)
	}

	userID, err := s.tokens.ParseRefresh(presented)
	if err != nil {
		return TokenPair{}, unauthorizedError("invalid refresh token", err)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, unauthorizedError("invalid refresh token", err)
		}
		return TokenPair{}, internalError("failed to load user", err)
	}

	if !sameToken(user.RefreshToken, presented) {
		return TokenPair{}, unauthorizedError("refresh token is expired or used", nil)
	}

	pair, err := s.issueTokens(ctx, user.ID, presented)
	if err != nil {
		return TokenPair{}, err
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeTokenRefreshed, UserID: user.ID})
	return pair, nil
}

// CurrentUser returns the sanitized record of an authenticated user.
func (s *UserService) CurrentUser(ctx context.Context, userID string) (types.PublicUser, error) {
	user, err := s.repo.GetPublicByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.PublicUser{}, unauthorizedError("invalid access token", err)
		}
		return types.PublicUser{}, internalError("failed to load user", err)
	}
	return user, nil
}

// AuthenticateAccessToken verifies an access token and returns its subject.
func (s *UserService) AuthenticateAccessToken(token string) (string, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return "", unauthorizedError("invalid access token", err)
	}
	return claims.Subject, nil
}

// issueTokens signs a pair for userID and persists its refresh token. When
// previous is set the write only succeeds if previous is still stored.
func (s *UserService) issueTokens(ctx context.Context, userID, previous string) (TokenPair, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return TokenPair{}, internalError("something went wrong while generating tokens", err)
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return TokenPair{}, internalError("something went wrong while generating tokens", err)
	}

	if previous == "" {
		err = s.repo.SetRefreshToken(ctx, user.ID, pair.RefreshToken)
	} else {
		err = s.repo.ReplaceRefreshToken(ctx, user.ID, previous, pair.RefreshToken)
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, unauthorizedError("refresh token is expired or used", err)
		}
	}
	if err != nil {
		return TokenPair{}, internalError("something went wrong while generating tokens", err)
	}
	return pair, nil
}

func (s *UserService) discardUploads(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.uploader.Remove(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("key", key), zap.Error(err))
		}
	}
}

func sameToken(stored, presented string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
