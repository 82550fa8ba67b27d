package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vidhub/apiserver/internal/services"
	"github.com/vidhub/apiserver/types"
	"go.uber.org/zap"
)

// UserHandler provides registration and session endpoints.
type UserHandler struct {
	userService *services.UserService
	cookies     CookieConfig
	logger      *zap.Logger
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, cookies CookieConfig, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{
		userService: userService,
		cookies:     cookies,
		logger:      logger,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, cookies CookieConfig, logger *zap.Logger) {
	handler := NewUserHandler(userService, cookies, logger)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh-token", handler.RefreshToken)
	r.Group(func(r chi.Router) {
		r.Use(handler.RequireAuth)
		r.Post("/logout", handler.Logout)
		r.Get("/me", handler.Me)
	})
}

// RequireAuth verifies the access token from the accessToken cookie or the
// Authorization header and injects the user ID into the request context.
func (h *UserHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.userService, h.logger)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(userService *services.UserService, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := accessToken(r)
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized request")
				return
			}

			userID, err := userService.AuthenticateAccessToken(tokenString)
			if err != nil {
				writeServiceError(w, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// Register creates a new account from a multipart form.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRegisterBodyBytes)
	input, err := parseRegisterForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Register(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, "User registered successfully")
}

// Login verifies credentials, sets the session cookies and returns the
// tokens alongside the user.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.userService.Login(r.Context(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.setSession(w, result.TokenPair)
	writeSuccess(w, http.StatusOK, LoginResponse{
		User:         result.User,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, "User logged in successfully")
}

// Logout clears the stored refresh token and the session cookies.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := h.userService.Logout(r.Context(), userID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.clearSession(w)
	writeSuccess(w, http.StatusOK, nil, "User logged out")
}

// RefreshToken rotates the refresh token taken from the refreshToken cookie
// or the request body.
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := cookieValue(r, refreshTokenCookie)
	if presented == "" {
		var req RefreshRequest
		if err := decodeRequest(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		presented = req.RefreshToken
	}

	pair, err := h.userService.RefreshAccessToken(r.Context(), presented)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.setSession(w, pair)
	writeSuccess(w, http.StatusOK, pair, "Access token refreshed")
}

// Me returns the current authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	user, err := h.userService.CurrentUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, "Current user fetched successfully")
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	User         types.PublicUser `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
}

// decodeRequest fills dst from a JSON body, or from form values for any other
// content type. An empty body leaves dst untouched.
func decodeRequest(r *http.Request, dst any) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := r.ParseForm(); err != nil {
			return err
		}
		switch v := dst.(type) {
		case *LoginRequest:
			v.Username = r.PostFormValue("username")
			v.Email = r.PostFormValue("email")
			v.Password = r.PostFormValue("password")
		case *RefreshRequest:
			v.RefreshToken = r.PostFormValue("refreshToken")
		}
		return nil
	}

	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func accessToken(r *http.Request) string {
	if token := strings.TrimSpace(cookieValue(r, accessTokenCookie)); token != "" {
		return token
	}
	token, err := bearerToken(r)
	if err != nil {
		return ""
	}
	return token
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
