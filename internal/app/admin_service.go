package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/pkg/jwtutil"
	"whatsapp-pdf-assistant/internal/repository"
)

const adminRole = "admin"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCredential = errors.New("invalid admin credential")
	ErrNotFound          = errors.New("not found")
)

// AdminService backs the administrative API: credential checks and the
// feedback and bug report queues.
type AdminService struct {
	feedbackRepo  *repository.FeedbackRepository
	secret        string
	secretHash    string
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewAdminService(feedbackRepo *repository.FeedbackRepository, secret, secretHash, jwtSecret string, jwtExpiration time.Duration) *AdminService {
	if jwtExpiration <= 0 {
		jwtExpiration = time.Hour
	}
	return &AdminService{
		feedbackRepo:  feedbackRepo,
		secret:        secret,
		secretHash:    secretHash,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// VerifySecret checks a presented admin key. A configured bcrypt hash takes
// precedence over the plain secret.
func (s *AdminService) VerifySecret(presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	if s.secretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.secretHash), []byte(presented)) == nil
	}
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.secret), []byte(presented)) == 1
}

type AdminToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *AdminService) IssueToken(secret string) (*AdminToken, error) {
	if !s.VerifySecret(secret) {
		return nil, ErrInvalidCredential
	}
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, adminRole, adminRole)
	if err != nil {
		return nil, err
	}
	return &AdminToken{Token: token, ExpiresAt: time.Now().Add(s.jwtExpiration)}, nil
}

func (s *AdminService) VerifyToken(token string) error {
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return ErrInvalidCredential
	}
	if claims.Role != adminRole {
		return ErrInvalidCredential
	}
	return nil
}

func (s *AdminService) ListFeedback(ctx context.Context, limit, offset int) ([]model.Feedback, error) {
	return s.feedbackRepo.ListFeedback(ctx, limit, offset)
}

func (s *AdminService) ListBugReports(ctx context.Context, status string, limit, offset int) ([]model.BugReport, error) {
	st := model.BugReportStatus(strings.TrimSpace(status))
	if st != "" && !st.Valid() {
		return nil, ErrInvalidInput
	}
	return s.feedbackRepo.ListBugReports(ctx, st, limit, offset)
}

func (s *AdminService) UpdateBugReportStatus(ctx context.Context, id uint, status string) (*model.BugReport, error) {
	st := model.BugReportStatus(strings.TrimSpace(status))
	if id == 0 || !st.Valid() {
		return nil, ErrInvalidInput
	}
	report, err := s.feedbackRepo.UpdateBugReportStatus(ctx, id, st)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, ErrNotFound
	}
	return report, nil
}
