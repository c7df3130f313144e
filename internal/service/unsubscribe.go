package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// UnsubscribeClaims identify the contact an unsubscribe link was issued to.
type UnsubscribeClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UnsubscribeTokens signs and verifies unsubscribe link tokens. Tokens do
// not expire since they live in delivered emails.
type UnsubscribeTokens struct {
	secret []byte
}

func NewUnsubscribeTokens(secret string) *UnsubscribeTokens {
	return &UnsubscribeTokens{secret: []byte(secret)}
}

func (t *UnsubscribeTokens) Issue(contactID int, email string) (string, error) {
	claims := UnsubscribeClaims{
		Email: model.NormalizeEmail(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.Itoa(contactID),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign unsubscribe token: %w", err)
	}
	return signed, nil
}

// Verify returns the contact id and email carried by a valid token.
func (t *UnsubscribeTokens) Verify(token string) (int, string, error) {
	parsed, err := jwt.ParseWithClaims(token, &UnsubscribeClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", appErrors.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*UnsubscribeClaims)
	if !ok || !parsed.Valid {
		return 0, "", appErrors.ErrInvalidToken
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 || claims.Email == "" {
		return 0, "", appErrors.ErrInvalidToken
	}
	return id, claims.Email, nil
}

// UnsubscribeURL builds the public link placed in every email footer.
func UnsubscribeURL(appURL, token string) string {
	return strings.TrimRight(appURL, "/") + "/unsubscribe/" + token
}

type UnsubscribeStatus struct {
	Email               string `json:"email"`
	AlreadyUnsubscribed bool   `json:"alreadyUnsubscribed"`
}

// UnsubscribeService backs the public unsubscribe page.
type UnsubscribeService struct {
	ContactRepo repository.ContactRepositoryInterface
	Tokens      *UnsubscribeTokens
	Now         func() time.Time
}

func (s *UnsubscribeService) resolve(ctx context.Context, token string) (*model.Contact, error) {
	id, email, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	contact, err := s.ContactRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// a token outlives an email change on the contact
	if contact.Email != email {
		return nil, appErrors.NewContactNotFound(email)
	}
	return contact, nil
}

func (s *UnsubscribeService) Status(ctx context.Context, token string) (*UnsubscribeStatus, error) {
	contact, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &UnsubscribeStatus{Email: contact.Email, AlreadyUnsubscribed: contact.UnsubscribedAt != nil}, nil
}

// Confirm stamps unsubscribed_at. Repeating it only refreshes the timestamp.
func (s *UnsubscribeService) Confirm(ctx context.Context, token string) (string, error) {
	contact, err := s.resolve(ctx, token)
	if err != nil {
		return "", err
	}
	if err := s.ContactRepo.Unsubscribe(ctx, contact.ID, s.now()); err != nil {
		return "", err
	}
	return contact.Email, nil
}

func (s *UnsubscribeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IsInvalidToken reports whether err came from token verification.
func IsInvalidToken(err error) bool {
	return errors.Is(err, appErrors.ErrInvalidToken)
}
