/**
 * @description
 * This file implements the step-up authentication challenge service. One
 * challenge covers a whole batch of payment documents, so a bulk submission
 * costs the user exactly one OTP or password prompt.
 *
 * Challenges are ephemeral and live in memory only: expiry is enforced by
 * wall-clock comparison on every access, and expired records are swept
 * opportunistically on Generate. Verify is safe under concurrent calls for
 * the same challenge id; only one caller can move a challenge to Verified.
 *
 * @dependencies
 * - crypto/rand, crypto/subtle, sync, time: Standard Go libraries.
 * - golang.org/x/crypto/bcrypt: Password-method verification.
 * - github.com/google/uuid: Challenge identifiers.
 */

package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
	"github.com/swiftpay/payout-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	// VerifyFailedMessage is deliberately generic: the caller must not learn
	// whether an OTP or a password was wrong.
	VerifyFailedMessage     = "Invalid! Please try again."
	VerifySucceededMessage  = "Authenticated successfully."
	ChallengeExpiredMessage = "Challenge expired! Please generate a new one."
)

// Notifier delivers OTPs out of band.
type Notifier interface {
	SendSMS(ctx context.Context, mobile, message string) error
	SendEmail(ctx context.Context, email, subject, message string) error
}

// RateLimiter bounds how often a subject may perform an action within a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// AuthenticatorVerifier checks a code from the user's authenticator app. The
// shared secret and TOTP mechanics live with the credential owner, not here.
type AuthenticatorVerifier interface {
	VerifyAuthenticatorCode(ctx context.Context, userID, code string) (bool, error)
}

// ChallengeService generates and verifies step-up challenges.
type ChallengeService struct {
	repo     store.Repository
	notifier Notifier

	limiter       RateLimiter
	limitPerMin   int
	authenticator AuthenticatorVerifier

	ttl         time.Duration
	maxAttempts int

	mu         sync.Mutex
	challenges map[uuid.UUID]*domain.AuthChallenge

	now     func() time.Time
	genCode func() (string, error)
}

// NewChallengeService creates a challenge service with the given TTL and
// attempt budget.
func NewChallengeService(repo store.Repository, notifier Notifier, ttl time.Duration, maxAttempts int) *ChallengeService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ChallengeService{
		repo:        repo,
		notifier:    notifier,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		challenges:  make(map[uuid.UUID]*domain.AuthChallenge),
		now:         time.Now,
		genCode:     generateOTP,
	}
}

// SetRateLimiter enables distributed rate limiting on Generate.
func (s *ChallengeService) SetRateLimiter(limiter RateLimiter, perMinute int) {
	s.limiter = limiter
	s.limitPerMin = perMinute
}

// SetAuthenticatorVerifier wires the external verifier for authenticator-app
// codes.
func (s *ChallengeService) SetAuthenticatorVerifier(v AuthenticatorVerifier) {
	s.authenticator = v
}

// generateOTP returns a 6-digit code from crypto/rand.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Generate creates one challenge covering all supplied document references.
// The method follows the user's two-factor configuration, falling back to
// password authentication when two-factor is disabled. OTP methods deliver
// exactly one message for the whole batch.
func (s *ChallengeService) Generate(ctx context.Context, userID string, docRefs []string) (*domain.ChallengeIssued, error) {
	if len(docRefs) == 0 {
		return nil, errors.New("at least one document reference is required")
	}

	if s.limiter != nil && s.limitPerMin > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "auth_challenge", userID, s.limitPerMin, time.Minute)
		if err != nil {
			log.Printf("level=warn component=auth_challenge msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		} else if count > s.limitPerMin {
			log.Printf("level=warn component=auth_challenge msg=\"challenge generation rate limited\" user_id=%s retry_after=%d", userID, retryAfter)
			return nil, ErrChallengeRateLimited
		}
	}

	method, enabled, err := s.repo.GetTwoFactorMethod(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read two-factor settings: %w", err)
	}
	if !enabled {
		method = domain.AuthMethodPassword
	}

	now := s.now()
	challenge := &domain.AuthChallenge{
		ID:           uuid.New(),
		UserID:       userID,
		Method:       method,
		DocumentRefs: append([]string(nil), docRefs...),
		State:        domain.ChallengeCreated,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	var prompt string
	switch method {
	case domain.AuthMethodSMS, domain.AuthMethodEmail:
		code, err := s.genCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate otp: %w", err)
		}
		challenge.Code = code
		if method == domain.AuthMethodSMS {
			prompt = "Please enter the OTP sent to your mobile number"
		} else {
			prompt = "Please enter the OTP sent to your email address"
		}
	case domain.AuthMethodAuthApp:
		prompt = "Please enter the code shown in your authenticator app"
	default:
		challenge.Method = domain.AuthMethodPassword
		prompt = "Please enter your password to continue"
	}

	s.mu.Lock()
	s.sweepExpiredLocked(now)
	s.challenges[challenge.ID] = challenge
	s.mu.Unlock()

	// Delivery happens outside the lock; a slow notifier must not block
	// concurrent Verify calls.
	if challenge.Code != "" {
		if err := s.deliverOTP(ctx, userID, challenge.Method, challenge.Code); err != nil {
			s.mu.Lock()
			delete(s.challenges, challenge.ID)
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to deliver otp: %w", err)
		}
	}

	log.Printf("level=info component=auth_challenge msg=\"challenge generated\" challenge_id=%s method=%s documents=%d", challenge.ID, challenge.Method, len(docRefs))

	return &domain.ChallengeIssued{
		ChallengeID: challenge.ID,
		Method:      challenge.Method,
		Prompt:      prompt,
	}, nil
}

func (s *ChallengeService) deliverOTP(ctx context.Context, userID string, method domain.AuthMethod, code string) error {
	mobile, email, err := s.repo.GetUserContact(ctx, userID)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Your payout authorization code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	switch method {
	case domain.AuthMethodSMS:
		if mobile == "" {
			return errors.New("no mobile number on record for otp delivery")
		}
		return s.notifier.SendSMS(ctx, mobile, message)
	case domain.AuthMethodEmail:
		if email == "" {
			return errors.New("no email address on record for otp delivery")
		}
		return s.notifier.SendEmail(ctx, email, "Payout authorization code", message)
	}
	return nil
}

// Verify checks the submitted value against the challenge. It is safe for
// concurrent calls on the same challenge id: the Created→Verified transition
// happens exactly once, under the service lock. A consumed or expired
// challenge always verifies false.
func (s *ChallengeService) Verify(ctx context.Context, challengeID uuid.UUID, value string) (bool, string) {
	s.mu.Lock()
	challenge, ok := s.challenges[challengeID]
	if !ok {
		s.mu.Unlock()
		return false, ChallengeExpiredMessage
	}
	if challenge.State != domain.ChallengeCreated || s.now().After(challenge.ExpiresAt) {
		s.mu.Unlock()
		return false, ChallengeExpiredMessage
	}
	method := challenge.Method
	code := challenge.Code
	userID := challenge.UserID
	s.mu.Unlock()

	// Credential comparison runs outside the lock: bcrypt is CPU-heavy and
	// the authenticator verifier may do I/O.
	matched, err := s.compareCredential(ctx, userID, method, code, value)
	if err != nil {
		log.Printf("level=error component=auth_challenge msg=\"credential comparison failed\" challenge_id=%s method=%s err=%v", challengeID, method, err)
		return false, VerifyFailedMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: another caller may have consumed or exhausted
	// the challenge while we were comparing.
	if challenge.State != domain.ChallengeCreated || s.now().After(challenge.ExpiresAt) {
		return false, ChallengeExpiredMessage
	}

	if !matched {
		challenge.Attempts++
		// Internal logs keep the method; the caller only sees the generic message.
		log.Printf("level=warn component=auth_challenge msg=\"verification failed\" challenge_id=%s method=%s attempts=%d", challengeID, method, challenge.Attempts)
		if challenge.Attempts >= s.maxAttempts {
			challenge.State = domain.ChallengeExhausted
			return false, ChallengeExpiredMessage
		}
		return false, VerifyFailedMessage
	}

	challenge.State = domain.ChallengeVerified
	log.Printf("level=info component=auth_challenge msg=\"challenge verified\" challenge_id=%s method=%s", challengeID, method)
	return true, VerifySucceededMessage
}

func (s *ChallengeService) compareCredential(ctx context.Context, userID string, method domain.AuthMethod, code, value string) (bool, error) {
	switch method {
	case domain.AuthMethodSMS, domain.AuthMethodEmail:
		return subtle.ConstantTimeCompare([]byte(code), []byte(value)) == 1, nil
	case domain.AuthMethodAuthApp:
		if s.authenticator == nil {
			return false, errors.New("authenticator verifier not configured")
		}
		return s.authenticator.VerifyAuthenticatorCode(ctx, userID, value)
	case domain.AuthMethodPassword:
		hash, err := s.repo.GetPasswordHash(ctx, userID)
		if err != nil {
			return false, err
		}
		compareErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(value))
		if compareErr != nil {
			if errors.Is(compareErr, bcrypt.ErrMismatchedHashAndPassword) {
				return false, nil
			}
			return false, compareErr
		}
		return true, nil
	}
	return false, fmt.Errorf("unsupported auth method %q", method)
}

// Authorized reports whether a verified, unexpired challenge for this user
// covers the given document. The orchestrator calls this with the token the
// client attached to a submit request. The TTL applies independently of
// verification, so a verified token also goes stale.
func (s *ChallengeService) Authorized(challengeID uuid.UUID, userID, docRef string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[challengeID]
	if !ok {
		return false
	}
	if challenge.State != domain.ChallengeVerified {
		return false
	}
	if s.now().After(challenge.ExpiresAt) {
		return false
	}
	if challenge.UserID != userID {
		return false
	}
	return challenge.Covers(docRef)
}

// sweepExpiredLocked drops records past their TTL. Correctness never depends
// on this; expiry is always re-checked by wall clock.
func (s *ChallengeService) sweepExpiredLocked(now time.Time) {
	for id, c := range s.challenges {
		if now.After(c.ExpiresAt) {
			delete(s.challenges, id)
		}
	}
}
