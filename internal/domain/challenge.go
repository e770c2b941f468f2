/**
 * @description
 * This file defines the step-up authentication challenge: the ephemeral,
 * single-use credential that must be verified before a payout-triggering
 * action is allowed to proceed. One challenge covers an entire batch of
 * payment documents, so authorizing N documents costs exactly one user
 * interaction.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthMethod is how the user proves themselves for a step-up challenge.
type AuthMethod string

const (
	AuthMethodAuthApp  AuthMethod = "authenticator_app"
	AuthMethodSMS      AuthMethod = "sms"
	AuthMethodEmail    AuthMethod = "email"
	AuthMethodPassword AuthMethod = "password"
)

// ChallengeState tracks the lifecycle of a challenge. Expiry is enforced by
// wall-clock comparison against ExpiresAt, not by a state.
type ChallengeState string

const (
	ChallengeCreated   ChallengeState = "created"
	ChallengeVerified  ChallengeState = "verified"
	ChallengeExhausted ChallengeState = "exhausted"
)

// AuthChallenge is the ephemeral credential-verification record. It lives in
// memory only; it is garbage-collected after expiry.
type AuthChallenge struct {
	ID           uuid.UUID
	UserID       string
	Method       AuthMethod
	DocumentRefs []string
	Code         string // OTP methods only; empty for password
	State        ChallengeState
	Attempts     int
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Covers reports whether docRef was part of the document set this challenge
// was generated for.
func (c *AuthChallenge) Covers(docRef string) bool {
	for _, ref := range c.DocumentRefs {
		if ref == docRef {
			return true
		}
	}
	return false
}

// ChallengeIssued is returned to the caller after Generate. The code itself
// is never included; it travels out of band.
type ChallengeIssued struct {
	ChallengeID uuid.UUID  `json:"challenge_id"`
	Method      AuthMethod `json:"method"`
	Prompt      string     `json:"prompt"`
}
