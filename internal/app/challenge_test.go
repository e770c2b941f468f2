package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/swiftpay/payout-service/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func newChallengeService(repo *stubRepository, notifier *stubNotifier) *ChallengeService {
	svc := NewChallengeService(repo, notifier, 5*time.Minute, 3)
	svc.genCode = func() (string, error) { return "424242", nil }
	return svc
}

func TestChallengeGenerate_OneOTPForWholeBatch(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newChallengeService(&stubRepository{}, notifier)

	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001", "PE-0002", "PE-0003"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if issued.Method != domain.AuthMethodSMS {
		t.Errorf("expected sms method, got %q", issued.Method)
	}
	if notifier.smsCount != 1 {
		t.Errorf("a batch of 3 documents must cost exactly one SMS, got %d", notifier.smsCount)
	}
	if !strings.Contains(notifier.lastSMS, "424242") {
		t.Errorf("OTP missing from delivered message: %q", notifier.lastSMS)
	}
}

func TestChallengeGenerate_FallsBackToPassword(t *testing.T) {
	notifier := &stubNotifier{}
	repo := &stubRepository{
		getTwoFactorFn: func(ctx context.Context, userID string) (domain.AuthMethod, bool, error) {
			return "", false, nil
		},
	}
	svc := newChallengeService(repo, notifier)

	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if issued.Method != domain.AuthMethodPassword {
		t.Errorf("expected password fallback, got %q", issued.Method)
	}
	if notifier.smsCount != 0 || notifier.emailCount != 0 {
		t.Error("password method must not deliver any OTP")
	}
}

func TestChallengeVerify_SingleUse(t *testing.T) {
	svc := newChallengeService(&stubRepository{}, &stubNotifier{})
	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	ok, _ := svc.Verify(context.Background(), issued.ChallengeID, "424242")
	if !ok {
		t.Fatal("first verification with the correct code must succeed")
	}
	ok, msg := svc.Verify(context.Background(), issued.ChallengeID, "424242")
	if ok {
		t.Fatal("a consumed challenge must not verify again")
	}
	if msg != ChallengeExpiredMessage {
		t.Errorf("replay should read as expired, got %q", msg)
	}
}

func TestChallengeVerify_ConcurrentOnlyOneSucceeds(t *testing.T) {
	svc := newChallengeService(&stubRepository{}, &stubNotifier{})
	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := svc.Verify(context.Background(), issued.ChallengeID, "424242")
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for ok := range results {
		if ok {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one concurrent verification must succeed, got %d", succeeded)
	}
}

func TestChallengeVerify_ExhaustsAfterMaxAttempts(t *testing.T) {
	svc := newChallengeService(&stubRepository{}, &stubNotifier{})
	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, msg := svc.Verify(context.Background(), issued.ChallengeID, "000000")
		if ok {
			t.Fatal("wrong code must not verify")
		}
		if msg != VerifyFailedMessage {
			t.Errorf("attempt %d should return the generic failure message, got %q", i+1, msg)
		}
	}

	// Third wrong attempt exhausts the challenge.
	if ok, _ := svc.Verify(context.Background(), issued.ChallengeID, "000000"); ok {
		t.Fatal("wrong code must not verify")
	}

	// The correct code is now useless.
	ok, msg := svc.Verify(context.Background(), issued.ChallengeID, "424242")
	if ok {
		t.Fatal("an exhausted challenge must not verify even with the correct code")
	}
	if msg != ChallengeExpiredMessage {
		t.Errorf("exhausted challenge should read as expired, got %q", msg)
	}
}

func TestChallengeVerify_ExpiresByWallClock(t *testing.T) {
	svc := newChallengeService(&stubRepository{}, &stubNotifier{})
	current := time.Now()
	svc.now = func() time.Time { return current }

	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	current = current.Add(5*time.Minute + time.Second)
	ok, msg := svc.Verify(context.Background(), issued.ChallengeID, "424242")
	if ok {
		t.Fatal("an expired challenge must not verify")
	}
	if msg != ChallengeExpiredMessage {
		t.Errorf("expected expiry message, got %q", msg)
	}
}

func TestChallengeVerify_PasswordMethod(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test password: %v", err)
	}
	repo := &stubRepository{
		getTwoFactorFn: func(ctx context.Context, userID string) (domain.AuthMethod, bool, error) {
			return "", false, nil
		},
		getPasswordHashFn: func(ctx context.Context, userID string) (string, error) {
			return string(hash), nil
		},
	}
	svc := newChallengeService(repo, &stubNotifier{})

	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	ok, msg := svc.Verify(context.Background(), issued.ChallengeID, "wrong-pass")
	if ok {
		t.Fatal("wrong password must not verify")
	}
	if msg != VerifyFailedMessage {
		t.Errorf("wrong password must return the generic message, got %q", msg)
	}

	ok, _ = svc.Verify(context.Background(), issued.ChallengeID, "s3cret-pass")
	if !ok {
		t.Fatal("correct password must verify")
	}
}

func TestChallengeAuthorized_ScopedToUserAndDocuments(t *testing.T) {
	svc := newChallengeService(&stubRepository{}, &stubNotifier{})
	issued, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001", "PE-0002"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if svc.Authorized(issued.ChallengeID, "user-1", "PE-0001") {
		t.Error("an unverified challenge must not authorize")
	}

	if ok, _ := svc.Verify(context.Background(), issued.ChallengeID, "424242"); !ok {
		t.Fatal("verification failed unexpectedly")
	}

	if !svc.Authorized(issued.ChallengeID, "user-1", "PE-0002") {
		t.Error("a verified challenge must cover every document in its batch")
	}
	if svc.Authorized(issued.ChallengeID, "user-1", "PE-0003") {
		t.Error("a challenge must not cover documents outside its batch")
	}
	if svc.Authorized(issued.ChallengeID, "user-2", "PE-0001") {
		t.Error("a challenge must not authorize a different user")
	}
	if svc.Authorized(uuid.New(), "user-1", "PE-0001") {
		t.Error("an unknown challenge id must not authorize")
	}
}

type countingLimiter struct {
	count int
}

func (l *countingLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.count++
	return l.count, 30, nil
}

func TestChallengeGenerate_RateLimited(t *testing.T) {
	svc := newChallengeService(&stubRepository{}, &stubNotifier{})
	svc.SetRateLimiter(&countingLimiter{}, 2)

	for i := 0; i < 2; i++ {
		if _, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"}); err != nil {
			t.Fatalf("request %d should be allowed: %v", i+1, err)
		}
	}
	_, err := svc.Generate(context.Background(), "user-1", []string{"PE-0001"})
	if err != ErrChallengeRateLimited {
		t.Fatalf("expected ErrChallengeRateLimited, got %v", err)
	}
}
