package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codebyjuno/slotcal/internal/apperror"
	"github.com/codebyjuno/slotcal/internal/captcha"
	"github.com/codebyjuno/slotcal/internal/ephemeral"
	"github.com/codebyjuno/slotcal/internal/session"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn      func(ctx context.Context, user *User) error
	findByIDFn    func(ctx context.Context, id string) (*User, error)
	findByEmailFn func(ctx context.Context, email string) (*User, error)
	emailExistsFn func(ctx context.Context, email string) (bool, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, nil
}

// memoryUserRepo is a map-backed fake for end-to-end workflow tests.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*User // keyed by id
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*User)}
}

func (m *memoryUserRepo) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperror.NewConflict("email already registered")
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memoryUserRepo) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *memoryUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *memoryUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(context.Background(), email)
	return err == nil, nil
}

// --- Test fixture ---

type fixture struct {
	svc           AuthService
	captchaSvc    *captcha.Service
	captchaStore  *ephemeral.MemoryStore[string]
	pendingRegs   *ephemeral.MemoryStore[PendingRegistration]
	pendingLogins *ephemeral.MemoryStore[PendingLogin]
	sessions      *session.Registry
}

func newFixture(t *testing.T, repo UserRepository) *fixture {
	t.Helper()

	captchaStore := ephemeral.NewMemoryStore[string](0)
	pendingRegs := ephemeral.NewMemoryStore[PendingRegistration](0)
	pendingLogins := ephemeral.NewMemoryStore[PendingLogin](0)
	sessionStore := ephemeral.NewMemoryStore[session.Session](0)
	t.Cleanup(func() {
		_ = captchaStore.Close()
		_ = pendingRegs.Close()
		_ = pendingLogins.Close()
		_ = sessionStore.Close()
	})

	captchaSvc := captcha.NewService(captchaStore, time.Minute)
	sessions := session.NewRegistry(sessionStore, 0)

	return &fixture{
		svc: NewAuthService(repo, captchaSvc, sessions,
			pendingRegs, pendingLogins, 15*time.Minute, 5*time.Minute),
		captchaSvc:    captchaSvc,
		captchaStore:  captchaStore,
		pendingRegs:   pendingRegs,
		pendingLogins: pendingLogins,
		sessions:      sessions,
	}
}

// solvedCaptcha issues a challenge and returns its id plus the solution.
func (f *fixture) solvedCaptcha(t *testing.T) (string, string) {
	t.Helper()
	ch, err := f.captchaSvc.New(context.Background())
	if err != nil {
		t.Fatalf("issuing captcha: %v", err)
	}
	solution, ok, _ := f.captchaStore.Get(context.Background(), ch.ID)
	if !ok {
		t.Fatal("captcha solution not stored")
	}
	return ch.ID, solution
}

// registeredUser runs both registration stages and returns the stored user.
func (f *fixture) registeredUser(t *testing.T, repo *memoryUserRepo, email, password string, answers [3]string) *User {
	t.Helper()
	ctx := context.Background()

	regID, err := f.svc.RegisterStage1(ctx, RegisterStage1Request{
		Name: "A", Email: email, Password: password, ConfirmPassword: password,
	})
	if err != nil {
		t.Fatalf("stage 1: %v", err)
	}

	qa := make([]QuestionAnswer, 3)
	for i := range qa {
		qa[i] = QuestionAnswer{Question: Questions[i], Answer: answers[i]}
	}
	if err := f.svc.RegisterStage2(ctx, RegisterStage2Request{RegistrationID: regID, Answers: qa}); err != nil {
		t.Fatalf("stage 2: %v", err)
	}

	user, err := repo.FindByEmail(ctx, email)
	if err != nil {
		t.Fatalf("finding registered user: %v", err)
	}
	return user
}

// --- Registration stage 1 ---

func TestRegisterStage1Validation(t *testing.T) {
	f := newFixture(t, &mockUserRepo{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterStage1Request
	}{
		{"missing name", RegisterStage1Request{Email: "a@x.com", Password: "p", ConfirmPassword: "p"}},
		{"missing email", RegisterStage1Request{Name: "A", Password: "p", ConfirmPassword: "p"}},
		{"missing password", RegisterStage1Request{Name: "A", Email: "a@x.com", ConfirmPassword: "p"}},
		{"missing confirmation", RegisterStage1Request{Name: "A", Email: "a@x.com", Password: "p"}},
		{"mismatched passwords", RegisterStage1Request{Name: "A", Email: "a@x.com", Password: "p", ConfirmPassword: "q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterStage1(ctx, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperror.SafeCode(err) != 400 {
				t.Errorf("code = %d, want 400", apperror.SafeCode(err))
			}
		})
	}
}

func TestRegisterStage1EmailTaken(t *testing.T) {
	repo := &mockUserRepo{
		emailExistsFn: func(_ context.Context, email string) (bool, error) {
			return email == "taken@x.com", nil
		},
	}
	f := newFixture(t, repo)

	_, err := f.svc.RegisterStage1(context.Background(), RegisterStage1Request{
		Name: "A", Email: "Taken@X.com", Password: "p", ConfirmPassword: "p",
	})
	if err == nil {
		t.Fatal("expected conflict")
	}
	if apperror.SafeCode(err) != 409 {
		t.Errorf("code = %d, want 409", apperror.SafeCode(err))
	}
}

func TestRegisterStage1ParksPendingRecord(t *testing.T) {
	f := newFixture(t, &mockUserRepo{
		createFn: func(context.Context, *User) error {
			t.Fatal("stage 1 must not create a durable user")
			return nil
		},
	})
	ctx := context.Background()

	regID, err := f.svc.RegisterStage1(ctx, RegisterStage1Request{
		Name: " A ", Email: " A@X.com ", Password: "p", ConfirmPassword: "p",
	})
	if err != nil {
		t.Fatalf("stage 1: %v", err)
	}
	if regID == "" {
		t.Fatal("empty registration id")
	}

	pending, ok, _ := f.pendingRegs.Get(ctx, regID)
	if !ok {
		t.Fatal("pending registration not stored")
	}
	if pending.Email != "a@x.com" {
		t.Errorf("email not normalized: %q", pending.Email)
	}
	if pending.Name != "A" {
		t.Errorf("name not trimmed: %q", pending.Name)
	}
	if pending.PasswordHash == "" || pending.PasswordHash == "p" {
		t.Error("password not hashed")
	}
}

// --- Registration stage 2 ---

func TestRegisterStage2Validation(t *testing.T) {
	f := newFixture(t, &mockUserRepo{})
	ctx := context.Background()

	answers2 := []QuestionAnswer{{Answer: "a"}, {Answer: "b"}}
	err := f.svc.RegisterStage2(ctx, RegisterStage2Request{RegistrationID: "id", Answers: answers2})
	if err == nil || apperror.SafeCode(err) != 400 {
		t.Errorf("wrong answer count: got %v, want 400", err)
	}

	answers3 := []QuestionAnswer{{Answer: "a"}, {Answer: "b"}, {Answer: "c"}}
	err = f.svc.RegisterStage2(ctx, RegisterStage2Request{Answers: answers3})
	if err == nil || apperror.SafeCode(err) != 400 {
		t.Errorf("missing id: got %v, want 400", err)
	}
}

func TestRegisterStage2UnknownID(t *testing.T) {
	f := newFixture(t, &mockUserRepo{})

	answers := []QuestionAnswer{{Answer: "a"}, {Answer: "b"}, {Answer: "c"}}
	err := f.svc.RegisterStage2(context.Background(), RegisterStage2Request{
		RegistrationID: "never-existed", Answers: answers,
	})
	if err == nil || apperror.SafeCode(err) != 401 {
		t.Errorf("got %v, want 401", err)
	}
}

func TestRegisterStage2NormalizesAnswers(t *testing.T) {
	var created *User
	repo := &mockUserRepo{
		createFn: func(_ context.Context, user *User) error {
			created = user
			return nil
		},
	}
	f := newFixture(t, repo)
	ctx := context.Background()

	regID, err := f.svc.RegisterStage1(ctx, RegisterStage1Request{
		Name: "A", Email: "a@x.com", Password: "p", ConfirmPassword: "p",
	})
	if err != nil {
		t.Fatalf("stage 1: %v", err)
	}

	answers := []QuestionAnswer{
		{Question: Questions[0], Answer: "Rex"},
		{Question: Questions[1], Answer: " London "},
		{Question: Questions[2], Answer: "1984"},
	}
	if err := f.svc.RegisterStage2(ctx, RegisterStage2Request{RegistrationID: regID, Answers: answers}); err != nil {
		t.Fatalf("stage 2: %v", err)
	}

	if created == nil {
		t.Fatal("no user created")
	}
	want := []string{"rex", "london", "1984"}
	for i, q := range created.Questions {
		if q.Answer != want[i] {
			t.Errorf("answer[%d] = %q, want %q", i, q.Answer, want[i])
		}
	}
}

func TestRegisterStage2IsOneShot(t *testing.T) {
	creates := 0
	repo := &mockUserRepo{
		createFn: func(context.Context, *User) error {
			creates++
			return nil
		},
	}
	f := newFixture(t, repo)
	ctx := context.Background()

	regID, err := f.svc.RegisterStage1(ctx, RegisterStage1Request{
		Name: "A", Email: "a@x.com", Password: "p", ConfirmPassword: "p",
	})
	if err != nil {
		t.Fatalf("stage 1: %v", err)
	}

	answers := []QuestionAnswer{{Answer: "a"}, {Answer: "b"}, {Answer: "c"}}
	if err := f.svc.RegisterStage2(ctx, RegisterStage2Request{RegistrationID: regID, Answers: answers}); err != nil {
		t.Fatalf("stage 2: %v", err)
	}

	// Retrying with the same id must read as expired, not create again --
	// even though the original TTL has not elapsed.
	err = f.svc.RegisterStage2(ctx, RegisterStage2Request{RegistrationID: regID, Answers: answers})
	if err == nil || apperror.SafeCode(err) != 401 {
		t.Errorf("retried stage 2: got %v, want 401", err)
	}
	if creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
}

// --- Login step 1 ---

func TestLoginStep1MissingFields(t *testing.T) {
	f := newFixture(t, &mockUserRepo{})

	_, _, err := f.svc.LoginStep1(context.Background(), LoginStep1Request{Username: "a@x.com"})
	if err == nil || apperror.SafeCode(err) != 400 {
		t.Errorf("got %v, want 400", err)
	}
}

func TestLoginStep1WrongCaptchaBurnsChallenge(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	capID, solution := f.solvedCaptcha(t)

	_, _, err := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: "wrong",
	})
	if err == nil || apperror.SafeCode(err) != 401 {
		t.Fatalf("wrong captcha: got %v, want 401", err)
	}

	// The challenge is consumed: even the right answer fails now.
	_, _, err = f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})
	if err == nil {
		t.Error("burned captcha was accepted")
	}
}

func TestLoginStep1UndifferentiatedCredentialErrors(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	// Unknown user and wrong password must be indistinguishable.
	capID, solution := f.solvedCaptcha(t)
	_, _, errUnknown := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "nobody@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})

	capID, solution = f.solvedCaptcha(t)
	_, _, errBadPass := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "wrong",
		CaptchaID: capID, CaptchaAnswer: solution,
	})

	if errUnknown == nil || errBadPass == nil {
		t.Fatal("expected both attempts to fail")
	}
	if apperror.SafeMessage(errUnknown) != apperror.SafeMessage(errBadPass) {
		t.Errorf("messages differ: %q vs %q",
			apperror.SafeMessage(errUnknown), apperror.SafeMessage(errBadPass))
	}
}

func TestLoginStep1ReturnsQuestionsInOrder(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	capID, solution := f.solvedCaptcha(t)
	loginID, questions, err := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "A@X.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if loginID == "" {
		t.Error("empty login id")
	}
	if len(questions) != 3 {
		t.Fatalf("got %d questions, want 3", len(questions))
	}
	for i, q := range questions {
		if q != Questions[i] {
			t.Errorf("questions[%d] = %q, want %q", i, q, Questions[i])
		}
	}
}

// --- Login step 2 ---

func TestLoginStep2PositionalAnswers(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	step1 := func() string {
		capID, solution := f.solvedCaptcha(t)
		loginID, _, err := f.svc.LoginStep1(ctx, LoginStep1Request{
			Username: "a@x.com", Password: "p",
			CaptchaID: capID, CaptchaAnswer: solution,
		})
		if err != nil {
			t.Fatalf("step 1: %v", err)
		}
		return loginID
	}

	// Case- and whitespace-insensitive but position-sensitive.
	loginID := step1()
	token, user, err := f.svc.LoginStep2(ctx, LoginStep2Request{
		LoginID: loginID, Answers: []string{"Rex", " London ", "1984"},
	})
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if token == "" {
		t.Error("empty token")
	}
	if user == nil || user.Email != "a@x.com" || user.ID == "" {
		t.Errorf("bad public user: %+v", user)
	}

	// Reordered answers fail, all-or-nothing.
	loginID = step1()
	_, _, err = f.svc.LoginStep2(ctx, LoginStep2Request{
		LoginID: loginID, Answers: []string{"london", "rex", "1984"},
	})
	if err == nil || apperror.SafeCode(err) != 401 {
		t.Errorf("reordered answers: got %v, want 401", err)
	}
}

func TestLoginStep2RetryableAfterWrongAnswers(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	capID, solution := f.solvedCaptcha(t)
	loginID, _, err := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}

	// Wrong answers fail but do not consume the pending login.
	_, _, err = f.svc.LoginStep2(ctx, LoginStep2Request{
		LoginID: loginID, Answers: []string{"wrong", "wrong", "wrong"},
	})
	if err == nil || apperror.SafeCode(err) != 401 {
		t.Fatalf("wrong answers: got %v, want 401", err)
	}

	// A correct retry with the same id succeeds within the TTL.
	token, user, err := f.svc.LoginStep2(ctx, LoginStep2Request{
		LoginID: loginID, Answers: []string{"rex", "london", "1984"},
	})
	if err != nil {
		t.Fatalf("correct retry: %v", err)
	}
	if token == "" || user == nil {
		t.Error("retry succeeded without token/user")
	}
}

func TestLoginStep2IsOneShot(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	capID, solution := f.solvedCaptcha(t)
	loginID, _, err := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}

	answers := []string{"rex", "london", "1984"}
	if _, _, err := f.svc.LoginStep2(ctx, LoginStep2Request{LoginID: loginID, Answers: answers}); err != nil {
		t.Fatalf("step 2: %v", err)
	}

	_, _, err = f.svc.LoginStep2(ctx, LoginStep2Request{LoginID: loginID, Answers: answers})
	if err == nil || apperror.SafeCode(err) != 401 {
		t.Errorf("replayed step 2: got %v, want 401", err)
	}
}

func TestLoginStep2NeverLeaksSecrets(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	capID, solution := f.solvedCaptcha(t)
	loginID, _, _ := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})

	_, user, err := f.svc.LoginStep2(ctx, LoginStep2Request{
		LoginID: loginID, Answers: []string{"rex", "london", "1984"},
	})
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}

	// PublicUser carries only id, name, email by construction; make sure
	// the values themselves are the public ones.
	if user.Name != "A" || user.Email != "a@x.com" {
		t.Errorf("unexpected projection: %+v", user)
	}
}

// --- Logout ---

func TestLogoutRevokesSession(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	f.registeredUser(t, repo, "a@x.com", "p", [3]string{"rex", "london", "1984"})
	ctx := context.Background()

	capID, solution := f.solvedCaptcha(t)
	loginID, _, _ := f.svc.LoginStep1(ctx, LoginStep1Request{
		Username: "a@x.com", Password: "p",
		CaptchaID: capID, CaptchaAnswer: solution,
	})
	token, _, err := f.svc.LoginStep2(ctx, LoginStep2Request{
		LoginID: loginID, Answers: []string{"rex", "london", "1984"},
	})
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}

	if _, err := f.sessions.Lookup(ctx, token); err != nil {
		t.Fatalf("token not registered: %v", err)
	}

	if err := f.svc.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.sessions.Lookup(ctx, token); err == nil {
		t.Error("token survived logout")
	}

	// Logging out twice, or with an unknown token, never fails.
	if err := f.svc.Logout(ctx, token); err != nil {
		t.Errorf("second logout: %v", err)
	}
	if err := f.svc.Logout(ctx, ""); err != nil {
		t.Errorf("empty-token logout: %v", err)
	}
}

// --- End-to-end registration scenario ---

func TestRegistrationScenario(t *testing.T) {
	repo := newMemoryUserRepo()
	f := newFixture(t, repo)
	ctx := context.Background()

	regID, err := f.svc.RegisterStage1(ctx, RegisterStage1Request{
		Name: "A", Email: "a@x.com", Password: "p", ConfirmPassword: "p",
	})
	if err != nil {
		t.Fatalf("stage 1: %v", err)
	}

	answers := []QuestionAnswer{
		{Question: Questions[0], Answer: "rex"},
		{Question: Questions[1], Answer: "london"},
		{Question: Questions[2], Answer: "1984"},
	}
	if err := f.svc.RegisterStage2(ctx, RegisterStage2Request{RegistrationID: regID, Answers: answers}); err != nil {
		t.Fatalf("stage 2: %v", err)
	}

	// Registering the same email again is a conflict at stage 1.
	_, err = f.svc.RegisterStage1(ctx, RegisterStage1Request{
		Name: "B", Email: "a@x.com", Password: "q", ConfirmPassword: "q",
	})
	if err == nil || apperror.SafeCode(err) != 409 {
		t.Errorf("duplicate registration: got %v, want 409", err)
	}
}
