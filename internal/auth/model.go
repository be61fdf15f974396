// Package auth implements the two-phase registration and login workflows.
// Both workflows bridge their stages with pending records in the ephemeral
// store: the first stage validates and parks the work, the second consumes
// the record exactly once on commit. Registration burns the record when
// stage 2 runs; login keeps it across failed answer attempts and consumes it
// only when a login succeeds. Login is additionally gated by a captcha
// challenge and the user's three security questions.
package auth

import (
	"time"
)

// SecurityQuestion is one question/answer pair on a user record. The answer
// is stored normalized (trimmed, lowercased) so later comparison is case-
// and whitespace-insensitive.
type SecurityQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// User is a durable user record. Created only by a completed registration
// workflow; never mutated or deleted afterwards.
type User struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"passwordHash"`
	Questions    []SecurityQuestion `json:"questions"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// PublicUser is the projection of a User safe to return to clients. It
// never carries the password hash or the security answers.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public returns the client-safe projection of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// PendingRegistration is the payload parked between registration stages.
// The password is already hashed; no durable user exists yet.
type PendingRegistration struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// PendingLogin is the payload parked between login steps. Credentials and
// captcha were already verified; only the security answers remain.
type PendingLogin struct {
	UserID string `json:"userId"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterStage1Request holds the fields of the first registration call.
type RegisterStage1Request struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// QuestionAnswer is one submitted question/answer pair.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RegisterStage2Request holds the fields of the second registration call.
type RegisterStage2Request struct {
	RegistrationID string           `json:"registrationId"`
	Answers        []QuestionAnswer `json:"answers"`
}

// LoginStep1Request holds the fields of the first login call.
type LoginStep1Request struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	CaptchaID     string `json:"captchaId"`
	CaptchaAnswer string `json:"captchaAnswer"`
}

// LoginStep2Request holds the fields of the second login call. Answers are
// positional: answers[i] corresponds to the i-th question returned by step 1.
type LoginStep2Request struct {
	LoginID string   `json:"loginId"`
	Answers []string `json:"answers"`
}

// Questions is the fixed list presented during registration stage 2.
// Order matters: login step 2 compares answers by position.
var Questions = []string{
	"What was the name of your first pet?",
	"Which city were you born in?",
	"What is your favourite book?",
}
