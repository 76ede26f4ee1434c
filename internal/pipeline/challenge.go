package pipeline

import (
	"context"
	"errors"
	"fmt"

	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/parsererror"
)

// PasswordChallenge is returned instead of a result when an encrypted PDF
// needs a (different) password. It wraps parsererror.ErrPasswordRequired or
// parsererror.ErrPasswordIncorrect.
type PasswordChallenge struct {
	Err     error
	Attempt models.PasswordAttemptState
}

func (c *PasswordChallenge) Error() string {
	if c.Incorrect() {
		return fmt.Sprintf("incorrect password for %s (attempt %d)", c.Attempt.FileName, c.Attempt.AttemptNumber)
	}
	return fmt.Sprintf("password required for %s", c.Attempt.FileName)
}

func (c *PasswordChallenge) Unwrap() error {
	return c.Err
}

// Incorrect reports whether the last submitted password was wrong.
func (c *PasswordChallenge) Incorrect() bool {
	return errors.Is(c.Err, parsererror.ErrPasswordIncorrect)
}

// Prompt is the text shown to the user when asking for the password.
func (c *PasswordChallenge) Prompt() string {
	if c.Incorrect() {
		return fmt.Sprintf("Incorrect password. Please try again. (Attempt %d)", c.Attempt.AttemptNumber)
	}
	return fmt.Sprintf("%s is password protected. Enter the password to continue.", c.Attempt.FileName)
}

// AsPasswordChallenge extracts a challenge from err.
func AsPasswordChallenge(err error) (*PasswordChallenge, bool) {
	var c *PasswordChallenge
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// Prompter asks the user for a password. ok == false means the user
// cancelled the prompt.
type Prompter interface {
	PromptPassword(ctx context.Context, challenge *PasswordChallenge) (password string, ok bool, err error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, challenge *PasswordChallenge) (string, bool, error)

// PromptPassword implements Prompter.
func (f PrompterFunc) PromptPassword(ctx context.Context, challenge *PasswordChallenge) (string, bool, error) {
	return f(ctx, challenge)
}
