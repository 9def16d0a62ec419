package usecase

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ContactForm struct {
	Name    string
	Email   string
	Subject string
	Message string
}

func (f ContactForm) Validate() FieldErrors {
	errs := FieldErrors{}
	if len(strings.TrimSpace(f.Name)) < 2 {
		errs["name"] = "Name must have at least 2 characters"
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(f.Email)); err != nil {
		errs["email"] = "Invalid email address"
	}
	if len(strings.TrimSpace(f.Subject)) < 5 {
		errs["subject"] = "Subject must have at least 5 characters"
	}
	if len(strings.TrimSpace(f.Message)) < 10 {
		errs["message"] = "Message must have at least 10 characters"
	}
	return errs
}

// ContactUC accepts contact messages. They are logged, not delivered.
type ContactUC struct{}

// Submit returns a ticket id for a valid message.
func (ContactUC) Submit(f ContactForm) (string, error) {
	if errs := f.Validate(); len(errs) > 0 {
		return "", errs
	}
	ticket := uuid.NewString()
	log.Info().Str("ticket", ticket).Str("email", strings.TrimSpace(f.Email)).Str("subject", strings.TrimSpace(f.Subject)).Msg("contact message received")
	return ticket, nil
}
