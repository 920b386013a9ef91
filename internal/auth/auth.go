// Package auth checks the per-role login credentials the operators
// provision through the environment.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"ndisview/internal/model"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials holds one username/password pair per role.
type Credentials struct {
	NDIAUsername        string `env:"NDIA_USERNAME"`
	NDIAPassword        string `env:"NDIA_PASSWORD"`
	ParticipantUsername string `env:"PARTICIPANT_USERNAME"`
	ParticipantPassword string `env:"PARTICIPANT_PASSWORD"`
	ProviderUsername    string `env:"SERVICE_PROVIDER_USERNAME"`
	ProviderPassword    string `env:"SERVICE_PROVIDER_PASSWORD"`
}

// FromEnv reads the credentials; unset pairs stay empty and never match.
func FromEnv() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return c, nil
}

type pair struct {
	role     model.Role
	user     string
	password string
}

func (c Credentials) pairs() []pair {
	return []pair{
		{model.RoleAdministrator, c.NDIAUsername, c.NDIAPassword},
		{model.RoleParticipant, c.ParticipantUsername, c.ParticipantPassword},
		{model.RoleProvider, c.ProviderUsername, c.ProviderPassword},
	}
}

// Authenticate returns the role whose credentials match user and password.
// Every pair is compared so timing does not reveal which role matched.
func (c Credentials) Authenticate(user, password string) (model.Role, error) {
	var found model.Role
	for _, p := range c.pairs() {
		if p.user == "" || p.password == "" {
			continue
		}
		u := subtle.ConstantTimeCompare([]byte(user), []byte(p.user))
		pw := subtle.ConstantTimeCompare([]byte(password), []byte(p.password))
		if u&pw == 1 && found == "" {
			found = p.role
		}
	}
	if found == "" {
		return "", ErrInvalidCredentials
	}
	return found, nil
}

// Configured reports whether at least one role can log in.
func (c Credentials) Configured() bool {
	for _, p := range c.pairs() {
		if p.user != "" && p.password != "" {
			return true
		}
	}
	return false
}
