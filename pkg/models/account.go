package models

import (
	"strings"
	"time"
)

// Provider is one mailbox provider configuration. Accounts keep the copy
// resolved at creation time and never re-resolve it.
type Provider struct {
	WorkerDomain string `json:"worker_domain"`
	MailDomain   string `json:"mail_domain"`
	AdminSecret  string `json:"-"`
}

// SessionFields is the credential material extracted on success. It is
// populated all at once or not at all.
type SessionFields struct {
	Csesidx    string `json:"csesidx"`
	HostCOses  string `json:"host_c_oses"`
	SecureCSes string `json:"secure_c_ses"`
	TeamID     string `json:"team_id"`
}

// Complete reports whether every field is populated
func (f SessionFields) Complete() bool {
	return f.Csesidx != "" && f.HostCOses != "" && f.SecureCSes != "" && f.TeamID != ""
}

// Empty reports whether no field is populated
func (f SessionFields) Empty() bool {
	return f == SessionFields{}
}

// Account represents one provisioned identity
type Account struct {
	Email        string        `json:"email"`
	JWT          string        `json:"-"`
	Status       AccountStatus `json:"status"`
	Provider     Provider      `json:"provider"`
	Session      SessionFields `json:"session"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at,omitzero"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Clone returns an independent copy for handing across goroutines
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}

// LocalPart returns the part of the address before the @
func (a *Account) LocalPart() string {
	local, _, _ := strings.Cut(a.Email, "@")
	return local
}

// EmailDomain extracts the lower-cased domain of an address, or "" if the
// address is malformed
func EmailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return ""
	}
	return strings.ToLower(domain)
}
