package services

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/huangang/cocode/internal/config"
)

// LDAPService verifies credentials against a directory. Users are looked up
// by email with the configured filter, then re-bound with their password.
type LDAPService struct {
	config *config.LDAPConfig
}

type LDAPUser struct {
	DN    string
	Email string
	Name  string
}

func NewLDAPService(cfg *config.LDAPConfig) *LDAPService {
	if cfg == nil {
		cfg = &config.LDAPConfig{}
	}
	return &LDAPService{config: cfg}
}

func (s *LDAPService) IsEnabled() bool {
	return s.config.Enabled && s.config.Host != ""
}

func (s *LDAPService) Authenticate(email, password string) (*LDAPUser, error) {
	if !s.IsEnabled() {
		return nil, errors.New("LDAP is not enabled")
	}
	if password == "" {
		return nil, errors.New("invalid credentials")
	}

	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if s.config.BindDN != "" {
		if err := conn.Bind(s.config.BindDN, s.config.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}

	filter := s.config.UserFilter
	if filter == "" {
		filter = "(mail=%s)"
	}
	result, err := conn.Search(ldap.NewSearchRequest(
		s.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 10, false,
		fmt.Sprintf(filter, ldap.EscapeFilter(email)),
		[]string{"dn", "cn", "mail"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}

	switch len(result.Entries) {
	case 0:
		return nil, errors.New("invalid credentials")
	case 1:
	default:
		return nil, errors.New("multiple directory entries match this email")
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, errors.New("invalid credentials")
	}

	return &LDAPUser{
		DN:    entry.DN,
		Email: entry.GetAttributeValue("mail"),
		Name:  entry.GetAttributeValue("cn"),
	}, nil
}

func (s *LDAPService) dial() (*ldap.Conn, error) {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if s.config.UseSSL {
		return ldap.DialURL("ldaps://"+addr,
			ldap.DialWithDialer(dialer),
			ldap.DialWithTLSConfig(&tls.Config{ServerName: s.config.Host}))
	}
	return ldap.DialURL("ldap://"+addr, ldap.DialWithDialer(dialer))
}
