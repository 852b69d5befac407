package services

import (
	"crypto/tls"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/rmaraujo/formbridge/backend/internal/config"
)

// DirectoryService is the identity/directory collaborator: it
// authenticates users against LDAP and supplies user attributes
// (name, email, department) for approver resolution.
type DirectoryService struct {
	config *config.LDAPConfig
}

func NewDirectoryService(cfg *config.LDAPConfig) *DirectoryService {
	return &DirectoryService{config: cfg}
}

func (s *DirectoryService) IsEnabled() bool {
	return s.config.Enabled
}

type DirectoryUser struct {
	DN         string
	Username   string
	Email      string
	Nickname   string
	Department string
}

// Authenticate verifies credentials against the directory and returns the
// user's attributes.
func (s *DirectoryService) Authenticate(username, password string) (*DirectoryUser, error) {
	if !s.config.Enabled {
		return nil, fmt.Errorf("LDAP is not enabled")
	}

	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entry, err := s.findUser(conn, username)
	if err != nil {
		return nil, err
	}

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return entryToUser(entry), nil
}

// LookupUser fetches directory attributes without authenticating, used to
// refresh approver display data.
func (s *DirectoryService) LookupUser(username string) (*DirectoryUser, error) {
	if !s.config.Enabled {
		return nil, fmt.Errorf("LDAP is not enabled")
	}

	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entry, err := s.findUser(conn, username)
	if err != nil {
		return nil, err
	}
	return entryToUser(entry), nil
}

func (s *DirectoryService) connect() (*ldap.Conn, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var conn *ldap.Conn
	var err error

	if s.config.UseSSL {
		conn, err = ldap.DialTLS("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	} else {
		conn, err = ldap.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if s.config.BindDN != "" {
		if err := conn.Bind(s.config.BindDN, s.config.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}
	return conn, nil
}

func (s *DirectoryService) findUser(conn *ldap.Conn, username string) (*ldap.Entry, error) {
	searchFilter := fmt.Sprintf(s.config.UserFilter, ldap.EscapeFilter(username))
	searchRequest := ldap.NewSearchRequest(
		s.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		searchFilter,
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName", "department"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("user not found in LDAP")
	}
	if len(result.Entries) > 1 {
		return nil, fmt.Errorf("multiple users found in LDAP")
	}
	return result.Entries[0], nil
}

func entryToUser(entry *ldap.Entry) *DirectoryUser {
	user := &DirectoryUser{
		DN:         entry.DN,
		Username:   entry.GetAttributeValue("uid"),
		Email:      entry.GetAttributeValue("mail"),
		Nickname:   entry.GetAttributeValue("cn"),
		Department: entry.GetAttributeValue("department"),
	}
	// Active Directory does not always populate uid.
	if user.Username == "" {
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}
	return user
}
