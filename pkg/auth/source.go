// Package auth resolves Seer credentials into an authenticated session and
// keeps that session valid.
//
// A connection may be configured with several credential sources at once.
// Resolve picks exactly one, in this order:
//
//  1. a pre-built HeaderProvider, used as-is
//  2. explicit email and password
//  3. explicit API key id plus a key path or raw PEM key
//  4. a key file in the config directory named seerpy.<id>[.<region>].pem
//  5. a credentials file in the config directory (email line 1, password line 2)
//
// Authenticator then turns the resolved Source into request headers,
// refreshing the session when it expires. Password sources exchange the
// credentials for a session cookie; API key sources sign a short-lived
// RS256 JWT locally.
package auth

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Kind identifies the credential source backing a session.
type Kind string

const (
	KindPrebuilt      Kind = "prebuilt"
	KindEmailPassword Kind = "email_password"
	KindAPIKeyFile    Kind = "api_key_file"
	KindAPIKeyString  Kind = "api_key_string"
	KindDevServer     Kind = "dev_server"
)

// IsAPIKey reports whether the kind signs requests with a private key.
func (k Kind) IsAPIKey() bool {
	return k == KindAPIKeyFile || k == KindAPIKeyString
}

// IsPassword reports whether the kind exchanges email/password for a cookie.
func (k Kind) IsPassword() bool {
	return k == KindEmailPassword || k == KindDevServer
}

const (
	// DefaultAPIURL is the production API base URL.
	DefaultAPIURL = "https://api.seermedical.com/api"

	// DefaultDevAPIURL is the non-production API base URL.
	DefaultDevAPIURL = "https://api-dev.seermedical.com/api"

	// CredentialsFileName holds email on line 1 and password on line 2.
	CredentialsFileName = "credentials"

	// DefaultDirName is the per-user directory under $HOME.
	DefaultDirName = ".seerpy"

	inlineKeyPath = "<inline>"
)

// keyFilePattern matches seerpy.<id>.pem and seerpy.<id>.<region>.pem.
var keyFilePattern = regexp.MustCompile(`^seerpy\.([A-Za-z0-9_-]+)(?:\.([A-Za-z0-9-]+))?\.pem$`)

// HeaderProvider produces headers that authenticate a request. Headers
// may refresh the underlying session; Invalidate forces the next call to
// re-authenticate.
type HeaderProvider interface {
	Headers(ctx context.Context) (http.Header, error)
	Invalidate()
}

// Options are the caller-supplied credential inputs. Any subset may be
// set; Resolve decides which one is used.
type Options struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	APIKeyID   string `yaml:"api_key_id"`
	APIKeyPath string `yaml:"api_key_path"`
	// APIKey is a raw PEM-encoded RSA private key.
	APIKey string `yaml:"-"`
	// Region selects the regional SDK endpoint for API keys (e.g. "au").
	Region string `yaml:"region"`

	// Prebuilt bypasses resolution entirely.
	Prebuilt HeaderProvider `yaml:"-"`

	// Dev targets the non-production server with password credentials.
	Dev bool `yaml:"dev"`

	// APIURL overrides the base URL implied by the source.
	APIURL string `yaml:"api_url"`

	// ConfigDir is searched for key and credentials files (default ~/.seerpy).
	ConfigDir string `yaml:"config_dir"`
}

// Source is the resolved, immutable credential source.
type Source struct {
	Kind   Kind
	APIURL string

	Email    string
	Password string

	KeyID   string
	KeyPath string
	Region  string
	key     *rsa.PrivateKey

	Prebuilt HeaderProvider

	ConfigDir string
}

// String never includes secrets.
func (s Source) String() string {
	switch {
	case s.Kind.IsPassword():
		return fmt.Sprintf("%s(%s @ %s)", s.Kind, s.Email, s.APIURL)
	case s.Kind.IsAPIKey():
		return fmt.Sprintf("%s(%s @ %s)", s.Kind, s.KeyID, s.APIURL)
	default:
		return string(s.Kind)
	}
}

// Resolve selects one credential source from opts. It reads files from the
// config directory but never touches the network.
func Resolve(opts Options) (Source, error) {
	dir := opts.ConfigDir
	if dir == "" {
		dir = DefaultConfigDir()
	}

	passwordKind := KindEmailPassword
	if opts.Dev {
		passwordKind = KindDevServer
	}

	src := Source{ConfigDir: dir}

	switch {
	case opts.Prebuilt != nil:
		src.Kind = KindPrebuilt
		src.Prebuilt = opts.Prebuilt

	case opts.Email != "" && opts.Password != "":
		src.Kind = passwordKind
		src.Email = opts.Email
		src.Password = opts.Password

	case opts.APIKeyPath != "":
		keyID, region := opts.APIKeyID, opts.Region
		if m := keyFilePattern.FindStringSubmatch(filepath.Base(opts.APIKeyPath)); m != nil {
			if keyID == "" {
				keyID = m[1]
			}
			if region == "" {
				region = m[2]
			}
		}
		if keyID == "" {
			return Source{}, &MalformedCredentialError{
				Path: opts.APIKeyPath,
				Err:  errors.New("api key id is required when the file name does not encode it"),
			}
		}
		key, err := readKey(opts.APIKeyPath)
		if err != nil {
			return Source{}, err
		}
		src.Kind = KindAPIKeyFile
		src.KeyID = keyID
		src.KeyPath = opts.APIKeyPath
		src.Region = region
		src.key = key

	case opts.APIKeyID != "" && opts.APIKey != "":
		key, err := parseKey([]byte(opts.APIKey), inlineKeyPath)
		if err != nil {
			return Source{}, err
		}
		src.Kind = KindAPIKeyString
		src.KeyID = opts.APIKeyID
		src.Region = opts.Region
		src.key = key

	default:
		found, err := discover(dir, passwordKind)
		if err != nil {
			return Source{}, err
		}
		found.ConfigDir = dir
		if found.Region == "" {
			found.Region = opts.Region
		}
		src = found
	}

	src.APIURL = resolveAPIURL(opts.APIURL, src)
	return src, nil
}

// discover looks for a key file, then a credentials file, in dir.
func discover(dir string, passwordKind Kind) (Source, error) {
	if dir == "" {
		return Source{}, &AuthenticationError{Err: ErrMissingCredentials}
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Source{}, &AuthenticationError{Err: fmt.Errorf("read %s: %w: %v", dir, ErrMissingCredentials, err)}
	}

	var keyFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if keyFilePattern.MatchString(entry.Name()) {
			keyFiles = append(keyFiles, entry.Name())
		}
	}
	sort.Strings(keyFiles)

	if len(keyFiles) > 0 {
		name := keyFiles[0]
		m := keyFilePattern.FindStringSubmatch(name)
		path := filepath.Join(dir, name)
		key, err := readKey(path)
		if err != nil {
			return Source{}, err
		}
		return Source{
			Kind:    KindAPIKeyFile,
			KeyID:   m[1],
			Region:  m[2],
			KeyPath: path,
			key:     key,
		}, nil
	}

	credPath := filepath.Join(dir, CredentialsFileName)
	email, password, err := readCredentialsFile(credPath)
	if err == nil {
		return Source{Kind: passwordKind, Email: email, Password: password}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Source{}, err
	}

	return Source{}, &AuthenticationError{Err: ErrMissingCredentials}
}

// readCredentialsFile parses the two-line email/password file.
func readCredentialsFile(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", err
		}
		return "", "", &MalformedCredentialError{Path: path, Err: err}
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if len(lines) < 2 || strings.TrimSpace(lines[0]) == "" || lines[1] == "" {
		return "", "", &MalformedCredentialError{Path: path, Err: errors.New("expected email on line 1 and password on line 2")}
	}
	return strings.TrimSpace(lines[0]), lines[1], nil
}

func readKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MalformedCredentialError{Path: path, Err: err}
	}
	return parseKey(data, path)
}

func parseKey(pemData []byte, path string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, &MalformedCredentialError{Path: path, Err: err}
	}
	return key, nil
}

func resolveAPIURL(explicit string, src Source) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	switch {
	case src.Kind == KindDevServer:
		return DefaultDevAPIURL
	case src.Kind.IsAPIKey() && src.Region != "":
		return fmt.Sprintf("https://sdk-%s.seermedical.com/api", src.Region)
	default:
		return DefaultAPIURL
	}
}

// DefaultConfigDir returns ~/.seerpy, or "" when the home directory is unknown.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultDirName)
}
