package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// DocBitsConfig holds account service configuration.
type DocBitsConfig struct {
	BaseURL       string
	AdminUser     string
	AdminPassword string
	Timeout       time.Duration
}

// DocBitsClient is the HTTP client for the DocBits account service.
type DocBitsClient struct {
	config DocBitsConfig
	http   *http.Client
	logger *slog.Logger
}

// NewDocBitsClient creates a new account service client.
func NewDocBitsClient(config DocBitsConfig, logger *slog.Logger) *DocBitsClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &DocBitsClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

type errorBody struct {
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
}

func (b errorBody) text() string {
	switch {
	case b.ErrorDescription != "":
		return b.ErrorDescription
	case b.Message != "":
		return b.Message
	default:
		return b.Error
	}
}

// EmailExists asks the account service whether email is registered.
// 200 means registered, 404 means free; anything else is CheckFailed.
func (c *DocBitsClient) EmailExists(ctx context.Context, email string) (Existence, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return CheckFailed, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/user/check-email", strings.NewReader(string(body)))
	if err != nil {
		return CheckFailed, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return CheckFailed, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return Exists, nil
	case http.StatusNotFound:
		return NotExists, nil
	default:
		return CheckFailed, fmt.Errorf("unexpected check-email status %d", resp.StatusCode)
	}
}

// Register creates an account through the public /me/register endpoint.
func (c *DocBitsClient) Register(ctx context.Context, r RegisterRequest) (*User, error) {
	form := url.Values{
		"email":            {r.Email},
		"password":         {r.Password},
		"password_confirm": {r.Password},
		"first_name":       {r.FirstName},
		"last_name":        {r.LastName},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/me/register", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, networkError("Netzwerkfehler bei der Registrierung", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		eb := decodeErrorBody(resp.Body)
		c.logger.Warn("account registration rejected", "status", resp.StatusCode, "code", eb.Code)
		if resp.StatusCode == http.StatusConflict || (resp.StatusCode == http.StatusBadRequest && mentionsExisting(eb.text())) {
			return nil, accountExistsError()
		}
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Code:       eb.Code,
			Message:    orDefault(eb.text(), "Registrierung fehlgeschlagen"),
		}
	}

	// The account exists once the status is 2xx, whatever the body holds.
	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		c.logger.Warn("registered user response not decodable", "status", resp.StatusCode, "error", err)
		user = User{}
	}
	if user.Email == "" {
		user.Email = r.Email
	}
	if user.FirstName == "" && user.LastName == "" {
		user.FirstName, user.LastName = r.FirstName, r.LastName
	}
	return &user, nil
}

type managementUser struct {
	ID        json.RawMessage `json:"id"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
}

func (u managementUser) id() string {
	return strings.Trim(string(u.ID), `"`)
}

type managementUserList struct {
	Users []managementUser `json:"users"`
	Data  []managementUser `json:"data"`
}

// ResetPassword sets a new password for the account registered under email
// through the management API. It requires admin credentials.
func (c *DocBitsClient) ResetPassword(ctx context.Context, email, password string) error {
	if c.config.AdminUser == "" || c.config.AdminPassword == "" {
		return &Error{StatusCode: 500, Code: "MISSING_ADMIN_CREDENTIALS", Message: "Admin-Anmeldeinformationen nicht konfiguriert"}
	}

	user, err := c.findUser(ctx, email)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"password":   password,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"email":      user.Email,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/management/user/"+url.PathEscape(user.id()), strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.AdminUser, c.config.AdminPassword)

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError("Netzwerkfehler beim Zurücksetzen des Passworts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		eb := decodeErrorBody(resp.Body)
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return &Error{StatusCode: 400, Code: "INVALID_PASSWORD", Message: orDefault(eb.Message, "Passwort erfüllt nicht die Anforderungen")}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{StatusCode: resp.StatusCode, Code: "ADMIN_AUTH_FAILED", Message: "Admin-Authentifizierung fehlgeschlagen"}
		default:
			return &Error{StatusCode: resp.StatusCode, Code: orDefault(eb.Code, "UPDATE_FAILED"), Message: orDefault(eb.Message, "Fehler beim Aktualisieren des Passworts")}
		}
	}
	return nil
}

func (c *DocBitsClient) findUser(ctx context.Context, email string) (*managementUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/management/api/users?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.AdminUser, c.config.AdminPassword)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, networkError("Netzwerkfehler beim Zurücksetzen des Passworts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, &Error{StatusCode: resp.StatusCode, Code: "ADMIN_AUTH_FAILED", Message: "Admin-Authentifizierung fehlgeschlagen"}
		}
		return nil, &Error{StatusCode: resp.StatusCode, Code: "USER_LOOKUP_FAILED", Message: "Fehler beim Suchen des Benutzers"}
	}

	var list managementUserList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode user list: %w", err)
	}
	users := list.Users
	if len(users) == 0 {
		users = list.Data
	}
	if len(users) == 0 {
		return nil, &Error{
			StatusCode: 404,
			Code:       "USER_NOT_FOUND",
			Message:    "Benutzer mit dieser E-Mail-Adresse nicht gefunden",
			Err:        domain.ErrAccountNotFound,
		}
	}
	return &users[0], nil
}

func decodeErrorBody(r io.Reader) errorBody {
	var eb errorBody
	_ = json.NewDecoder(r).Decode(&eb)
	return eb
}

func mentionsExisting(msg string) bool {
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "existiert bereits")
}

func networkError(message string, err error) *Error {
	return &Error{
		StatusCode: 500,
		Code:       "NETWORK_ERROR",
		Message:    message,
		Err:        errors.Join(domain.ErrUpstreamUnavailable, err),
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
