package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

// DefaultTicketTTL is how long a magic-link login ticket stays valid.
const DefaultTicketTTL = 5 * time.Minute

// TicketConfig holds login ticket configuration.
type TicketConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// LoginTicketClaims are carried by the ticket appended to the magic-link
// callback redirect. The session layer redeems it to sign the user in.
type LoginTicketClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	Method string `json:"amr"`
}

// TicketService signs and verifies short-lived login tickets.
type TicketService struct {
	config TicketConfig
	now    func() time.Time
}

// NewTicketService creates a new ticket service.
func NewTicketService(config TicketConfig) *TicketService {
	if config.TTL == 0 {
		config.TTL = DefaultTicketTTL
	}
	if config.Issuer == "" {
		config.Issuer = "bewirtungsbeleg"
	}
	return &TicketService{config: config, now: time.Now}
}

// Issue signs a ticket for email, referencing the consumed token by ID.
func (s *TicketService) Issue(email string, tokenID uuid.UUID) (string, error) {
	now := s.now()
	claims := LoginTicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			Issuer:    s.config.Issuer,
			ID:        tokenID.String(),
		},
		Email:  email,
		Method: string(domain.TokenKindMagicLink),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.Secret)
}

// Verify validates a ticket and returns its claims.
func (s *TicketService) Verify(ticket string) (*LoginTicketClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &LoginTicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidTicket
		}
		return s.config.Secret, nil
	},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, domain.ErrInvalidTicket
	}

	claims, ok := token.Claims.(*LoginTicketClaims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, domain.ErrInvalidTicket
	}
	return claims, nil
}
