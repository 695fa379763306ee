// Package nodetoken emite y valida los tokens HS256 de corta vida con los
// que un nodo del clúster se autentica ante otro en las rutas /internal.
// El secreto es compartido por todos los nodos vía configuración.
package nodetoken

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Audiencia fija de los tokens internos; un access token de usuario nunca la lleva.
const audienceInternal = "snapguard/internal"

const defaultTTL = 2 * time.Minute

var (
	ErrInvalidToken = errors.New("nodetoken: token inválido")
	ErrNoSecret     = errors.New("nodetoken: secret vacío")
)

// Minter firma tokens internos en nombre de un nodo concreto.
type Minter struct {
	secret []byte
	nodeID string
	ttl    time.Duration
}

func NewMinter(secret, nodeID string, ttl time.Duration) (*Minter, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if nodeID == "" {
		return nil, errors.New("nodetoken: nodeID vacío")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Minter{secret: []byte(secret), nodeID: nodeID, ttl: ttl}, nil
}

// Mint emite un token fresco (sub = id del nodo emisor). Los tokens son de un
// solo hop y de vida corta; se emite uno nuevo por cada request saliente.
func (m *Minter) Mint() (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"sub": m.nodeID,
		"aud": audienceInternal,
		"iat": now.Unix(),
		"nbf": now.Add(-30 * time.Second).Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("nodetoken: sign: %w", err)
	}
	return signed, nil
}

// Verifier valida tokens internos recibidos.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify valida firma (HS256), exp/nbf y audiencia, y devuelve el id del nodo
// emisor (claim "sub").
func (v *Verifier) Verify(token string) (string, error) {
	keyfunc := func(t *jwtv5.Token) (any, error) {
		return v.secret, nil
	}
	tok, err := jwtv5.Parse(token, keyfunc,
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithAudience(audienceInternal),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
