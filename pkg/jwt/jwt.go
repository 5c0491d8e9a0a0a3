package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims del access token emitido por el servicio de usuarios.
// Role viaja en el token para que el middleware RBAC decida sin consultar la DB.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"` // "customer" | "seller" | "admin" | "" (sin elegir)
}

// DemoIssuer emisor de los tokens de identidad del modo demo.
const DemoIssuer = "mercado-local-demo"

// IdentityClaims de los tokens de identidad del modo demo (identidad fija).
type IdentityClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone_number,omitempty"`
}

// Generate genera un access token firmado que incluye userID y role.
func Generate(secret, userID, role, issuer string, expMinutes int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vacío")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		UserID: userID,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse valida el token y devuelve userID y role.
// Retorna error si el token es inválido, expirado o tiene firma incorrecta.
func Parse(secret, tokenString string) (userID, role string, err error) {
	claims := &Claims{}
	if err := parseHMAC(secret, tokenString, claims); err != nil {
		return "", "", err
	}
	return claims.UserID, claims.Role, nil
}

// GenerateIdentity firma un token de identidad demo con el subject del proveedor.
func GenerateIdentity(secret string, in IdentityClaims, expMinutes int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vacío")
	}
	now := time.Now()
	in.IssuedAt = jwt.NewNumericDate(now)
	in.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, in)
	return token.SignedString([]byte(secret))
}

// ParseIdentity valida un token de identidad demo.
func ParseIdentity(secret, tokenString string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	if err := parseHMAC(secret, tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("jwt: token de identidad sin subject")
	}
	return claims, nil
}

// Subject lee el claim sub sin verificar la firma. Solo para el cliente,
// que no tiene el secreto y recibe el token de una respuesta ya autenticada.
func Subject(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", err
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	return claims.Subject, nil
}

func parseHMAC(secret, tokenString string, claims jwt.Claims) error {
	if secret == "" {
		return fmt.Errorf("jwt: secret vacío")
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de firma inesperado: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("claims inválidos")
	}
	return nil
}
