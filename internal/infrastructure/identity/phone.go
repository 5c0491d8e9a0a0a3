package identity

import (
	"regexp"
	"strings"

	"github.com/jhoicas/mercado-local/internal/domain"
)

// e164Re número con prefijo internacional: + seguido de 8 a 15 dígitos.
var e164Re = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// NormalizePhone quita espacios, guiones y paréntesis y valida formato E.164.
func NormalizePhone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if !e164Re.MatchString(phone) {
		return "", &domain.ProviderError{Reason: "INVALID_PHONE_NUMBER", Kind: domain.ErrInvalidPhoneFormat}
	}
	return phone, nil
}
