package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/config"
	"github.com/jhoicas/mercado-local/pkg/jwt"
)

var _ ports.CredentialProvider = (*Fixed)(nil)

// Vigencia de los tokens de identidad demo (minutos).
const demoTokenMinutes = 60

// Fixed proveedor de identidad fija para el modo demo. Se elige al componer
// la aplicación; nunca se mezcla con el proveedor real.
type Fixed struct {
	cfg config.DemoConfig
	now func() time.Time

	mu       sync.Mutex
	token    string
	accounts map[string]string // email → password creados durante el proceso
}

// NewFixed construye el adaptador demo.
func NewFixed(cfg config.DemoConfig) *Fixed {
	return &Fixed{
		cfg:      cfg,
		now:      time.Now,
		accounts: map[string]string{strings.ToLower(cfg.Email): cfg.Password},
	}
}

// StartPhoneVerification acepta cualquier número E.164. Con AutoVerify el
// número demo se verifica sin pedir código.
func (f *Fixed) StartPhoneVerification(_ context.Context, req entity.PhoneVerificationRequest) (entity.VerificationOutcome, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return entity.VerificationOutcome{}, err
	}
	if f.cfg.AutoVerify && phone == f.cfg.Phone {
		id, err := f.issue(entity.ProviderPhone, f.phoneSubject(phone), "", "", phone)
		if err != nil {
			return entity.VerificationOutcome{}, err
		}
		return entity.VerificationOutcome{Identity: &id}, nil
	}
	verificationID := uuid.NewString()
	return entity.VerificationOutcome{Pending: &entity.PendingVerification{
		VerificationID: verificationID,
		ResendToken:    verificationID,
		Phone:          phone,
		RequestedAt:    f.now(),
	}}, nil
}

// ConfirmPhoneCode el código válido es siempre el configurado.
func (f *Fixed) ConfirmPhoneCode(_ context.Context, pending entity.PendingVerification, code string) (entity.ExternalIdentity, error) {
	if pending.VerificationID == "" {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "INVALID_SESSION_INFO", Kind: domain.ErrSessionExpired}
	}
	if strings.TrimSpace(code) != f.cfg.Code {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "INVALID_CODE", Kind: domain.ErrInvalidCode}
	}
	return f.issue(entity.ProviderPhone, f.phoneSubject(pending.Phone), "", "", pending.Phone)
}

func (f *Fixed) IsThirdPartyAvailable() bool {
	return f.cfg.ThirdParty
}

// SignInWithThirdParty simula un inicio con Google que siempre tiene éxito.
func (f *Fixed) SignInWithThirdParty(ctx context.Context) (entity.ExternalIdentity, error) {
	if !f.cfg.ThirdParty {
		return entity.ExternalIdentity{}, domain.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return entity.ExternalIdentity{}, err
	}
	return f.issue(entity.ProviderGoogle, f.cfg.Subject+"-google", f.cfg.Name, f.cfg.Email, "")
}

func (f *Fixed) SignInWithEmailPassword(_ context.Context, email, password string) (entity.ExternalIdentity, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	f.mu.Lock()
	stored, ok := f.accounts[key]
	f.mu.Unlock()
	if !ok {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "EMAIL_NOT_FOUND", Kind: domain.ErrAccountNotFound}
	}
	if stored != password {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "INVALID_PASSWORD", Kind: domain.ErrInvalidCredentials}
	}
	name := ""
	if key == strings.ToLower(f.cfg.Email) {
		name = f.cfg.Name
	}
	return f.issue(entity.ProviderPassword, "demo-email-"+key, name, key, "")
}

func (f *Fixed) CreateAccountWithEmailPassword(_ context.Context, email, password string) (entity.ExternalIdentity, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" || !strings.Contains(key, "@") {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "INVALID_EMAIL", Kind: domain.ErrInvalidCredentials}
	}
	if len(password) < 6 {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "WEAK_PASSWORD", Kind: domain.ErrValidation}
	}
	f.mu.Lock()
	if _, exists := f.accounts[key]; exists {
		f.mu.Unlock()
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: "EMAIL_EXISTS", Kind: domain.ErrAccountExists}
	}
	f.accounts[key] = password
	f.mu.Unlock()
	return f.issue(entity.ProviderPassword, "demo-email-"+key, "", key, "")
}

// CurrentIdentityToken el token emitido en el último inicio exitoso.
func (f *Fixed) CurrentIdentityToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *Fixed) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	return nil
}

func (f *Fixed) phoneSubject(phone string) string {
	if phone == f.cfg.Phone {
		return f.cfg.Subject
	}
	return "demo-phone-" + strings.TrimPrefix(phone, "+")
}

func (f *Fixed) issue(provider, subject, name, email, phone string) (entity.ExternalIdentity, error) {
	token, err := jwt.GenerateIdentity(f.cfg.Secret, jwt.IdentityClaims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:  jwt.DemoIssuer,
			Subject: subject,
		},
		Provider: provider,
		Name:     name,
		Email:    email,
		Phone:    phone,
	}, demoTokenMinutes)
	if err != nil {
		return entity.ExternalIdentity{}, &domain.ProviderError{Reason: err.Error(), Kind: domain.ErrNotConfigured}
	}
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
	return entity.ExternalIdentity{
		Provider:       provider,
		Token:          token,
		ProviderUserID: subject,
		Name:           name,
		Email:          email,
		Phone:          phone,
	}, nil
}
