package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// ─── memStore ────────────────────────────────────────────────────────────────

type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	setErr   error
	clearErr error
	writes   int
}

var _ ports.SessionStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.writes++
	if value == "" {
		delete(s.data, key)
		return nil
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.data = make(map[string]string)
	return nil
}

func (s *memStore) value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// ─── fakeProvider ────────────────────────────────────────────────────────────

type fakeProvider struct {
	thirdParty bool

	startFn   func(ctx context.Context, req entity.PhoneVerificationRequest) (entity.VerificationOutcome, error)
	confirmFn func(ctx context.Context, p entity.PendingVerification, code string) (entity.ExternalIdentity, error)
	googleFn  func(ctx context.Context) (entity.ExternalIdentity, error)
	emailFn   func(ctx context.Context, email, password string) (entity.ExternalIdentity, error)

	mu        sync.Mutex
	token     string
	requests  []entity.PhoneVerificationRequest
	signOuts  int
	signOutFn func() error
}

var _ ports.CredentialProvider = (*fakeProvider)(nil)

// newFakeProvider simula el proveedor con el número y código de prueba.
func newFakeProvider() *fakeProvider {
	p := &fakeProvider{thirdParty: true}
	p.startFn = func(_ context.Context, req entity.PhoneVerificationRequest) (entity.VerificationOutcome, error) {
		return entity.VerificationOutcome{Pending: &entity.PendingVerification{
			VerificationID: "ver-1",
			ResendToken:    "resend-1",
			Phone:          req.Phone,
		}}, nil
	}
	p.confirmFn = func(_ context.Context, pv entity.PendingVerification, code string) (entity.ExternalIdentity, error) {
		if code != "123456" {
			return entity.ExternalIdentity{}, errInvalidCode
		}
		p.setToken("id-token-phone")
		return entity.ExternalIdentity{
			Provider:       entity.ProviderPhone,
			Token:          "id-token-phone",
			ProviderUserID: "fb-uid-1",
			Phone:          pv.Phone,
		}, nil
	}
	p.googleFn = func(context.Context) (entity.ExternalIdentity, error) {
		p.setToken("id-token-google")
		return entity.ExternalIdentity{
			Provider:       entity.ProviderGoogle,
			Token:          "id-token-google",
			ProviderUserID: "g-uid-1",
			Name:           "Ana",
			Email:          "ana@example.com",
		}, nil
	}
	p.emailFn = func(_ context.Context, email, _ string) (entity.ExternalIdentity, error) {
		p.setToken("id-token-email")
		return entity.ExternalIdentity{Provider: entity.ProviderPassword, Token: "id-token-email", Email: email}, nil
	}
	return p
}

var errInvalidCode = errors.New("invalid code")

func (p *fakeProvider) setToken(t string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = t
}

func (p *fakeProvider) StartPhoneVerification(ctx context.Context, req entity.PhoneVerificationRequest) (entity.VerificationOutcome, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return p.startFn(ctx, req)
}

func (p *fakeProvider) ConfirmPhoneCode(ctx context.Context, pv entity.PendingVerification, code string) (entity.ExternalIdentity, error) {
	return p.confirmFn(ctx, pv, code)
}

func (p *fakeProvider) IsThirdPartyAvailable() bool { return p.thirdParty }

func (p *fakeProvider) SignInWithThirdParty(ctx context.Context) (entity.ExternalIdentity, error) {
	return p.googleFn(ctx)
}

func (p *fakeProvider) SignInWithEmailPassword(ctx context.Context, email, password string) (entity.ExternalIdentity, error) {
	return p.emailFn(ctx, email, password)
}

func (p *fakeProvider) CreateAccountWithEmailPassword(ctx context.Context, email, password string) (entity.ExternalIdentity, error) {
	return p.emailFn(ctx, email, password)
}

func (p *fakeProvider) CurrentIdentityToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	p.token = ""
	if p.signOutFn != nil {
		return p.signOutFn()
	}
	return nil
}

// ─── fakeBackend ─────────────────────────────────────────────────────────────

// fakeBackend recuerda el rol registrado: los canjes posteriores lo devuelven
// con un token nuevo (jwt-1, jwt-2, ...).
type fakeBackend struct {
	exchangeFn func(ctx context.Context, token string) (entity.BackendSession, error)
	registerFn func(ctx context.Context, name string, role entity.Role, token string) (entity.BackendUser, error)
	loginFn    func(ctx context.Context, email, password string) (entity.BackendSession, error)
	regTradFn  func(ctx context.Context, name, email, password string, role entity.Role) (entity.BackendUser, error)
	profileFn  func(ctx context.Context, accessToken string) (entity.BackendUser, error)
	assignFn   func(ctx context.Context, accessToken string, role entity.Role) (entity.BackendSession, error)

	mu             sync.Mutex
	role           entity.Role
	exchanged      []string
	registers      []entity.Role
	registerTokens []string
	assigned       []string
}

var _ ports.BackendAuth = (*fakeBackend)(nil)

func newFakeBackend(role entity.Role) *fakeBackend {
	b := &fakeBackend{role: role}
	b.exchangeFn = func(context.Context, string) (entity.BackendSession, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return entity.BackendSession{
			AccessToken: fmt.Sprintf("jwt-%d", len(b.exchanged)),
			TokenType:   "Bearer",
			User:        entity.BackendUser{ID: "u-1", Name: "Usuario", Role: b.role},
		}, nil
	}
	b.registerFn = func(_ context.Context, name string, role entity.Role, _ string) (entity.BackendUser, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.role = role
		return entity.BackendUser{ID: "u-1", Name: name, Role: role}, nil
	}
	b.assignFn = func(_ context.Context, accessToken string, role entity.Role) (entity.BackendSession, error) {
		return entity.BackendSession{
			AccessToken: accessToken + "-" + role.String(),
			User:        entity.BackendUser{Role: role},
		}, nil
	}
	return b
}

func (b *fakeBackend) ExchangeIdentityForSession(ctx context.Context, token string) (entity.BackendSession, error) {
	b.mu.Lock()
	b.exchanged = append(b.exchanged, token)
	b.mu.Unlock()
	return b.exchangeFn(ctx, token)
}

func (b *fakeBackend) RegisterUser(ctx context.Context, name string, role entity.Role, token string) (entity.BackendUser, error) {
	b.mu.Lock()
	b.registers = append(b.registers, role)
	b.registerTokens = append(b.registerTokens, token)
	b.mu.Unlock()
	return b.registerFn(ctx, name, role, token)
}

func (b *fakeBackend) LoginTraditional(ctx context.Context, email, password string) (entity.BackendSession, error) {
	return b.loginFn(ctx, email, password)
}

func (b *fakeBackend) RegisterTraditional(ctx context.Context, name, email, password string, role entity.Role) (entity.BackendUser, error) {
	return b.regTradFn(ctx, name, email, password, role)
}

func (b *fakeBackend) FetchProfile(ctx context.Context, accessToken string) (entity.BackendUser, error) {
	return b.profileFn(ctx, accessToken)
}

func (b *fakeBackend) AssignRole(ctx context.Context, accessToken string, role entity.Role) (entity.BackendSession, error) {
	b.mu.Lock()
	b.assigned = append(b.assigned, accessToken)
	b.mu.Unlock()
	return b.assignFn(ctx, accessToken, role)
}
