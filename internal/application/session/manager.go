package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/mercado-local/internal/application/ports"
	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/jwt"
	"github.com/jhoicas/mercado-local/pkg/logger"
)

// PhoneLoginResult resultado de LoginWithPhone: código enviado, o sesión ya
// iniciada si el proveedor verificó el número automáticamente.
type PhoneLoginResult struct {
	CodeSent     bool
	AutoVerified bool
	Phone        string
	Session      entity.Session
}

// attempt un intento de inicio de sesión. Un intento nuevo cancela el anterior;
// un intento cancelado nunca llega a confirmar la sesión.
type attempt struct {
	ctx     context.Context
	cancel  context.CancelFunc
	pending *entity.PendingVerification
}

// linkedIdentity identidad externa con la que se canjeó la sesión publicada.
// Solo vale mientras la sesión siga siendo la de accessToken.
type linkedIdentity struct {
	accessToken    string
	providerUserID string
	token          string
}

func (l linkedIdentity) boundTo(s entity.Session) bool {
	return l.token != "" && l.accessToken == s.AccessToken
}

// Manager única fuente de verdad de la sesión y único componente que la modifica.
type Manager struct {
	store    ports.SessionStore
	provider ports.CredentialProvider
	backend  ports.BackendAuth
	log      *logger.Logger
	now      func() time.Time

	state *observable

	// mu serializa el par persistir+publicar y protege linked.
	mu     sync.Mutex
	linked linkedIdentity

	attemptMu sync.Mutex
	current   *attempt
}

// Option configura el Manager.
type Option func(*Manager)

// WithLogger inyecta el logger de la aplicación.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l.Component("session") }
}

// NewManager construye el gestor de sesión. Arranca sin sesión hasta Hydrate.
func NewManager(store ports.SessionStore, provider ports.CredentialProvider, backend ports.BackendAuth, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		provider: provider,
		backend:  backend,
		log:      logger.NewNop(),
		now:      time.Now,
		state:    newObservable(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current devuelve una copia de la sesión publicada.
func (m *Manager) Current() entity.Session {
	return m.state.get()
}

// Subscribe entrega la sesión actual de inmediato y luego cada cambio.
// El canal conserva solo el último valor; cancel libera la suscripción.
func (m *Manager) Subscribe() (<-chan entity.Session, func()) {
	return m.state.subscribe()
}

// Pending devuelve la verificación telefónica en curso, si la hay.
func (m *Manager) Pending() (entity.PendingVerification, bool) {
	_, p := m.currentPending()
	if p == nil {
		return entity.PendingVerification{}, false
	}
	return *p, true
}

// Hydrate carga la sesión persistida. No usa la red.
func (m *Manager) Hydrate(ctx context.Context) (entity.Session, error) {
	if err := ctx.Err(); err != nil {
		return m.Current(), err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make(map[string]string, len(ports.SessionKeys))
	for _, key := range ports.SessionKeys {
		v, ok, err := m.store.Get(key)
		if err != nil {
			return m.state.get(), fmt.Errorf("leer %s: %w", key, err)
		}
		if ok {
			values[key] = v
		}
	}

	s := entity.LoggedOut()
	if token := values[ports.KeyAccessToken]; token != "" {
		role, err := entity.ParseRole(values[ports.KeyUserRole])
		if err != nil {
			m.log.Warn().Str("role", values[ports.KeyUserRole]).Msg("rol persistido inválido, se ignora")
			role = entity.RoleNone
		}
		s = entity.Session{
			AccessToken:        token,
			UserID:             values[ports.KeyUserID],
			Role:               role,
			DisplayName:        values[ports.KeyUserName],
			Email:              values[ports.KeyUserEmail],
			Phone:              values[ports.KeyUserPhone],
			ExternalProviderID: values[ports.KeyExternalProviderID],
		}
	}
	m.linked = linkedIdentity{}
	m.state.publish(s)
	m.log.Debug().Bool("authenticated", s.IsAuthenticated()).Str("role", s.Role.String()).Msg("sesión hidratada")
	return s, nil
}

// LoginWithPhone inicia la verificación telefónica. Reemplaza cualquier intento previo.
func (m *Manager) LoginWithPhone(ctx context.Context, phone string) (PhoneLoginResult, error) {
	a := m.newAttempt()
	ctx, done := bindAttempt(ctx, a)
	defer done()

	outcome, err := m.provider.StartPhoneVerification(ctx, entity.PhoneVerificationRequest{Phone: phone})
	if err != nil {
		m.finishAttempt(a)
		return PhoneLoginResult{}, fmt.Errorf("enviar código: %w", err)
	}
	return m.handleOutcome(ctx, a, phone, outcome)
}

// ResendCode reenvía el código de la verificación pendiente. Si falla, la
// verificación anterior sigue vigente.
func (m *Manager) ResendCode(ctx context.Context) (PhoneLoginResult, error) {
	a, pending := m.currentPending()
	if pending == nil {
		return PhoneLoginResult{}, domain.ErrNoPendingVerification
	}
	ctx, done := bindAttempt(ctx, a)
	defer done()

	outcome, err := m.provider.StartPhoneVerification(ctx, entity.PhoneVerificationRequest{
		Phone:       pending.Phone,
		ResendToken: pending.ResendToken,
	})
	if err != nil {
		return PhoneLoginResult{}, fmt.Errorf("reenviar código: %w", err)
	}
	return m.handleOutcome(ctx, a, pending.Phone, outcome)
}

func (m *Manager) handleOutcome(ctx context.Context, a *attempt, phone string, outcome entity.VerificationOutcome) (PhoneLoginResult, error) {
	if outcome.AutoVerified() {
		s, err := m.exchangeAndCommit(ctx, a, *outcome.Identity)
		if err != nil {
			return PhoneLoginResult{}, err
		}
		return PhoneLoginResult{AutoVerified: true, Phone: phone, Session: s}, nil
	}
	if outcome.Pending == nil {
		m.finishAttempt(a)
		return PhoneLoginResult{}, fmt.Errorf("enviar código: respuesta vacía del proveedor: %w", domain.ErrProviderUnavailable)
	}

	pending := *outcome.Pending
	if pending.Phone == "" {
		pending.Phone = phone
	}
	if pending.RequestedAt.IsZero() {
		pending.RequestedAt = m.now()
	}
	if !m.setPending(a, &pending) {
		return PhoneLoginResult{}, fmt.Errorf("enviar código: %w", context.Canceled)
	}
	m.log.Info().Msg("código de verificación enviado")
	return PhoneLoginResult{CodeSent: true, Phone: pending.Phone}, nil
}

// ConfirmPhoneCode confirma el código, canjea la identidad en el backend y
// publica la sesión. Cualquier fallo deja la sesión anterior intacta.
func (m *Manager) ConfirmPhoneCode(ctx context.Context, code string) (entity.Session, error) {
	a, pending := m.currentPending()
	if pending == nil {
		return m.Current(), domain.ErrNoPendingVerification
	}
	ctx, done := bindAttempt(ctx, a)
	defer done()

	identity, err := m.provider.ConfirmPhoneCode(ctx, *pending, code)
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("confirmar código: %w", err)
	}
	return m.exchangeAndCommit(ctx, a, identity)
}

// CancelVerification cancela el intento en curso (espera de OTP incluida).
func (m *Manager) CancelVerification() {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	if m.current != nil {
		m.current.cancel()
		m.current = nil
	}
}

// LoginWithThirdParty inicia sesión con el proveedor externo (Google).
// Si no está disponible falla de inmediato sin tocar el intento en curso.
func (m *Manager) LoginWithThirdParty(ctx context.Context) (entity.Session, error) {
	if !m.provider.IsThirdPartyAvailable() {
		return m.Current(), domain.ErrNotConfigured
	}
	a := m.newAttempt()
	ctx, done := bindAttempt(ctx, a)
	defer done()

	identity, err := m.provider.SignInWithThirdParty(ctx)
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("inicio con proveedor externo: %w", err)
	}
	return m.exchangeAndCommit(ctx, a, identity)
}

// LoginWithEmailIdentity email/password a través del proveedor de identidad
// (no del backend); create=true crea la cuenta en el proveedor.
func (m *Manager) LoginWithEmailIdentity(ctx context.Context, email, password string, create bool) (entity.Session, error) {
	a := m.newAttempt()
	ctx, done := bindAttempt(ctx, a)
	defer done()

	var (
		identity entity.ExternalIdentity
		err      error
	)
	if create {
		identity, err = m.provider.CreateAccountWithEmailPassword(ctx, email, password)
	} else {
		identity, err = m.provider.SignInWithEmailPassword(ctx, email, password)
	}
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("inicio con email: %w", err)
	}
	return m.exchangeAndCommit(ctx, a, identity)
}

// LoginOrRegisterTraditional login contra el backend; si la cuenta no existe
// la registra sin rol y vuelve a intentar el login.
func (m *Manager) LoginOrRegisterTraditional(ctx context.Context, email, password string) (entity.Session, error) {
	a := m.newAttempt()
	ctx, done := bindAttempt(ctx, a)
	defer done()

	bs, err := m.backend.LoginTraditional(ctx, email, password)
	if errors.Is(err, domain.ErrAccountNotFound) {
		if _, err = m.backend.RegisterTraditional(ctx, nameFromEmail(email), email, password, entity.RoleNone); err != nil {
			m.finishAttempt(a)
			return m.Current(), fmt.Errorf("registro: %w", err)
		}
		bs, err = m.backend.LoginTraditional(ctx, email, password)
	}
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("login: %w", err)
	}
	return m.commitBackendSession(ctx, a, bs, entity.ExternalIdentity{Email: email}, "")
}

// RegisterTraditional registra la cuenta en el backend e inicia sesión con ella.
func (m *Manager) RegisterTraditional(ctx context.Context, name, email, password string, role entity.Role) (entity.Session, error) {
	if role != entity.RoleNone && !role.Valid() {
		return m.Current(), fmt.Errorf("rol %q: %w", role, domain.ErrValidation)
	}
	a := m.newAttempt()
	ctx, done := bindAttempt(ctx, a)
	defer done()

	if _, err := m.backend.RegisterTraditional(ctx, name, email, password, role); err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("registro: %w", err)
	}
	bs, err := m.backend.LoginTraditional(ctx, email, password)
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("login tras registro: %w", err)
	}
	return m.commitBackendSession(ctx, a, bs, entity.ExternalIdentity{Name: name, Email: email}, "")
}

// SelectRole fija el rol de una sesión que aún no lo tiene. El rol es inmutable:
// un segundo llamado devuelve ErrRoleAlreadySet. El backend reemite el access
// token con el rol y la sesión publicada pasa a usar ese token.
func (m *Manager) SelectRole(ctx context.Context, role entity.Role) (entity.Session, error) {
	if !role.Valid() {
		return m.Current(), fmt.Errorf("rol %q: %w", role, domain.ErrValidation)
	}
	cur := m.Current()
	if err := checkRoleSelectable(cur); err != nil {
		return cur, err
	}

	m.mu.Lock()
	linked := m.linked
	m.mu.Unlock()

	var (
		bs  entity.BackendSession
		err error
	)
	if linked.boundTo(cur) {
		bs, err = m.registerRoleWithIdentity(ctx, cur, role, linked)
	} else {
		// Login tradicional o sesión hidratada: sin identidad externa enlazada.
		bs, err = m.backend.AssignRole(ctx, cur.AccessToken, role)
	}
	if err != nil {
		return cur, fmt.Errorf("registrar rol: %w", err)
	}
	if bs.AccessToken == "" || bs.User.Role != role {
		return cur, fmt.Errorf("registrar rol: el backend no reemitió la sesión con el rol: %w", domain.ErrServerError)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	latest := m.state.get()
	if latest.AccessToken != cur.AccessToken {
		return latest, domain.ErrNotAuthenticated
	}
	if err := checkRoleSelectable(latest); err != nil {
		return latest, err
	}
	next := latest
	next.AccessToken = bs.AccessToken
	next.Role = role
	next.UserID = firstNonEmpty(bs.User.ID, latest.UserID)
	next.DisplayName = firstNonEmpty(bs.User.Name, latest.DisplayName)
	next.Email = firstNonEmpty(bs.User.Email, latest.Email)
	next.Phone = firstNonEmpty(bs.User.Phone, latest.Phone)
	if err := m.persist(next); err != nil {
		return latest, fmt.Errorf("guardar rol: %w", err)
	}
	if m.linked.boundTo(latest) {
		m.linked.accessToken = next.AccessToken
	}
	m.state.publish(next)
	m.log.Info().Str("role", role.String()).Msg("rol seleccionado")
	return next, nil
}

// registerRoleWithIdentity registra el rol con la identidad enlazada a la sesión
// y vuelve a canjearla para obtener un access token con el rol.
func (m *Manager) registerRoleWithIdentity(ctx context.Context, cur entity.Session, role entity.Role, linked linkedIdentity) (entity.BackendSession, error) {
	token := linked.token
	// El token vigente del proveedor solo sirve si sigue siendo la misma cuenta.
	if current, err := m.provider.CurrentIdentityToken(ctx); err == nil && current != "" &&
		linked.providerUserID != "" && subjectOf(current) == linked.providerUserID {
		token = current
	}
	if _, err := m.backend.RegisterUser(ctx, registrationName(cur), role, token); err != nil {
		return entity.BackendSession{}, err
	}
	return m.backend.ExchangeIdentityForSession(ctx, token)
}

// RefreshProfile actualiza nombre, email y teléfono desde el backend.
// Solo un 401 invalida la sesión; cualquier otro fallo la deja como estaba.
func (m *Manager) RefreshProfile(ctx context.Context) (entity.Session, error) {
	cur := m.Current()
	if !cur.IsAuthenticated() {
		return cur, domain.ErrNotAuthenticated
	}
	user, err := m.backend.FetchProfile(ctx, cur.AccessToken)
	if err != nil {
		var be *domain.BackendError
		if errors.As(err, &be) && be.Status == 401 {
			m.log.Warn().Msg("token rechazado por el backend, se cierra la sesión")
			if clearErr := m.invalidate(cur.AccessToken); clearErr != nil {
				return m.Current(), errors.Join(err, clearErr)
			}
		}
		return m.Current(), fmt.Errorf("actualizar perfil: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	latest := m.state.get()
	if latest.AccessToken != cur.AccessToken {
		return latest, nil // la sesión cambió mientras tanto; el perfil ya no aplica
	}
	next := latest
	next.DisplayName = firstNonEmpty(user.Name, latest.DisplayName)
	next.Email = firstNonEmpty(user.Email, latest.Email)
	next.Phone = firstNonEmpty(user.Phone, latest.Phone)
	next.UserID = firstNonEmpty(latest.UserID, user.ID)
	if next == latest {
		return latest, nil
	}
	if err := m.persist(next); err != nil {
		return latest, fmt.Errorf("guardar perfil: %w", err)
	}
	m.state.publish(next)
	return next, nil
}

// SignOut cierra la sesión. Idempotente: sin sesión no publica nada nuevo.
func (m *Manager) SignOut(ctx context.Context) error {
	m.CancelVerification()

	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Warn().Err(err).Msg("cierre de sesión en el proveedor falló, se continúa")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.Clear()
	m.linked = linkedIdentity{}
	if m.state.publish(entity.LoggedOut()) {
		m.log.Info().Msg("sesión cerrada")
	}
	if err != nil {
		return fmt.Errorf("limpiar almacén: %w", err)
	}
	return nil
}

// ── Internos ─────────────────────────────────────────────────────────────────

func (m *Manager) exchangeAndCommit(ctx context.Context, a *attempt, identity entity.ExternalIdentity) (entity.Session, error) {
	token, err := m.provider.CurrentIdentityToken(ctx)
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("token de identidad: %w", err)
	}
	if token == "" {
		token = identity.Token
	}
	if token == "" {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("token de identidad vacío: %w", domain.ErrProviderUnavailable)
	}

	bs, err := m.backend.ExchangeIdentityForSession(ctx, token)
	if err != nil {
		m.finishAttempt(a)
		return m.Current(), fmt.Errorf("canjear identidad: %w", err)
	}
	return m.commitBackendSession(ctx, a, bs, identity, token)
}

// commitBackendSession persiste y publica la sesión del backend. identityToken
// es el token canjeado ("" en el login tradicional) y queda enlazado a la sesión.
func (m *Manager) commitBackendSession(ctx context.Context, a *attempt, bs entity.BackendSession, identity entity.ExternalIdentity, identityToken string) (entity.Session, error) {
	defer m.finishAttempt(a)

	if bs.AccessToken == "" {
		return m.Current(), fmt.Errorf("respuesta sin access token: %w", domain.ErrServerError)
	}
	s := entity.Session{
		AccessToken:        bs.AccessToken,
		UserID:             bs.User.ID,
		Role:               bs.User.Role,
		DisplayName:        firstNonEmpty(bs.User.Name, identity.Name),
		Email:              firstNonEmpty(bs.User.Email, identity.Email),
		Phone:              firstNonEmpty(bs.User.Phone, identity.Phone),
		ExternalProviderID: identity.ProviderUserID,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Un intento reemplazado o cancelado no deja rastro.
	if err := ctx.Err(); err != nil {
		return m.state.get(), err
	}
	if !m.isCurrent(a) {
		return m.state.get(), context.Canceled
	}
	if err := m.persist(s); err != nil {
		return m.state.get(), fmt.Errorf("guardar sesión: %w", err)
	}
	m.linked = linkedIdentity{}
	if identityToken != "" {
		m.linked = linkedIdentity{
			accessToken:    s.AccessToken,
			providerUserID: identity.ProviderUserID,
			token:          identityToken,
		}
	}
	m.state.publish(s)
	m.log.Info().Str("provider", identity.Provider).Str("role", s.Role.String()).Msg("sesión iniciada")
	return s, nil
}

// persist escribe la sesión. access_token se borra primero y se escribe al
// final: una escritura a medias queda como "sin sesión". Requiere m.mu.
func (m *Manager) persist(s entity.Session) error {
	if err := m.store.Set(ports.KeyAccessToken, ""); err != nil {
		return err
	}
	values := map[string]string{
		ports.KeyUserID:             s.UserID,
		ports.KeyUserRole:           s.Role.String(),
		ports.KeyUserName:           s.DisplayName,
		ports.KeyUserEmail:          s.Email,
		ports.KeyUserPhone:          s.Phone,
		ports.KeyExternalProviderID: s.ExternalProviderID,
		ports.KeyAccessToken:        s.AccessToken,
	}
	for _, key := range ports.SessionKeys {
		if err := m.store.Set(key, values[key]); err != nil {
			return fmt.Errorf("escribir %s: %w", key, err)
		}
	}
	return nil
}

// invalidate destruye la sesión si sigue siendo la del token rechazado.
func (m *Manager) invalidate(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.get().AccessToken != token {
		return nil
	}
	err := m.store.Clear()
	m.linked = linkedIdentity{}
	m.state.publish(entity.LoggedOut())
	return err
}

func (m *Manager) newAttempt() *attempt {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	if m.current != nil {
		m.current.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.current = &attempt{ctx: ctx, cancel: cancel}
	return m.current
}

func (m *Manager) finishAttempt(a *attempt) {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	if m.current == a {
		a.cancel()
		m.current = nil
	}
}

func (m *Manager) isCurrent(a *attempt) bool {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	return m.current == a
}

func (m *Manager) setPending(a *attempt, p *entity.PendingVerification) bool {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	if m.current != a {
		return false
	}
	a.pending = p
	return true
}

func (m *Manager) currentPending() (*attempt, *entity.PendingVerification) {
	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()
	if m.current == nil || m.current.pending == nil {
		return nil, nil
	}
	p := *m.current.pending
	return m.current, &p
}

// bindAttempt deriva del contexto del llamador uno que además se cancela
// cuando el intento es reemplazado o cancelado.
func bindAttempt(parent context.Context, a *attempt) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(a.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func checkRoleSelectable(s entity.Session) error {
	if !s.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	if s.Role != entity.RoleNone {
		return domain.ErrRoleAlreadySet
	}
	return nil
}

func registrationName(s entity.Session) string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.Email != "":
		return nameFromEmail(s.Email)
	default:
		return s.Phone
	}
}

func subjectOf(token string) string {
	sub, err := jwt.Subject(token)
	if err != nil {
		return ""
	}
	return sub
}

func nameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
