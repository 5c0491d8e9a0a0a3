package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
	"github.com/jhoicas/mercado-local/pkg/config"
)

type firebaseFake struct {
	srv       *httptest.Server
	refreshes atomic.Int32
	failNext  atomic.Int32 // respuestas 503 antes de refrescar con éxito
}

func newFirebaseFake(t *testing.T) *firebaseFake {
	t.Helper()
	ff := &firebaseFake{}
	mux := http.NewServeMux()

	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	fail := func(w http.ResponseWriter, msg string) {
		reply(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": msg}})
	}

	mux.HandleFunc("/v1/accounts:sendVerificationCode", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["phoneNumber"] == "+15550000000" {
			fail(w, "QUOTA_EXCEEDED")
			return
		}
		reply(w, http.StatusOK, map[string]string{"sessionInfo": "session-info-1"})
	})
	mux.HandleFunc("/v1/accounts:signInWithPhoneNumber", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body["sessionInfo"] != "session-info-1":
			fail(w, "INVALID_SESSION_INFO")
		case body["code"] != "123456":
			fail(w, "INVALID_CODE")
		default:
			reply(w, http.StatusOK, map[string]string{
				"idToken": "fb-id-1", "refreshToken": "fb-refresh-1", "expiresIn": "3600",
				"localId": "fb-uid-1", "phoneNumber": "+15551234567",
			})
		}
	})
	mux.HandleFunc("/v1/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secreto" {
			fail(w, "INVALID_LOGIN_CREDENTIALS")
			return
		}
		reply(w, http.StatusOK, map[string]string{
			"idToken": "fb-id-2", "refreshToken": "fb-refresh-2", "expiresIn": "30",
			"localId": "fb-uid-2", "email": "ana@example.com",
		})
	})
	mux.HandleFunc("/v1/accounts:signUp", func(w http.ResponseWriter, _ *http.Request) {
		fail(w, "EMAIL_EXISTS")
	})
	mux.HandleFunc("/v1/accounts:signInWithIdp", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Contains(t, body["postBody"], "id_token=google-id")
		assert.Contains(t, body["postBody"], "providerId=google.com")
		reply(w, http.StatusOK, map[string]string{
			"idToken": "fb-id-3", "refreshToken": "fb-refresh-3", "expiresIn": "3600", "localId": "fb-uid-3",
		})
	})
	mux.HandleFunc("/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if ff.failNext.Load() > 0 {
			ff.failNext.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "fb-refresh-2", r.PostForm.Get("refresh_token"))
		ff.refreshes.Add(1)
		reply(w, http.StatusOK, map[string]string{
			"id_token": "fb-id-2b", "refresh_token": "fb-refresh-2b", "expires_in": "3600", "user_id": "fb-uid-2",
		})
	})

	ff.srv = httptest.NewServer(mux)
	t.Cleanup(ff.srv.Close)
	return ff
}

func newTestFirebase(ff *firebaseFake, tp ThirdPartySignIn) *Firebase {
	return NewFirebase(config.FirebaseConfig{
		APIKey:   "test-key",
		BaseURL:  ff.srv.URL + "/v1",
		TokenURL: ff.srv.URL + "/v1/token",
	}, config.HTTPClientConfig{
		Timeout:      2 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, tp, nil)
}

type stubGoogle struct {
	err error
}

func (s stubGoogle) SignIn(context.Context) (GoogleCredential, error) {
	if s.err != nil {
		return GoogleCredential{}, s.err
	}
	return GoogleCredential{IDToken: "google-id", Subject: "g-1", Name: "Ana", Email: "ana@example.com"}, nil
}

func (stubGoogle) ProviderID() string { return "google.com" }

// ─── Teléfono ────────────────────────────────────────────────────────────────

func TestFirebase_TelefonoCompleto(t *testing.T) {
	fb := newTestFirebase(newFirebaseFake(t), nil)
	ctx := context.Background()

	out, err := fb.StartPhoneVerification(ctx, entity.PhoneVerificationRequest{Phone: "+1 555 123-4567"})
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.False(t, out.AutoVerified())
	assert.Equal(t, "+15551234567", out.Pending.Phone)

	id, err := fb.ConfirmPhoneCode(ctx, *out.Pending, "123456")
	require.NoError(t, err)
	assert.Equal(t, entity.ProviderPhone, id.Provider)
	assert.Equal(t, "fb-uid-1", id.ProviderUserID)
	assert.Equal(t, "fb-id-1", id.Token)

	token, err := fb.CurrentIdentityToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fb-id-1", token)

	require.NoError(t, fb.SignOut(ctx))
	token, err = fb.CurrentIdentityToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestFirebase_FormatoInvalidoNoLlamaAlServidor(t *testing.T) {
	fb := NewFirebase(config.FirebaseConfig{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"}, config.HTTPClientConfig{}, nil, nil)
	_, err := fb.StartPhoneVerification(context.Background(), entity.PhoneVerificationRequest{Phone: "3001234567"})
	assert.ErrorIs(t, err, domain.ErrInvalidPhoneFormat)
}

func TestFirebase_MapeoDeErrores(t *testing.T) {
	fb := newTestFirebase(newFirebaseFake(t), nil)
	ctx := context.Background()

	_, err := fb.StartPhoneVerification(ctx, entity.PhoneVerificationRequest{Phone: "+15550000000"})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	_, err = fb.ConfirmPhoneCode(ctx, entity.PendingVerification{VerificationID: "session-info-1"}, "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	_, err = fb.ConfirmPhoneCode(ctx, entity.PendingVerification{VerificationID: "otra"}, "123456")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = fb.SignInWithEmailPassword(ctx, "ana@example.com", "mal")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = fb.CreateAccountWithEmailPassword(ctx, "ana@example.com", "secreto")
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestDecodeFirebaseError_PrefijoConDetalle(t *testing.T) {
	perr := decodeFirebaseError(400, []byte(`{"error":{"message":"TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled"}}`))
	assert.ErrorIs(t, perr, domain.ErrTooManyRequests)

	perr = decodeFirebaseError(500, []byte(`no-json`))
	assert.ErrorIs(t, perr, domain.ErrProviderUnavailable)
	assert.Equal(t, "HTTP 500", perr.Reason)
}

// ─── Refresh ─────────────────────────────────────────────────────────────────

func TestFirebase_RefrescaTokenPorVencerConReintentos(t *testing.T) {
	ff := newFirebaseFake(t)
	fb := newTestFirebase(ff, nil)
	ctx := context.Background()

	_, err := fb.SignInWithEmailPassword(ctx, "ana@example.com", "secreto")
	require.NoError(t, err)

	// expiresIn=30s queda dentro del margen de refresco.
	ff.failNext.Store(1)
	token, err := fb.CurrentIdentityToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fb-id-2b", token)
	assert.Equal(t, int32(1), ff.refreshes.Load())

	token, err = fb.CurrentIdentityToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fb-id-2b", token)
	assert.Equal(t, int32(1), ff.refreshes.Load(), "el token nuevo no se vuelve a refrescar")
}

// ─── Terceros ────────────────────────────────────────────────────────────────

func TestFirebase_TerceroNoConfigurado(t *testing.T) {
	fb := newTestFirebase(newFirebaseFake(t), nil)
	assert.False(t, fb.IsThirdPartyAvailable())
	_, err := fb.SignInWithThirdParty(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestFirebase_TerceroEnlazaCredencial(t *testing.T) {
	fb := newTestFirebase(newFirebaseFake(t), stubGoogle{})
	require.True(t, fb.IsThirdPartyAvailable())

	id, err := fb.SignInWithThirdParty(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.ProviderGoogle, id.Provider)
	assert.Equal(t, "fb-id-3", id.Token)
	assert.Equal(t, "Ana", id.Name)
	assert.Equal(t, "ana@example.com", id.Email)
}

func TestFirebase_TerceroCancelado(t *testing.T) {
	fb := newTestFirebase(newFirebaseFake(t), stubGoogle{err: &domain.ProviderError{Reason: "access_denied", Kind: domain.ErrUserCancelled}})
	_, err := fb.SignInWithThirdParty(context.Background())
	assert.ErrorIs(t, err, domain.ErrUserCancelled)
}

func TestNormalizePhone(t *testing.T) {
	phone, err := NormalizePhone(" +57 (300) 123-4567 ")
	require.NoError(t, err)
	assert.Equal(t, "+573001234567", phone)

	for _, bad := range []string{"", "+0123456789", "5551234567", "+1555", "+1555123456789012"} {
		_, err := NormalizePhone(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidPhoneFormat, bad)
	}
}
