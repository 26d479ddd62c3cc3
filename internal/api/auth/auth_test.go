package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Capoen/BootcampsAPI/internal/model"
	"github.com/Capoen/BootcampsAPI/internal/pkg/credential"
	"github.com/Capoen/BootcampsAPI/internal/pkg/metrics"
	"github.com/Capoen/BootcampsAPI/internal/pkg/token"
	"github.com/Capoen/BootcampsAPI/internal/store"

	"github.com/gin-gonic/gin"
)

type mockUserStore struct {
	createFunc           func(ctx context.Context, user *model.User) error
	findByEmailFunc      func(ctx context.Context, email string) (*model.User, error)
	findByIDFunc         func(ctx context.Context, id uint) (*model.User, error)
	findByResetTokenFunc func(ctx context.Context, digest string, now time.Time) (*model.User, error)
	updateDetailsFunc    func(ctx context.Context, id uint, updates map[string]interface{}) error
	updatePasswordFunc   func(ctx context.Context, id uint, passwordHash string) error
	setResetTokenFunc    func(ctx context.Context, id uint, digest string, expire time.Time) error
	clearResetTokenFunc  func(ctx context.Context, id uint) error
	resetPasswordFunc    func(ctx context.Context, id uint, passwordHash string) error

	ops []string // 调用顺序记录
}

func (m *mockUserStore) Create(ctx context.Context, user *model.User) error {
	m.ops = append(m.ops, "create")
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.ops = append(m.ops, "findByEmail")
	if m.findByEmailFunc != nil {
		return m.findByEmailFunc(ctx, email)
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	m.ops = append(m.ops, "findByID")
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStore) FindByResetToken(ctx context.Context, digest string, now time.Time) (*model.User, error) {
	m.ops = append(m.ops, "findByResetToken")
	if m.findByResetTokenFunc != nil {
		return m.findByResetTokenFunc(ctx, digest, now)
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStore) UpdateDetails(ctx context.Context, id uint, updates map[string]interface{}) error {
	m.ops = append(m.ops, "updateDetails")
	if m.updateDetailsFunc != nil {
		return m.updateDetailsFunc(ctx, id, updates)
	}
	return nil
}

func (m *mockUserStore) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	m.ops = append(m.ops, "updatePassword")
	if m.updatePasswordFunc != nil {
		return m.updatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *mockUserStore) SetResetToken(ctx context.Context, id uint, digest string, expire time.Time) error {
	m.ops = append(m.ops, "setResetToken")
	if m.setResetTokenFunc != nil {
		return m.setResetTokenFunc(ctx, id, digest, expire)
	}
	return nil
}

func (m *mockUserStore) ClearResetToken(ctx context.Context, id uint) error {
	m.ops = append(m.ops, "clearResetToken")
	if m.clearResetTokenFunc != nil {
		return m.clearResetTokenFunc(ctx, id)
	}
	return nil
}

func (m *mockUserStore) ResetPassword(ctx context.Context, id uint, passwordHash string) error {
	m.ops = append(m.ops, "resetPassword")
	if m.resetPasswordFunc != nil {
		return m.resetPasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

type mockMailer struct {
	sendFunc  func(ctx context.Context, toEmail string, resetURL string) error
	sendCalls int
	lastTo    string
	lastURL   string
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, toEmail string, resetURL string) error {
	m.sendCalls++
	m.lastTo = toEmail
	m.lastURL = resetURL
	if m.sendFunc != nil {
		return m.sendFunc(ctx, toEmail, resetURL)
	}
	return nil
}

func newTestHandler(userStore UserStore, mailer Mailer) *Handler {
	metrics.InitMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := token.NewIssuer("test_secret", time.Hour, 30, false)
	return NewHandler(userStore, issuer, mailer, "http://localhost:8081", 10*time.Minute, logger)
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/logout", h.Logout)
	r.POST("/forgotpassword", h.ForgotPassword)
	r.PUT("/resetpassword/:resettoken", h.ResetPassword)

	asUser := func(fn gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set("userID", uint(1))
			c.Set("role", "user")
			fn(c)
		}
	}
	r.GET("/me", asUser(h.Me))
	r.PUT("/updatedetails", asUser(h.UpdateDetails))
	r.PUT("/updatepassword", asUser(h.UpdatePassword))
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	hash, err := credential.HashPassword(plain)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func TestRegister_HashesPasswordAndReturnsToken(t *testing.T) {
	var created *model.User
	userStore := &mockUserStore{
		createFunc: func(ctx context.Context, user *model.User) error {
			user.ID = 1
			created = user
			return nil
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPost, "/register", gin.H{
		"name": "Ann", "email": "ann@x.com", "password": "secret1", "role": "user",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if created == nil {
		t.Fatalf("expected user to be created")
	}
	if created.Password == "secret1" {
		t.Fatalf("stored password equals plaintext")
	}
	if !credential.VerifyPassword(created.Password, "secret1") {
		t.Fatalf("stored hash does not verify against plaintext")
	}

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Token == "" {
		t.Fatalf("expected success with non-empty token, got %s", w.Body.String())
	}
	if got := w.Result().Cookies(); len(got) == 0 || got[0].Name != token.CookieName || !got[0].HttpOnly {
		t.Fatalf("expected HttpOnly token cookie")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	userStore := &mockUserStore{
		createFunc: func(ctx context.Context, user *model.User) error {
			return store.ErrDuplicateEmail
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPost, "/register", gin.H{
		"name": "Ann", "email": "ann@x.com", "password": "secret1",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRegister_RejectsAdminRole(t *testing.T) {
	userStore := &mockUserStore{}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPost, "/register", gin.H{
		"name": "Eve", "email": "eve@x.com", "password": "secret1", "role": "admin",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(userStore.ops) != 0 {
		t.Fatalf("expected no store calls, got %v", userStore.ops)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	r := newRouter(newTestHandler(&mockUserStore{}, &mockMailer{}))

	w := doJSON(r, http.MethodPost, "/login", gin.H{"email": "ann@x.com"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Please provide an email and password") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestLogin_Success(t *testing.T) {
	hash := mustHash(t, "secret1")
	userStore := &mockUserStore{
		findByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 1, Email: email, Password: hash, Role: "user"}, nil
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPost, "/login", gin.H{"email": "ann@x.com", "password": "secret1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"token"`)) {
		t.Fatalf("expected token in body: %s", w.Body.String())
	}
}

func TestLogin_EnumerationResistance(t *testing.T) {
	// 未知邮箱与密码错误必须返回字节级一致的响应。
	hash := mustHash(t, "secret1")

	unknownStore := &mockUserStore{
		findByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return nil, store.ErrNotFound
		},
	}
	wrongPassStore := &mockUserStore{
		findByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 1, Email: email, Password: hash, Role: "user"}, nil
		},
	}

	wUnknown := doJSON(newRouter(newTestHandler(unknownStore, &mockMailer{})),
		http.MethodPost, "/login", gin.H{"email": "ghost@x.com", "password": "whatever"})
	wWrongPass := doJSON(newRouter(newTestHandler(wrongPassStore, &mockMailer{})),
		http.MethodPost, "/login", gin.H{"email": "ann@x.com", "password": "wrong"})

	if wUnknown.Code != http.StatusUnauthorized || wWrongPass.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wUnknown.Code, wWrongPass.Code)
	}
	if !bytes.Equal(wUnknown.Body.Bytes(), wWrongPass.Body.Bytes()) {
		t.Fatalf("response bodies differ: %s vs %s", wUnknown.Body.String(), wWrongPass.Body.String())
	}
	if !bytes.Contains(wUnknown.Body.Bytes(), []byte("Invalid credentials")) {
		t.Fatalf("unexpected body: %s", wUnknown.Body.String())
	}
}

func TestMe_ReturnsUserWithoutPassword(t *testing.T) {
	userStore := &mockUserStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.User, error) {
			return &model.User{ID: id, Name: "Ann", Email: "ann@x.com", Password: "$2a$10$hash", Role: "user"}, nil
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodGet, "/me", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("$2a$10$hash")) {
		t.Fatalf("password hash leaked in response: %s", w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("ann@x.com")) {
		t.Fatalf("expected user data in response: %s", w.Body.String())
	}
}

func TestUpdatePassword_WrongCurrentPassword(t *testing.T) {
	hash := mustHash(t, "secret1")
	userStore := &mockUserStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.User, error) {
			return &model.User{ID: id, Email: "ann@x.com", Password: hash, Role: "user"}, nil
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPut, "/updatepassword", gin.H{
		"currentPassword": "wrong", "newPassword": "newsecret",
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	for _, op := range userStore.ops {
		if op == "updatePassword" {
			t.Fatalf("password must not be updated on failed verification")
		}
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	r := newRouter(newTestHandler(&mockUserStore{}, &mockMailer{}))

	w := doJSON(r, http.MethodPost, "/forgotpassword", gin.H{"email": "unknown@x.com"})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	want := `{"error":"There is no user with the email unknown@x.com","success":false}`
	if w.Body.String() != want {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestForgotPassword_StoresDigestMailsPlaintext(t *testing.T) {
	var storedDigest string
	userStore := &mockUserStore{
		findByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 1, Email: email, Role: "user"}, nil
		},
		setResetTokenFunc: func(ctx context.Context, id uint, digest string, expire time.Time) error {
			storedDigest = digest
			if remaining := time.Until(expire); remaining < 9*time.Minute || remaining > 11*time.Minute {
				t.Errorf("expected ~10m expiry, got %v", remaining)
			}
			return nil
		},
	}
	mailer := &mockMailer{}
	r := newRouter(newTestHandler(userStore, mailer))

	w := doJSON(r, http.MethodPost, "/forgotpassword", gin.H{"email": "ann@x.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Email sent")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if mailer.sendCalls != 1 {
		t.Fatalf("expected one mail, got %d", mailer.sendCalls)
	}

	// 令牌先落库后发信
	if len(userStore.ops) < 2 || userStore.ops[len(userStore.ops)-1] != "setResetToken" {
		t.Fatalf("expected setResetToken before mail dispatch, ops: %v", userStore.ops)
	}

	// 邮件里是明文令牌，库里只有 sha256
	idx := strings.LastIndex(mailer.lastURL, "/")
	plain := mailer.lastURL[idx+1:]
	if plain == storedDigest {
		t.Fatalf("plaintext token was persisted")
	}
	if credential.HashResetToken(plain) != storedDigest {
		t.Fatalf("stored digest is not the hash of the mailed token")
	}
}

func TestForgotPassword_MailFailureRollsBack(t *testing.T) {
	userStore := &mockUserStore{
		findByEmailFunc: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 1, Email: email, Role: "user"}, nil
		},
	}
	mailer := &mockMailer{
		sendFunc: func(ctx context.Context, toEmail string, resetURL string) error {
			return context.DeadlineExceeded
		},
	}
	r := newRouter(newTestHandler(userStore, mailer))

	w := doJSON(r, http.MethodPost, "/forgotpassword", gin.H{"email": "ann@x.com"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Email could not be sent")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	wantOps := []string{"findByEmail", "setResetToken", "clearResetToken"}
	if len(userStore.ops) != len(wantOps) {
		t.Fatalf("expected ops %v, got %v", wantOps, userStore.ops)
	}
	for i, op := range wantOps {
		if userStore.ops[i] != op {
			t.Fatalf("expected ops %v, got %v", wantOps, userStore.ops)
		}
	}
}

func TestResetPassword_InvalidToken(t *testing.T) {
	r := newRouter(newTestHandler(&mockUserStore{}, &mockMailer{}))

	w := doJSON(r, http.MethodPut, "/resetpassword/deadbeef", gin.H{"password": "newsecret"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Invalid token")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestResetPassword_SingleUse(t *testing.T) {
	// 模拟真实存储语义：重置成功后令牌字段被清空，重放同一令牌匹配失败。
	plain, digest, err := credential.NewResetToken()
	if err != nil {
		t.Fatalf("new reset token: %v", err)
	}
	expire := time.Now().Add(10 * time.Minute)
	user := &model.User{ID: 1, Email: "ann@x.com", Role: "user",
		ResetPasswordToken: &digest, ResetPasswordExpire: &expire}

	userStore := &mockUserStore{
		findByResetTokenFunc: func(ctx context.Context, d string, now time.Time) (*model.User, error) {
			if user.ResetPasswordToken == nil || *user.ResetPasswordToken != d {
				return nil, store.ErrNotFound
			}
			if !user.ResetPasswordExpire.After(now) {
				return nil, store.ErrNotFound
			}
			return user, nil
		},
		resetPasswordFunc: func(ctx context.Context, id uint, passwordHash string) error {
			user.Password = passwordHash
			user.ResetPasswordToken = nil
			user.ResetPasswordExpire = nil
			return nil
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPut, "/resetpassword/"+plain, gin.H{"password": "newsecret"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"token"`)) {
		t.Fatalf("expected fresh session token: %s", w.Body.String())
	}
	if !credential.VerifyPassword(user.Password, "newsecret") {
		t.Fatalf("password was not rehashed")
	}
	if user.ResetPasswordToken != nil || user.ResetPasswordExpire != nil {
		t.Fatalf("reset fields must be cleared after use")
	}

	// 重放
	w = doJSON(r, http.MethodPut, "/resetpassword/"+plain, gin.H{"password": "another1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on replay, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Invalid token")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	plain, digest, err := credential.NewResetToken()
	if err != nil {
		t.Fatalf("new reset token: %v", err)
	}
	expire := time.Now().Add(-time.Minute)
	user := &model.User{ID: 1, Email: "ann@x.com", Role: "user",
		ResetPasswordToken: &digest, ResetPasswordExpire: &expire}

	userStore := &mockUserStore{
		findByResetTokenFunc: func(ctx context.Context, d string, now time.Time) (*model.User, error) {
			if user.ResetPasswordToken != nil && *user.ResetPasswordToken == d && user.ResetPasswordExpire.After(now) {
				return user, nil
			}
			return nil, store.ErrNotFound
		},
	}
	r := newRouter(newTestHandler(userStore, &mockMailer{}))

	w := doJSON(r, http.MethodPut, "/resetpassword/"+plain, gin.H{"password": "newsecret"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for expired token, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Invalid token")) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestLogout_ExpiresCookie(t *testing.T) {
	r := newRouter(newTestHandler(&mockUserStore{}, &mockMailer{}))

	w := doJSON(r, http.MethodGet, "/logout", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != token.CookieName {
		t.Fatalf("expected token cookie to be rewritten")
	}
	if cookies[0].Expires.After(time.Now().Add(time.Minute)) {
		t.Fatalf("expected cookie to expire immediately")
	}
}
