package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/client/internal/logging"
	"storefront/client/internal/tokenstore"
)

// Role задаёт роль пользователя магазина.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
)

var (
	// ErrEmptyFields означает, что одно из обязательных полей формы не заполнено.
	ErrEmptyFields = errors.New("session: required field is empty")
	// ErrInvalidRole означает роль не из списка допустимых.
	ErrInvalidRole = errors.New("session: unknown role")
)

// User описывает текущего пользователя сессии.
type User struct {
	Email string
	Role  Role
}

// IsVendor сообщает, видны ли пользователю элементы кабинета продавца.
func (u User) IsVendor() bool {
	return u.Role == RoleVendor
}

// Status описывает состояние сессии.
type Status string

const (
	StatusLoggedOut Status = "LoggedOut"
	StatusLoggedIn  Status = "LoggedIn"
)

// Reason объясняет результат проверки токена при старте.
type Reason string

const (
	ReasonNoToken   Reason = "no_token"
	ReasonExpired   Reason = "expired"
	ReasonMalformed Reason = "malformed"
	ReasonValid     Reason = "valid"
)

// CheckResult содержит итог CheckAuthStatus.
type CheckResult struct {
	Status Status
	User   User
	Reason Reason
	// Token заполнен только для StatusLoggedIn.
	Token string
}

// Manager владеет сохранённым токеном: читает, проверяет, сохраняет и удаляет его.
type Manager struct {
	store  tokenstore.Store
	now    func() time.Time
	logger *logging.Logger
}

// NewManager создаёт менеджер сессии. now может быть nil, тогда используется time.Now.
func NewManager(store tokenstore.Store, logger *logging.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now, logger: logger}
}

// CheckAuthStatus читает токен и решает, залогинен ли пользователь.
// Истёкший или нечитаемый токен удаляется из хранилища.
func (m *Manager) CheckAuthStatus() CheckResult {
	token, err := m.store.Load()
	if err != nil {
		m.logger.Errorf("read stored token: %v", err)
		return CheckResult{Status: StatusLoggedOut, Reason: ReasonNoToken}
	}
	if token == "" {
		m.logger.Debugf("no token found")
		return CheckResult{Status: StatusLoggedOut, Reason: ReasonNoToken}
	}
	claims, err := DecodeToken(token)
	if err != nil {
		m.logger.Errorf("invalid token: %v", err)
		m.Purge()
		return CheckResult{Status: StatusLoggedOut, Reason: ReasonMalformed}
	}
	if claims.Expired(m.now()) {
		m.logger.Infof("token expired at %s", claims.ExpiresAt.UTC().Format(time.RFC3339))
		m.Purge()
		return CheckResult{Status: StatusLoggedOut, Reason: ReasonExpired}
	}
	user := User{Email: claims.Email, Role: claims.Role}
	m.logger.Infof("user authenticated: %s (%s)", user.Email, user.Role)
	return CheckResult{Status: StatusLoggedIn, User: user, Reason: ReasonValid, Token: token}
}

// Token возвращает сохранённый токен или пустую строку.
func (m *Manager) Token() string {
	token, err := m.store.Load()
	if err != nil {
		m.logger.Errorf("read stored token: %v", err)
		return ""
	}
	return token
}

// Begin сохраняет токен, выданный сервером при входе.
func (m *Manager) Begin(token string) error {
	if err := m.store.Save(token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Purge удаляет токен. Ошибка удаления только логируется: сессия всё равно считается завершённой.
func (m *Manager) Purge() {
	if err := m.store.Delete(); err != nil {
		m.logger.Errorf("purge token: %v", err)
	}
}

// ValidateCredentials проверяет форму входа до обращения к серверу.
func ValidateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrEmptyFields
	}
	return nil
}

// ValidateRegistration проверяет форму регистрации до обращения к серверу.
func ValidateRegistration(email, password string, role Role) error {
	if strings.TrimSpace(email) == "" || password == "" || strings.TrimSpace(string(role)) == "" {
		return ErrEmptyFields
	}
	switch role {
	case RoleCustomer, RoleVendor:
		return nil
	default:
		return ErrInvalidRole
	}
}
