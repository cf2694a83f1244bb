package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bengkelku/internal/clock"
	"bengkelku/internal/config"
	"bengkelku/internal/domain"
	"bengkelku/internal/events"
	"bengkelku/internal/ids"
	"bengkelku/internal/metrics"
	"bengkelku/internal/models"
	"bengkelku/internal/repository"
	"bengkelku/internal/seed"
	"bengkelku/internal/simulation"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// UserService owns the session user and the account registry, keyed by phone number.
type UserService struct {
	store    domain.Store
	network  domain.Network
	eventBus domain.EventPublisher
	clock    clock.Clock
	ids      ids.Generator
	seed     seed.Provider
	limiter  *otpLimiter
	hashCost int
	logger   *zerolog.Logger

	mu       sync.RWMutex
	current  *models.User
	accounts map[string]models.Account
}

func NewUserService(
	store domain.Store,
	network domain.Network,
	eventBus domain.EventPublisher,
	clk clock.Clock,
	gen ids.Generator,
	provider seed.Provider,
	cfg config.AuthConfig,
	logger *zerolog.Logger,
) *UserService {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{
		store:    store,
		network:  network,
		eventBus: eventBus,
		clock:    clk,
		ids:      gen,
		seed:     provider,
		limiter:  newOTPLimiter(cfg),
		hashCost: cost,
		logger:   logger,
		accounts: make(map[string]models.Account),
	}
}

// Refresh reloads the registry and the session user from storage.
func (s *UserService) Refresh(ctx context.Context) {
	list := repository.ReadCollection[models.Account](ctx, s.store, repository.KeyUsers, s.logger)
	current := repository.ReadSingleton[models.User](ctx, s.store, repository.KeyCurrentUser, s.logger)

	accounts := make(map[string]models.Account, len(list))
	for _, acct := range list {
		accounts[acct.User.Phone] = acct
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	s.current = current
}

// EnsureDefaultAccount registers the demo account if its phone number is free.
func (s *UserService) EnsureDefaultAccount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := s.seed.DemoUser()
	if _, ok := s.accounts[def.Phone]; ok {
		return nil
	}
	acct, err := s.newAccount(def, seed.DemoPassword)
	if err != nil {
		return err
	}
	accounts := s.copyAccounts()
	accounts[def.Phone] = acct
	return s.commitAccounts(ctx, accounts)
}

func (s *UserService) Login(ctx context.Context, phone, password string) (*models.User, error) {
	if err := s.network.Call(ctx, simulation.OpLogin); err != nil {
		return nil, err
	}

	user, err := s.authenticate(ctx, phone, password)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User logged in")
	s.publish(events.EventUserLoggedIn, events.UserEventPayload{UserID: user.ID, Phone: user.Phone})
	return &user, nil
}

// authenticate checks the password and makes the account current.
func (s *UserService) authenticate(ctx context.Context, phone, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[phone]
	if !ok && phone == seed.DemoPhone && password == seed.DemoPassword {
		// демо-аккаунт доступен даже после очистки данных
		def, err := s.newAccount(s.seed.DemoUser(), seed.DemoPassword)
		if err != nil {
			return models.User{}, err
		}
		accounts := s.copyAccounts()
		accounts[phone] = def
		if err := s.commitAccounts(ctx, accounts); err != nil {
			return models.User{}, err
		}
		acct, ok = def, true
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return models.User{}, domain.ErrInvalidCredentials
	}

	user := acct.User
	if err := s.commitCurrent(ctx, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Register adds an account. It does not log the new user in.
func (s *UserService) Register(ctx context.Context, name, phone, email, password string) (*models.User, error) {
	user := models.User{
		Name:        strings.TrimSpace(name),
		Phone:       strings.TrimSpace(phone),
		Email:       strings.TrimSpace(email),
		TotalPoints: 0,
		IsActive:    true,
	}
	if err := validateStruct(user); err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, domain.NewValidationError("password", "min")
	}

	if err := s.network.Call(ctx, simulation.OpRegister); err != nil {
		return nil, err
	}

	user, err := s.addAccount(ctx, user, password)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User registered")
	s.publish(events.EventUserRegistered, events.UserEventPayload{UserID: user.ID, Phone: user.Phone})
	return &user, nil
}

func (s *UserService) addAccount(ctx context.Context, user models.User, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[user.Phone]; exists {
		return models.User{}, fmt.Errorf("phone %s already registered: %w", user.Phone, domain.ErrAlreadyExists)
	}

	user.ID = s.ids.New(ids.PrefixUser)
	user.CreatedAt = s.clock.Now()
	acct, err := s.newAccount(user, password)
	if err != nil {
		return models.User{}, err
	}

	accounts := s.copyAccounts()
	accounts[user.Phone] = acct
	if err := s.commitAccounts(ctx, accounts); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// VerifyOTP accepts any six-digit code. The account registered under phone becomes current;
// without one, the existing session user or the demo user is used.
func (s *UserService) VerifyOTP(ctx context.Context, phone, code string) (*models.User, error) {
	if !s.limiter.allow(phone) {
		return nil, fmt.Errorf("otp for %s: %w", phone, domain.ErrTooManyAttempts)
	}
	if err := validateOTP(code); err != nil {
		return nil, err
	}
	if err := s.network.Call(ctx, simulation.OpVerifyOTP); err != nil {
		return nil, err
	}

	user, err := s.startSession(ctx, phone)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventUserLoggedIn, events.UserEventPayload{UserID: user.ID, Phone: user.Phone})
	return &user, nil
}

func (s *UserService) startSession(ctx context.Context, phone string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user models.User
	switch acct, ok := s.accounts[phone]; {
	case ok:
		user = acct.User
	case s.current != nil:
		user = *s.current
	default:
		user = s.seed.DemoUser()
	}

	if err := s.commitCurrent(ctx, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// UpdateUser replaces the session user and its registry entry.
func (s *UserService) UpdateUser(ctx context.Context, user models.User) error {
	if err := validateStruct(user); err != nil {
		return err
	}
	if err := s.network.Call(ctx, simulation.OpUpdateUser); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveUser(ctx, user, true)
}

func (s *UserService) UpdateProfile(ctx context.Context, name, email, phone string) error {
	s.mu.RLock()
	if s.current == nil {
		s.mu.RUnlock()
		return domain.ErrUnauthenticated
	}
	s.mu.RUnlock()

	if err := s.network.Call(ctx, simulation.OpUpdateProfile); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.ErrUnauthenticated
	}

	updated := *s.current
	updated.Name = strings.TrimSpace(name)
	updated.Email = strings.TrimSpace(email)
	updated.Phone = strings.TrimSpace(phone)
	if err := validateStruct(updated); err != nil {
		return err
	}
	if other, ok := s.accounts[updated.Phone]; ok && other.User.ID != updated.ID {
		return fmt.Errorf("phone %s already registered: %w", updated.Phone, domain.ErrAlreadyExists)
	}
	return s.saveUser(ctx, updated, true)
}

// AddPoints credits the session user.
func (s *UserService) AddPoints(ctx context.Context, points int) error {
	id, ok := s.CurrentUserID()
	if !ok {
		return domain.ErrUnauthenticated
	}
	return s.AddPointsTo(ctx, id, points)
}

// AddPointsTo credits any known user, logged in or not.
func (s *UserService) AddPointsTo(ctx context.Context, userID string, points int) error {
	if points < 0 {
		return domain.NewValidationError("points", "gte")
	}
	if points == 0 {
		return nil
	}

	user, err := s.credit(ctx, userID, points)
	if err != nil {
		return err
	}

	metrics.AddPointsCredited(points)
	s.publish(events.EventPointsCredited, events.PointsEventPayload{UserID: userID, Points: points, Balance: user.TotalPoints})
	return nil
}

func (s *UserService) credit(ctx context.Context, userID string, points int) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.findUser(userID)
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	user.TotalPoints += points
	if err := s.saveUser(ctx, user, false); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// DeductPoints debits the session user. It returns false and ErrInsufficientBalance when the
// balance is lower than points; the balance is then left unchanged.
func (s *UserService) DeductPoints(ctx context.Context, points int) (bool, error) {
	if points < 0 {
		return false, domain.NewValidationError("points", "gte")
	}

	user, err := s.debit(ctx, points)
	if err != nil {
		return false, err
	}

	metrics.AddPointsDeducted(points)
	s.publish(events.EventPointsDeducted, events.PointsEventPayload{UserID: user.ID, Points: points, Balance: user.TotalPoints})
	return true, nil
}

func (s *UserService) debit(ctx context.Context, points int) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return models.User{}, domain.ErrUnauthenticated
	}
	user := *s.current
	if user.TotalPoints < points {
		return models.User{}, fmt.Errorf("deduct %d of %d: %w", points, user.TotalPoints, domain.ErrInsufficientBalance)
	}

	user.TotalPoints -= points
	if err := s.saveUser(ctx, user, false); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// CanRedeem reports whether the session user holds enough points to redeem.
func (s *UserService) CanRedeem() bool {
	return s.CurrentPoints() >= models.MinPointsRedeem
}

func (s *UserService) CurrentUser() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	u := *s.current
	return &u, true
}

func (s *UserService) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", false
	}
	return s.current.ID, true
}

func (s *UserService) CurrentPoints() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.TotalPoints
}

func (s *UserService) IsLoggedIn() bool {
	_, ok := s.CurrentUserID()
	return ok
}

// Logout clears the session pointer. Accounts stay registered.
func (s *UserService) Logout(ctx context.Context) error {
	if err := s.network.Call(ctx, simulation.OpLogout); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.current
	err := s.commitCurrent(ctx, nil)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if prev != nil {
		s.publish(events.EventUserLoggedOut, events.UserEventPayload{UserID: prev.ID, Phone: prev.Phone})
	}
	return nil
}

func (s *UserService) RegisteredUsers() map[string]models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]models.User, len(s.accounts))
	for phone, acct := range s.accounts {
		users[phone] = acct.User
	}
	return users
}

// ResetToDefaultUser makes the demo user current with its seeded balance.
func (s *UserService) ResetToDefaultUser(ctx context.Context) error {
	return s.InstallDefaultUser(ctx, s.seed.DemoUser().TotalPoints)
}

// InstallDefaultUser makes the demo user current with the given balance and registers it.
func (s *UserService) InstallDefaultUser(ctx context.Context, points int) error {
	def := s.seed.DemoUser()
	def.TotalPoints = points

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.copyAccounts()
	acct, ok := accounts[def.Phone]
	if !ok {
		var err error
		if acct, err = s.newAccount(def, seed.DemoPassword); err != nil {
			return err
		}
	}
	acct.User = def
	accounts[def.Phone] = acct
	if err := s.commitAccounts(ctx, accounts); err != nil {
		return err
	}
	return s.commitCurrent(ctx, &def)
}

// saveUser writes user into the registry (matched by id) and, when it is the session user or
// makeCurrent is set, into the session. Callers hold s.mu.
func (s *UserService) saveUser(ctx context.Context, user models.User, makeCurrent bool) error {
	accounts := s.copyAccounts()
	acct := models.Account{User: user}
	for phone, existing := range accounts {
		if existing.User.ID == user.ID {
			acct.PasswordHash = existing.PasswordHash
			delete(accounts, phone)
			break
		}
	}
	accounts[user.Phone] = acct
	if err := s.commitAccounts(ctx, accounts); err != nil {
		return err
	}

	if makeCurrent || (s.current != nil && s.current.ID == user.ID) {
		return s.commitCurrent(ctx, &user)
	}
	return nil
}

func (s *UserService) findUser(userID string) (models.User, bool) {
	if s.current != nil && s.current.ID == userID {
		return *s.current, true
	}
	for _, acct := range s.accounts {
		if acct.User.ID == userID {
			return acct.User, true
		}
	}
	return models.User{}, false
}

func (s *UserService) newAccount(user models.User, password string) (models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}
	return models.Account{User: user, PasswordHash: string(hash)}, nil
}

func (s *UserService) copyAccounts() map[string]models.Account {
	accounts := make(map[string]models.Account, len(s.accounts)+1)
	for k, v := range s.accounts {
		accounts[k] = v
	}
	return accounts
}

func (s *UserService) commitAccounts(ctx context.Context, accounts map[string]models.Account) error {
	list := make([]models.Account, 0, len(accounts))
	for _, acct := range accounts {
		list = append(list, acct)
	}
	if err := repository.WriteCollection(ctx, s.store, repository.KeyUsers, list); err != nil {
		return err
	}
	s.accounts = accounts
	return nil
}

func (s *UserService) commitCurrent(ctx context.Context, user *models.User) error {
	if err := repository.WriteSingleton(ctx, s.store, repository.KeyCurrentUser, user); err != nil {
		return err
	}
	if user == nil {
		s.current = nil
		return nil
	}
	u := *user
	s.current = &u
	return nil
}

func (s *UserService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// otpLimiter throttles OTP attempts per phone number.
type otpLimiter struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
}

func newOTPLimiter(cfg config.AuthConfig) *otpLimiter {
	perMinute := cfg.OTPAttemptsPerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	burst := cfg.OTPBurst
	if burst <= 0 {
		burst = 3
	}
	return &otpLimiter{limit: rate.Limit(perMinute / 60), burst: burst}
}

func (l *otpLimiter) allow(phone string) bool {
	if v, ok := l.limiters.Load(phone); ok {
		return v.(*rate.Limiter).Allow()
	}
	lim, _ := l.limiters.LoadOrStore(phone, rate.NewLimiter(l.limit, l.burst))
	return lim.(*rate.Limiter).Allow()
}
