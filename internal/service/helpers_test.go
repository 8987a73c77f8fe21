package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"blackjack-auth/internal/bucketing"
	"blackjack-auth/internal/client"
	"blackjack-auth/internal/config"
	"blackjack-auth/internal/encryption"
	"blackjack-auth/internal/events"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/models"
	redisrepo "blackjack-auth/internal/repository/redis"
	"blackjack-auth/internal/repository/scylla"
)

type fakeAccountRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	admins map[string]*models.Admin
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		users:  make(map[string]*models.User),
		admins: make(map[string]*models.Admin),
	}
}

func (r *fakeAccountRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeAccountRepo) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.Email] = &copied
	return nil
}

func (r *fakeAccountRepo) UpdateUserAttempts(_ context.Context, email string, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		u.LoginAttempts = attempts
	}
	return nil
}

func (r *fakeAccountRepo) SetUserLocked(_ context.Context, email string, locked bool, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		u.Locked = locked
		u.LoginAttempts = attempts
	}
	return nil
}

func (r *fakeAccountRepo) GetAdminByNameHash(_ context.Context, nameHash string) (*models.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.admins[nameHash]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAccountRepo) SetAdminLocked(_ context.Context, nameHash string, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.admins[nameHash]; ok {
		a.Locked = locked
	}
	return nil
}

type fakeLogRepo struct {
	mu   sync.Mutex
	logs map[string]*models.LoginLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{logs: make(map[string]*models.LoginLog)}
}

func (r *fakeLogRepo) key(role, ownerKey string) string {
	return role + "/" + ownerKey
}

func (r *fakeLogRepo) GetLog(_ context.Context, role, ownerKey string) (*models.LoginLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.logs[r.key(role, ownerKey)]
	if !ok {
		return &models.LoginLog{OwnerKey: ownerKey}, nil
	}
	copied := models.LoginLog{
		OwnerKey: stored.OwnerKey,
		Records:  append([]models.LoginRecord(nil), stored.Records...),
	}
	return &copied, nil
}

func (r *fakeLogRepo) PutLog(_ context.Context, role string, log *models.LoginLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := models.LoginLog{
		OwnerKey: log.OwnerKey,
		Records:  append([]models.LoginRecord(nil), log.Records...),
	}
	r.logs[r.key(role, log.OwnerKey)] = &copied
	return nil
}

type fakePendingRepo struct {
	mu   sync.Mutex
	regs map[string]*models.PendingRegistration
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{regs: make(map[string]*models.PendingRegistration)}
}

func (r *fakePendingRepo) GetPending(_ context.Context, email string) (*models.PendingRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[email]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *reg
	return &copied, nil
}

func (r *fakePendingRepo) CreatePending(_ context.Context, reg *models.PendingRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *reg
	r.regs[reg.User.Email] = &copied
	return nil
}

func (r *fakePendingRepo) DeletePending(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regs, email)
	return nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []sentMail
	sendErr  error
}

func (n *fakeNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.messages = append(n.messages, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (n *fakeNotifier) failWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

func (n *fakeNotifier) last() *sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return nil
	}
	return &n.messages[len(n.messages)-1]
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (n *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	mail := n.last()
	require.NotNil(t, mail, "no mail was sent")
	match := codePattern.FindStringSubmatch(mail.Body)
	require.NotEmpty(t, match, "mail body carries no code: %s", mail.Body)
	return match[1]
}

var tokenPattern = regexp.MustCompile(`/confirm/(\S+)`)

func (n *fakeNotifier) lastToken(t *testing.T) string {
	t.Helper()
	mail := n.last()
	require.NotNil(t, mail, "no mail was sent")
	match := tokenPattern.FindStringSubmatch(mail.Body)
	require.NotEmpty(t, match, "mail body carries no confirmation link: %s", mail.Body)
	return match[1]
}

type testEnv struct {
	cfg      *config.Config
	accounts *fakeAccountRepo
	logs     *fakeLogRepo
	pendings *fakePendingRepo
	notifier *fakeNotifier
	redis    *miniredis.Miniredis
	factory  *ServiceFactory
}

func testServiceConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Security: config.SecurityConfig{
			TokenSecret:          "test-secret",
			TokenSalt:            "email-confirm-salt",
			TokenMaxAge:          600 * time.Second,
			MaxLoginAttempts:     3,
			LoginHistorySize:     5,
			ChallengeTTL:         600 * time.Second,
			ChallengeMaxAttempts: 3,
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
		Bucketing: config.BucketingConfig{EventBuckets: 8},
		SMTP: config.SMTPConfig{
			From:           "noreply@example.com",
			ConfirmBaseURL: "http://localhost:8080",
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testServiceConfig()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	enc, err := encryption.NewManager(context.Background(), cfg)
	require.NoError(t, err)

	env := &testEnv{
		cfg:      cfg,
		accounts: newFakeAccountRepo(),
		logs:     newFakeLogRepo(),
		pendings: newFakePendingRepo(),
		notifier: &fakeNotifier{},
		redis:    mr,
	}

	recorder := events.NewRecorder(cfg, nil, nil, nil, bucketing.NewManager(cfg))
	env.factory = NewServiceFactory(
		cfg,
		env.accounts,
		env.pendings,
		env.logs,
		redisrepo.NewChallengeCache(&client.RedisClient{Client: rdb}),
		hashing.NewHasher(cfg),
		enc,
		env.notifier,
		recorder,
	)

	return env
}

func (e *testEnv) addUser(t *testing.T, email, password string, twoFactor string) *models.User {
	t.Helper()

	hash, err := hashing.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Email:           email,
		Name:            "Test",
		PasswordHash:    hash,
		Role:            models.RoleUser,
		TwoFactorMethod: twoFactor,
	}
	require.NoError(t, e.accounts.CreateUser(context.Background(), user))
	return user
}

func (e *testEnv) addAdmin(t *testing.T, name, email, password string) *models.Admin {
	t.Helper()

	hash, err := hashing.HashPassword(password)
	require.NoError(t, err)

	admin := &models.Admin{
		NameHash:     hashing.LookupKey(name),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	e.accounts.mu.Lock()
	e.accounts.admins[admin.NameHash] = admin
	e.accounts.mu.Unlock()
	return admin
}
