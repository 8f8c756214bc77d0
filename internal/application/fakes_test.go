package application_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/swaptacular/swpt-login/internal/application"
	"github.com/swaptacular/swpt-login/internal/domain"
	"github.com/swaptacular/swpt-login/internal/ports"
)

type fakeCredentials struct {
	mu      sync.Mutex
	byEmail map[string]domain.CredentialRecord
	updates []domain.UserUpdateSignal
	deacts  map[string]time.Time
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{byEmail: map[string]domain.CredentialRecord{}, deacts: map[string]time.Time{}}
}

func (f *fakeCredentials) put(rec domain.CredentialRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[rec.Email] = rec
}

func (f *fakeCredentials) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEmail)
}

func (f *fakeCredentials) GetByEmail(_ context.Context, email string) (domain.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok {
		return domain.CredentialRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeCredentials) GetByUserID(_ context.Context, userID string) (domain.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byEmail {
		if rec.UserID == userID {
			return rec, nil
		}
	}
	return domain.CredentialRecord{}, domain.ErrNotFound
}

func (f *fakeCredentials) UpdatePasswordHash(_ context.Context, email, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok {
		return domain.ErrNotFound
	}
	rec.PasswordHash = hash
	f.byEmail[email] = rec
	return nil
}

func (f *fakeCredentials) UpdateRecoveryCodeHash(_ context.Context, email, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok {
		return domain.ErrNotFound
	}
	rec.RecoveryCodeHash = hash
	f.byEmail[email] = rec
	return nil
}

func (f *fakeCredentials) ChangeEmail(_ context.Context, userID, oldEmail, newEmail string, update *domain.UserUpdateSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[oldEmail]
	if !ok || rec.UserID != userID {
		return domain.ErrNotFound
	}
	if _, taken := f.byEmail[newEmail]; taken {
		return domain.ErrEmailAlreadyRegistered
	}
	delete(f.byEmail, oldEmail)
	rec.Email = newEmail
	f.byEmail[newEmail] = rec
	if update != nil {
		f.updates = append(f.updates, *update)
	}
	return nil
}

func (f *fakeCredentials) SetStatus(_ context.Context, userIDs []string, status domain.CredentialStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for email, rec := range f.byEmail {
		if slices.Contains(userIDs, rec.UserID) && rec.Status != status {
			rec.Status = status
			f.byEmail[email] = rec
			n++
		}
	}
	return n, nil
}

func (f *fakeCredentials) DeleteWithDeactivation(_ context.Context, userID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, rec := range f.byEmail {
		if rec.UserID == userID {
			delete(f.byEmail, email)
			f.deacts[userID] = at
			return true, nil
		}
	}
	return false, nil
}

// insertActivated mirrors the store: a duplicate email is skipped, a reused
// user ID is a consistency violation.
func (f *fakeCredentials) insertActivated(rec domain.CredentialRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[rec.Email]; ok {
		return nil
	}
	for _, existing := range f.byEmail {
		if existing.UserID == rec.UserID {
			return domain.ErrUserIDReused
		}
	}
	f.byEmail[rec.Email] = rec
	return nil
}

type fakeActivations struct {
	mu          sync.Mutex
	rows        map[domain.ActivationKey]domain.ActivationSignal
	order       []domain.ActivationKey
	credentials *fakeCredentials
}

func newFakeActivations(credentials *fakeCredentials) *fakeActivations {
	return &fakeActivations{rows: map[domain.ActivationKey]domain.ActivationSignal{}, credentials: credentials}
}

func (f *fakeActivations) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeActivations) Enqueue(_ context.Context, s domain.ActivationSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.Key()]; ok {
		return fmt.Errorf("duplicate activation signal %v", s.Key())
	}
	f.rows[s.Key()] = s
	f.order = append(f.order, s.Key())
	return nil
}

func (f *fakeActivations) PendingKeys(_ context.Context, limit int) ([]domain.ActivationKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []domain.ActivationKey
	for _, key := range f.order {
		if _, ok := f.rows[key]; ok && len(keys) < limit {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeActivations) Process(ctx context.Context, key domain.ActivationKey, deliver ports.ActivationDelivery) (domain.DeliveryOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	signal, ok := f.rows[key]
	if !ok {
		return domain.DeliverySkipped, nil
	}
	if err := deliver(ctx, signal); err != nil {
		if errors.Is(err, domain.ErrReservationExpired) {
			delete(f.rows, key)
			return domain.DeliveryRejected, nil
		}
		return domain.DeliveryDeferred, err
	}
	if err := f.credentials.insertActivated(signal.Credential(time.Now().UTC())); err != nil {
		return domain.DeliveryDeferred, err
	}
	delete(f.rows, key)
	return domain.DeliveryCompleted, nil
}

type fakeDeactivations struct {
	mu          sync.Mutex
	credentials *fakeCredentials
	delivered   []string
}

func (f *fakeDeactivations) PendingUserIDs(_ context.Context, limit int) ([]string, error) {
	f.credentials.mu.Lock()
	defer f.credentials.mu.Unlock()
	var ids []string
	for id := range f.credentials.deacts {
		if len(ids) < limit {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeDeactivations) Process(ctx context.Context, userID string, deliver ports.DeactivationDelivery) (domain.DeliveryOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials.mu.Lock()
	at, ok := f.credentials.deacts[userID]
	f.credentials.mu.Unlock()
	if !ok {
		return domain.DeliverySkipped, nil
	}
	if err := deliver(ctx, domain.DeactivationSignal{UserID: userID, InsertedAt: at}); err != nil {
		return domain.DeliveryDeferred, err
	}
	f.credentials.mu.Lock()
	delete(f.credentials.deacts, userID)
	f.credentials.mu.Unlock()
	f.delivered = append(f.delivered, userID)
	return domain.DeliveryCompleted, nil
}

type fakeUserUpdates struct {
	credentials *fakeCredentials
	done        map[int64]bool
}

func (f *fakeUserUpdates) PendingIDs(_ context.Context, limit int) ([]int64, error) {
	f.credentials.mu.Lock()
	defer f.credentials.mu.Unlock()
	var ids []int64
	for i := range f.credentials.updates {
		if !f.done[int64(i)] && len(ids) < limit {
			ids = append(ids, int64(i))
		}
	}
	return ids, nil
}

func (f *fakeUserUpdates) Process(ctx context.Context, id int64, deliver ports.UserUpdateDelivery) (domain.DeliveryOutcome, error) {
	f.credentials.mu.Lock()
	if int(id) >= len(f.credentials.updates) || f.done[id] {
		f.credentials.mu.Unlock()
		return domain.DeliverySkipped, nil
	}
	signal := f.credentials.updates[id]
	f.credentials.mu.Unlock()
	if err := deliver(ctx, signal); err != nil {
		return domain.DeliveryDeferred, err
	}
	f.credentials.mu.Lock()
	f.done[id] = true
	f.credentials.mu.Unlock()
	return domain.DeliveryCompleted, nil
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]domain.SecretRecord
	ttls    map[string]time.Duration
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[string]domain.SecretRecord{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRecords) Create(_ context.Context, record domain.SecretRecord, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := record.Kind().Prefix() + record.Secret()
	f.records[key] = record
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRecords) Lookup(_ context.Context, kind domain.RecordKind, secret string) (domain.SecretRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[kind.Prefix()+secret], nil
}

func (f *fakeRecords) Delete(_ context.Context, kind domain.RecordKind, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, kind.Prefix()+secret)
	return nil
}

func (f *fakeRecords) ofKind(kind domain.RecordKind) []domain.SecretRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecretRecord
	for _, r := range f.records {
		if r.Kind() == kind {
			out = append(out, r)
		}
	}
	return out
}

type fakeCounters struct {
	mu     sync.Mutex
	values map[string]int64
}

func (f *fakeCounters) IncrementWithLimit(_ context.Context, key string, limit int64, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[key]++
	v := f.values[key]
	if limit > 0 && v > limit {
		return v, domain.ErrRateLimited
	}
	return v, nil
}

type fakeFailures struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (f *fakeFailures) RegisterFailure(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[userID]++
	return f.counts[userID], nil
}

func (f *fakeFailures) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, userID)
	return nil
}

func (f *fakeFailures) get(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[userID]
}

type fakeDevices struct {
	mu      sync.Mutex
	devices map[string][]string
}

func (f *fakeDevices) Add(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devices == nil {
		f.devices = map[string][]string{}
	}
	list := slices.DeleteFunc(f.devices[userID], func(h string) bool { return h == hash })
	f.devices[userID] = append(list, hash)
	return nil
}

func (f *fakeDevices) Contains(_ context.Context, userID, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.devices[userID], hash), nil
}

func (f *fakeDevices) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, userID)
	return nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(salt, secret string) (string, error) {
	if len(secret) > 1024 {
		return "", domain.ErrSecretTooLong
	}
	return "h(" + salt + "," + secret + ")", nil
}

func (h fakeHasher) HashRecoveryCode(code string) (string, error) {
	return h.Hash("", domain.NormalizeRecoveryCode(code))
}

type fakeSecrets struct {
	mu sync.Mutex
	n  int
}

func (f *fakeSecrets) next(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("%s-%d", prefix, f.n)
}

func (f *fakeSecrets) NewSecret() (string, error)           { return f.next("secret"), nil }
func (f *fakeSecrets) NewSalt() (string, error)             { return f.next("salt"), nil }
func (f *fakeSecrets) NewRecoveryCode() (string, error)     { return strings.ToUpper(f.next("code")), nil }
func (f *fakeSecrets) NewVerificationCode() (string, error) { return "042917", nil }
func (f *fakeSecrets) Digest(value string) string           { return "digest(" + value + ")" }

type fakeIdentity struct {
	mu            sync.Mutex
	reservations  []ports.Reservation
	activateErrs  []error
	activateCalls []domain.ActivationKey
	deactivated   []string
	deactivateErr error
}

func (f *fakeIdentity) ReserveUserID(context.Context) (ports.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reservations) == 0 {
		return ports.Reservation{}, domain.ErrDeliveryFailed
	}
	r := f.reservations[0]
	f.reservations = f.reservations[1:]
	return r, nil
}

func (f *fakeIdentity) ActivateUser(_ context.Context, userID, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCalls = append(f.activateCalls, domain.ActivationKey{UserID: userID, ReservationID: reservationID})
	if len(f.activateErrs) > 0 {
		err := f.activateErrs[0]
		f.activateErrs = f.activateErrs[1:]
		return err
	}
	return nil
}

func (f *fakeIdentity) DeactivateUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deactivateErr != nil {
		return f.deactivateErr
	}
	f.deactivated = append(f.deactivated, userID)
	return nil
}

func (f *fakeIdentity) activations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.activateCalls)
}

type fakeAuthServer struct {
	mu        sync.Mutex
	logins    map[string]ports.LoginRequest
	consents  map[string]ports.ConsentRequest
	accepted  []string
	rejected  []string
	granted   [][]string
	revoked   []string
	loggedOut []string
}

func newFakeAuthServer() *fakeAuthServer {
	return &fakeAuthServer{logins: map[string]ports.LoginRequest{}, consents: map[string]ports.ConsentRequest{}}
}

func (f *fakeAuthServer) FetchLoginRequest(_ context.Context, challenge string) (ports.LoginRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.logins[challenge]; ok {
		return req, nil
	}
	return ports.LoginRequest{Challenge: challenge}, nil
}

func (f *fakeAuthServer) AcceptLoginRequest(_ context.Context, challenge, subject string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, challenge+"|"+subject)
	return "https://hydra.example.com/accepted/" + challenge, nil
}

func (f *fakeAuthServer) RejectLoginRequest(_ context.Context, challenge, errorCode, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, challenge+"|"+errorCode)
	return "https://hydra.example.com/rejected/" + challenge, nil
}

func (f *fakeAuthServer) FetchConsentRequest(_ context.Context, challenge string) (ports.ConsentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.consents[challenge]; ok {
		return req, nil
	}
	return ports.ConsentRequest{}, domain.ErrNotFound
}

func (f *fakeAuthServer) AcceptConsentRequest(_ context.Context, challenge string, scopes []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = append(f.granted, scopes)
	return "https://hydra.example.com/consented/" + challenge, nil
}

func (f *fakeAuthServer) RevokeConsentSessions(_ context.Context, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, subject)
	return nil
}

func (f *fakeAuthServer) InvalidateLoginSessions(_ context.Context, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, subject)
	return nil
}

type fakeMailer struct {
	mu     sync.Mutex
	emails []ports.Email
}

func (f *fakeMailer) Send(_ context.Context, email ports.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, email)
	return nil
}

func (f *fakeMailer) last() (ports.Email, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.emails) == 0 {
		return ports.Email{}, false
	}
	return f.emails[len(f.emails)-1], true
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails)
}

type publishedEvent struct {
	EventType string
	Payload   string
	Key       string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, payload []byte, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{EventType: eventType, Payload: string(payload), Key: key})
	return nil
}

type fixture struct {
	service       *application.Service
	credentials   *fakeCredentials
	activations   *fakeActivations
	deactivations *fakeDeactivations
	records       *fakeRecords
	counters      *fakeCounters
	failures      *fakeFailures
	devices       *fakeDevices
	secrets       *fakeSecrets
	identity      *fakeIdentity
	authServer    *fakeAuthServer
	mailer        *fakeMailer
	publisher     *fakePublisher
}

func testConfig() application.Config {
	return application.Config{
		SubjectPrefix:                       "user:",
		SecretCodeMaxAttempts:               3,
		SignupRequestExpiration:             24 * time.Hour,
		LoginVerificationCodeExpiration:     time.Hour,
		ChangeEmailRequestExpiration:        24 * time.Hour,
		ChangeRecoveryCodeRequestExpiration: time.Hour,
		SignupIPMaxRegistrations:            30,
		SignupIPBlockPeriod:                 24 * time.Hour,
		MaxLoginsPerMonth:                   10000,
		PasswordMinLength:                   12,
		PasswordMaxLength:                   64,
		SendUserUpdateSignal:                true,
		UserUpdateEventType:                 "swpt-login.user-update",
		ActivationBurstCount:                100,
		DeactivationBurstCount:              100,
		UserUpdateBurstCount:                100,
	}
}

func newFixture(mutate ...func(*application.Config)) *fixture {
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	credentials := newFakeCredentials()
	f := &fixture{
		credentials:   credentials,
		activations:   newFakeActivations(credentials),
		deactivations: &fakeDeactivations{credentials: credentials},
		records:       newFakeRecords(),
		counters:      &fakeCounters{},
		failures:      &fakeFailures{},
		devices:       &fakeDevices{},
		secrets:       &fakeSecrets{},
		identity:      &fakeIdentity{reservations: []ports.Reservation{{UserID: "1234", ReservationID: "456"}}},
		authServer:    newFakeAuthServer(),
		mailer:        &fakeMailer{},
		publisher:     &fakePublisher{},
	}
	f.service = application.NewService(application.Dependencies{
		Config:        cfg,
		Credentials:   credentials,
		Activations:   f.activations,
		Deactivations: f.deactivations,
		UserUpdates:   &fakeUserUpdates{credentials: credentials, done: map[int64]bool{}},
		Records:       f.records,
		Counters:      f.counters,
		Failures:      f.failures,
		Devices:       f.devices,
		Hasher:        fakeHasher{},
		Secrets:       f.secrets,
		IdentityAPI:   f.identity,
		AuthServer:    f.authServer,
		Publisher:     f.publisher,
		Mailer:        f.mailer,
	})
	return f
}

const (
	testPassword     = "correct horse battery"
	testRecoveryCode = "ABCD EFGH IJKL MNOP"
)

// seedUser stores an activated account the way RegisterUser would.
func (f *fixture) seedUser(userID, email string) domain.CredentialRecord {
	h := fakeHasher{}
	passwordHash, _ := h.Hash("salt-"+userID, testPassword)
	recoveryHash, _ := h.HashRecoveryCode(testRecoveryCode)
	rec := domain.CredentialRecord{
		Email:            email,
		UserID:           userID,
		Salt:             "salt-" + userID,
		PasswordHash:     passwordHash,
		RecoveryCodeHash: recoveryHash,
		RegisteredAt:     time.Now().UTC(),
	}
	f.credentials.put(rec)
	return rec
}
