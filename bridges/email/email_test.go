package email_test

import (
	"context"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/mailauth/broker/bridges/email"
	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/internal/emailaddr"
	"github.com/mailauth/broker/sessions"
	"github.com/stretchr/testify/require"
)

const (
	testPublicURL = "https://broker.example"
	testClientID  = "https://rp.example"
	testEmail     = "john@example.com"
)

type fakeMailer struct {
	mu      sync.Mutex
	to      string
	subject string
	body    string
	sends   int
	err     error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

var codePattern = regexp.MustCompile(`code is: ([A-Z2-9]{6})`)

func newAttempt(t *testing.T) (*email.Bridge, *fakeMailer, sessions.Repo, *broker.RequestContext) {
	t.Helper()

	repo := sessions.NewMemoryRepo()
	mailer := &fakeMailer{}
	bridge, err := email.NewBridge(testPublicURL, repo, mailer)
	require.NoError(t, err)

	session := sessions.New(testClientID, testEmail, "nonce-1", time.Now().UTC())
	session.RedirectURI = testClientID + "/callback"
	session.ResponseMode = "fragment"
	session.ResponseErrors = true

	reqCtx := &broker.RequestContext{Method: "GET", Params: url.Values{}, Session: session}
	return bridge, mailer, repo, reqCtx
}

func TestAuthMailsCodeAndPersistsSession(t *testing.T) {
	bridge, mailer, repo, reqCtx := newAttempt(t)

	res, err := bridge.Auth(context.Background(), reqCtx, emailaddr.Address(testEmail))
	require.NoError(t, err)

	require.Equal(t, 1, mailer.sends)
	require.Equal(t, testEmail, mailer.to)
	require.Contains(t, mailer.subject, testClientID)

	match := codePattern.FindStringSubmatch(mailer.body)
	require.Len(t, match, 2, "mail body must contain the verification code")
	require.Contains(t, mailer.body, testPublicURL+"/confirm?session=")

	require.Contains(t, res.HTML, reqCtx.Session.ID)
	require.Contains(t, res.HTML, testEmail)

	stored, err := repo.Get(context.Background(), reqCtx.Session.ID)
	require.NoError(t, err)
	require.Equal(t, "email", stored.BridgeData["bridge"])
	require.NotEmpty(t, stored.BridgeData["code_hash"])
	require.NotContains(t, stored.BridgeData["code_hash"], match[1], "only the hash may be stored")
}

func TestVerifyAcceptsTheMailedCodeOnce(t *testing.T) {
	bridge, mailer, repo, reqCtx := newAttempt(t)
	ctx := context.Background()

	_, err := bridge.Auth(ctx, reqCtx, emailaddr.Address(testEmail))
	require.NoError(t, err)
	code := codePattern.FindStringSubmatch(mailer.body)[1]

	stored, err := repo.Get(ctx, reqCtx.Session.ID)
	require.NoError(t, err)

	require.NoError(t, bridge.Verify(ctx, stored, code))

	// The session is consumed: the same code cannot be replayed.
	_, err = repo.Get(ctx, reqCtx.Session.ID)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	bridge, mailer, repo, reqCtx := newAttempt(t)
	ctx := context.Background()

	_, err := bridge.Auth(ctx, reqCtx, emailaddr.Address(testEmail))
	require.NoError(t, err)
	require.NotEmpty(t, mailer.body)

	stored, err := repo.Get(ctx, reqCtx.Session.ID)
	require.NoError(t, err)

	err = bridge.Verify(ctx, stored, "WRONG1")
	require.Error(t, err)
	require.Equal(t, broker.KindInput, broker.KindOf(err))

	// A failed attempt does not consume the session.
	_, err = repo.Get(ctx, reqCtx.Session.ID)
	require.NoError(t, err)
}

func TestVerifyRejectsForeignSessions(t *testing.T) {
	bridge, _, _, reqCtx := newAttempt(t)

	reqCtx.Session.BridgeData["bridge"] = "oidc"
	err := bridge.Verify(context.Background(), reqCtx.Session, "ABC234")
	require.Error(t, err)
	require.Equal(t, broker.KindInput, broker.KindOf(err))
}

func TestAuthFailsWhenMailerFails(t *testing.T) {
	bridge, mailer, _, reqCtx := newAttempt(t)
	mailer.err = errSMTPDown

	_, err := bridge.Auth(context.Background(), reqCtx, emailaddr.Address(testEmail))
	require.Error(t, err)
	require.Equal(t, broker.KindInternal, broker.KindOf(err))
}

var errSMTPDown = errSentinel("smtp down")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
