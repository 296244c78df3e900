package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/passkeyvault/internal/client/identity"
	"github.com/dmitrijs2005/passkeyvault/internal/client/services"
	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/webauthn"
)

type fixture struct {
	store    *store.Store
	provider *Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	st := store.New(dir, nil)
	ctx := context.Background()

	key, err := st.Initialize(ctx, []byte("passphrase"))
	require.NoError(t, err)
	require.NoError(t, st.Unlock(ctx, key))
	t.Cleanup(st.Lock)

	svc := services.NewPasskeyService(st)
	cache := identity.NewCache(dir, nil)
	return &fixture{store: st, provider: New(st, svc, cache, nil)}
}

func createRequest(userName string) CreateRequest {
	return CreateRequest{
		Options: webauthn.CreateOptions{
			Challenge: common.B64URLEncode([]byte("create-challenge")),
			RP:        webauthn.RelyingParty{ID: "example.com", Name: "Example"},
			User: webauthn.User{
				ID:          common.B64URLEncode([]byte("user-42")),
				Name:        userName,
				DisplayName: userName,
			},
			PubKeyCredParams: []webauthn.PubKeyCredParam{{Type: "public-key", Alg: webauthn.AlgES256}},
		},
		Origin: "https://example.com",
	}
}

func getRequest() GetRequest {
	return GetRequest{
		Options: webauthn.GetOptions{
			Challenge: common.B64URLEncode([]byte("get-challenge")),
			RPID:      "example.com",
		},
		Origin:       "https://example.com",
		UserVerified: true,
	}
}

func TestRegistrationCreatesItemAndPasskey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)

	assert.Equal(t, "public-key", cred.Type)
	assert.Equal(t, webauthn.AttachmentPlatform, cred.AuthenticatorAttachment)
	assert.Equal(t, cred.ID, cred.RawID)

	rawID, err := common.B64URLDecode(cred.ID)
	require.NoError(t, err)
	assert.Len(t, rawID, 16)

	resp, ok := cred.Response.(webauthn.AttestationResponse)
	require.True(t, ok)
	assert.NotEmpty(t, resp.AttestationObject)
	assert.Equal(t, []string{"internal"}, resp.Transports)

	// the credential is now resolvable for authentication
	assertion, err := f.provider.OnBeginGetCredentials(ctx, getRequest())
	require.NoError(t, err)
	assert.Equal(t, cred.ID, assertion.ID)

	aResp, ok := assertion.Response.(webauthn.AssertionResponse)
	require.True(t, ok)
	assert.NotEmpty(t, aResp.Signature)
	require.NotNil(t, aResp.UserHandle)
	assert.Equal(t, common.B64URLEncode([]byte("user-42")), *aResp.UserHandle)
}

func TestReRegistrationReplacesExistingCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)
	second, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// only the new credential answers authentications
	assertion, err := f.provider.OnBeginGetCredentials(ctx, getRequest())
	require.NoError(t, err)
	assert.Equal(t, second.ID, assertion.ID)

	oldID, err := common.B64URLDecode(first.ID)
	require.NoError(t, err)
	_, err = f.provider.OnBeginGetCredentials(ctx, GetRequest{
		Options:              getRequest().Options,
		Origin:               "https://example.com",
		SelectedCredentialID: oldID,
	})
	assert.ErrorIs(t, err, common.ErrPasskeyNotFound)
}

func TestDifferentUsersShareNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := createRequest("alice")
	bob := createRequest("bob")
	bob.Options.User.ID = common.B64URLEncode([]byte("user-43"))

	_, err := f.provider.OnBeginCreateCredential(ctx, alice)
	require.NoError(t, err)
	_, err = f.provider.OnBeginCreateCredential(ctx, bob)
	require.NoError(t, err)

	svc := services.NewPasskeyService(f.store)
	all, err := svc.GetAllWithItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExcludeListBlocksDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)

	req := createRequest("alice")
	req.Options.ExcludeCredentials = []webauthn.CredentialDescriptor{
		{Type: "public-key", ID: cred.ID},
	}
	_, err = f.provider.OnBeginCreateCredential(ctx, req)
	assert.ErrorIs(t, err, ErrCredentialExcluded)
}

func TestAllowListResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)

	req := getRequest()
	req.Options.AllowCredentials = []webauthn.CredentialDescriptor{
		{Type: "public-key", ID: common.B64URLEncode([]byte("0123456789abcdef"))}, // unknown
		{Type: "public-key", ID: cred.ID},
	}
	assertion, err := f.provider.OnBeginGetCredentials(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, cred.ID, assertion.ID)
}

func TestMalformedRequestAbortsBeforeStore(t *testing.T) {
	f := newFixture(t)
	f.store.Lock()

	req := getRequest()
	req.Options.RPID = ""
	_, err := f.provider.OnBeginGetCredentials(context.Background(), req)
	// validation fires first, even on a locked vault
	assert.ErrorIs(t, err, common.ErrMalformedRequest)
}

func TestLockedVaultFailsCeremonies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)

	f.store.Lock()

	_, err = f.provider.OnBeginGetCredentials(ctx, getRequest())
	assert.ErrorIs(t, err, common.ErrVaultNotUnlocked)

	_, err = f.provider.OnBeginCreateCredential(ctx, createRequest("bob"))
	assert.ErrorIs(t, err, common.ErrVaultNotUnlocked)
}

func TestIdentityCacheFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.provider.OnBeginCreateCredential(ctx, createRequest("alice"))
	require.NoError(t, err)
	require.NoError(t, f.provider.RefreshIdentityCache(ctx))

	f.store.Lock()

	// the picker still lists the credential while locked
	list, err := f.provider.ListCredentials("EXAMPLE.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].UserName)

	require.NoError(t, f.provider.OnClearState())
	list, err = f.provider.ListCredentials("example.com")
	require.NoError(t, err)
	assert.Empty(t, list)
}
