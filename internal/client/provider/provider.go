// Package provider implements the credential-provider boundary: the platform
// adapters call into it with WebAuthn requests and get back complete
// responses. The crypto lives in the webauthn package; this package resolves
// credentials in the vault, persists new ones, and keeps the identity cache
// in step.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/passkeyvault/internal/client/identity"
	"github.com/dmitrijs2005/passkeyvault/internal/client/models"
	"github.com/dmitrijs2005/passkeyvault/internal/client/services"
	"github.com/dmitrijs2005/passkeyvault/internal/client/store"
	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/dmitrijs2005/passkeyvault/internal/logging"
	"github.com/dmitrijs2005/passkeyvault/internal/webauthn"
)

// ErrCredentialExcluded is returned when a registration's exclude list names
// a credential this vault already holds.
var ErrCredentialExcluded = errors.New("credential already registered for this account")

// GetRequest is an authentication request from the platform.
type GetRequest struct {
	Options webauthn.GetOptions
	Origin  string
	// ClientDataHash, when set, is signed verbatim instead of our own
	// clientDataJSON hash.
	ClientDataHash []byte
	// SelectedCredentialID is the picker's choice, raw bytes. Empty means
	// pick the newest matching credential.
	SelectedCredentialID []byte
	UserVerified         bool
}

// CreateRequest is a registration request from the platform.
type CreateRequest struct {
	Options        webauthn.CreateOptions
	Origin         string
	ClientDataHash []byte
	UserVerified   bool
	// LogoURL optionally decorates the vault item for the new credential.
	LogoURL *string
}

// CredentialProvider is the capability surface a platform adapter needs.
// Implementations must be callable from the OS callback thread.
type CredentialProvider interface {
	// ListCredentials serves the credential picker. It reads the identity
	// cache, so it works while the vault is locked.
	ListCredentials(rpID string) ([]identity.CredentialIdentity, error)

	// OnBeginGetCredentials answers an authentication request. Requires an
	// unlocked vault.
	OnBeginGetCredentials(ctx context.Context, req GetRequest) (*webauthn.Credential, error)

	// OnBeginCreateCredential answers a registration request, persisting the
	// new credential before the response is returned.
	OnBeginCreateCredential(ctx context.Context, req CreateRequest) (*webauthn.Credential, error)

	// OnClearState wipes the identity cache. Called on full logout.
	OnClearState() error
}

// Provider is the concrete CredentialProvider over the vault.
type Provider struct {
	store    *store.Store
	passkeys services.PasskeyService
	cache    *identity.Cache
	log      logging.Logger
}

// New constructs a Provider. cache may not be nil.
func New(st *store.Store, svc services.PasskeyService, cache *identity.Cache, log logging.Logger) *Provider {
	if log == nil {
		log = logging.Discard()
	}
	return &Provider{
		store:    st,
		passkeys: svc,
		cache:    cache,
		log:      log.With("component", "provider"),
	}
}

func (p *Provider) ListCredentials(rpID string) ([]identity.CredentialIdentity, error) {
	return p.cache.AllForRpID(rpID)
}

func (p *Provider) OnBeginGetCredentials(ctx context.Context, req GetRequest) (*webauthn.Credential, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	ctx, done := p.ceremonyContext(ctx)
	defer done()

	pk, err := p.resolvePasskey(ctx, &req)
	if err != nil {
		return nil, p.ceremonyErr(err)
	}

	credID, err := pk.CredentialID()
	if err != nil {
		return nil, err
	}

	cred, err := webauthn.BuildAssertion(webauthn.AssertionParams{
		CredentialID:   credID,
		PrivateKeyJWK:  pk.PrivateKeyJWK,
		UserHandle:     pk.UserHandle,
		PRFSecret:      pk.PRFSecret,
		Options:        &req.Options,
		Origin:         req.Origin,
		ClientDataHash: req.ClientDataHash,
		UserVerified:   req.UserVerified,
	})
	if err != nil {
		return nil, err
	}

	// the key may have been wiped while we were signing
	if p.store.UnlockContext().Err() != nil {
		return nil, common.ErrVaultNotUnlocked
	}

	p.log.Debug(ctx, "assertion built", "rp_id", req.Options.RPID)
	return cred, nil
}

func (p *Provider) OnBeginCreateCredential(ctx context.Context, req CreateRequest) (*webauthn.Credential, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	ctx, done := p.ceremonyContext(ctx)
	defer done()

	userHandle, err := decodeUserHandle(req.Options.User.ID)
	if err != nil {
		return nil, err
	}

	if err := p.checkExcludeList(ctx, req.Options.ExcludeCredentials); err != nil {
		return nil, p.ceremonyErr(err)
	}

	key, err := webauthn.GenerateCredentialKey()
	if err != nil {
		return nil, err
	}
	privJWK, err := webauthn.MarshalPrivateJWK(key)
	if err != nil {
		return nil, err
	}
	pubJWK, err := webauthn.MarshalPublicJWK(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	prfSecret := common.GenerateRandByteArray(webauthn.PRFSecretLen)

	pk := &models.Passkey{
		ID:            uuid.NewString(),
		RpID:          req.Options.RP.ID,
		UserHandle:    userHandle,
		UserName:      req.Options.User.Name,
		DisplayName:   req.Options.User.DisplayName,
		PublicKeyJWK:  pubJWK,
		PrivateKeyJWK: privJWK,
		PRFSecret:     prfSecret,
	}

	if err := p.persistRegistration(ctx, &req, pk, userHandle); err != nil {
		return nil, p.ceremonyErr(err)
	}

	credID, err := pk.CredentialID()
	if err != nil {
		return nil, err
	}

	cred, err := webauthn.BuildAttestation(webauthn.AttestationParams{
		CredentialID:   credID,
		Key:            key,
		PRFSecret:      prfSecret,
		Options:        &req.Options,
		Origin:         req.Origin,
		ClientDataHash: req.ClientDataHash,
		UserVerified:   req.UserVerified,
	})
	if err != nil {
		return nil, err
	}

	if p.store.UnlockContext().Err() != nil {
		return nil, common.ErrVaultNotUnlocked
	}

	p.log.Info(ctx, "credential registered",
		"rp_id", req.Options.RP.ID, "user_name", req.Options.User.Name)
	return cred, nil
}

func (p *Provider) OnClearState() error {
	return p.cache.Clear()
}

// RefreshIdentityCache rebuilds the identity cache from the vault. Wire it
// to the store's commit hook so a lock-then-list flow always sees the
// latest credentials.
func (p *Provider) RefreshIdentityCache(ctx context.Context) error {
	all, err := p.passkeys.GetAllWithItems(ctx)
	if err != nil {
		return err
	}
	return p.cache.Rebuild(all)
}

// resolvePasskey picks the credential for an authentication request: the
// explicit selection first, then the allow list in order, then the newest
// credential for the rp.
func (p *Provider) resolvePasskey(ctx context.Context, req *GetRequest) (*models.Passkey, error) {
	if len(req.SelectedCredentialID) > 0 {
		return p.passkeys.GetByCredentialID(ctx, req.SelectedCredentialID)
	}

	if len(req.Options.AllowCredentials) > 0 {
		for _, desc := range req.Options.AllowCredentials {
			id, err := common.B64URLDecode(desc.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: bad credential id in allow list", common.ErrMalformedRequest)
			}
			pk, err := p.passkeys.GetByCredentialID(ctx, id)
			if err == nil {
				return pk, nil
			}
			if !errors.Is(err, common.ErrPasskeyNotFound) {
				return nil, err
			}
		}
		return nil, common.ErrPasskeyNotFound
	}

	candidates, err := p.passkeys.GetForRpID(ctx, req.Options.RPID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, common.ErrPasskeyNotFound
	}
	return &candidates[0], nil
}

// persistRegistration stores the new passkey: replacing an existing one for
// the same rp+user, merging onto its item, or creating a fresh item.
func (p *Provider) persistRegistration(ctx context.Context, req *CreateRequest, pk *models.Passkey, userHandle []byte) error {
	itemName := req.Options.RP.Name
	if itemName == "" {
		itemName = req.Options.RP.ID
	}

	userName := req.Options.User.Name
	existing, err := p.passkeys.GetWithCredentialInfo(ctx, req.Options.RP.ID, &userName, userHandle)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		p.log.Debug(ctx, "replacing existing credential",
			"rp_id", req.Options.RP.ID, "passkey_id", existing[0].ID)
		return p.passkeys.Replace(ctx, existing[0].ID, pk, itemName, req.LogoURL)
	}

	_, err = p.passkeys.CreateItemWithPasskey(ctx, itemName, req.LogoURL, pk)
	return err
}

// checkExcludeList refuses registration when the rp's exclude list names a
// credential we already hold, per the duplicate-prevention contract.
func (p *Provider) checkExcludeList(ctx context.Context, excluded []webauthn.CredentialDescriptor) error {
	for _, desc := range excluded {
		id, err := common.B64URLDecode(desc.ID)
		if err != nil {
			continue
		}
		if _, err := p.passkeys.GetByCredentialID(ctx, id); err == nil {
			return ErrCredentialExcluded
		} else if !errors.Is(err, common.ErrPasskeyNotFound) {
			return err
		}
	}
	return nil
}

func decodeUserHandle(id string) ([]byte, error) {
	if id == "" {
		return nil, nil
	}
	b, err := common.B64URLDecode(id)
	if err != nil {
		return nil, fmt.Errorf("%w: user.id is not base64url", common.ErrMalformedRequest)
	}
	return b, nil
}

// ceremonyContext ties the request context to the unlock lifetime so a
// vault-lock event interrupts an in-flight ceremony.
func (p *Provider) ceremonyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.store.UnlockContext(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// ceremonyErr maps a cancellation caused by locking into the typed error the
// platform adapter expects.
func (p *Provider) ceremonyErr(err error) error {
	if errors.Is(err, context.Canceled) && p.store.UnlockContext().Err() != nil {
		return common.ErrVaultNotUnlocked
	}
	return err
}
