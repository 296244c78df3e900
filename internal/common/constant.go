package common

// AccessTokenHeaderName is the HTTP header used to carry the access token on
// outbound requests to the sync server.
const AccessTokenHeaderName = "X-Access-Token"

// VaultRevisionHeaderName carries the client's last-synced revision on vault
// uploads so the server can reject stale writes.
const VaultRevisionHeaderName = "X-Vault-Revision"

// VaultForceHeaderName marks a recovery upload that overwrites the server's
// vault regardless of its current revision. The revision header then carries
// the client's last-synced revision so the new server revision never falls
// below it.
const VaultForceHeaderName = "X-Vault-Force"
