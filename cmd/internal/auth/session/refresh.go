package session

import "wisata/cmd/identity"

// Token minting and hashing live in the identity package so the session
// store, the device store tooling and this service all derive the same
// 64-char hex hashes.

func newOpaqueRefreshToken(nBytes int) (plain string, hashHex string, err error) {
	plain, err = identity.NewOpaqueToken(nBytes)
	if err != nil {
		return "", "", err
	}
	return plain, identity.HashTokenHex(plain), nil
}

func hashTokenHex(s string) string {
	return identity.HashTokenHex(s)
}
