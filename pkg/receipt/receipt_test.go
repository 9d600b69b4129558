package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certspin/reelcore/pkg/audit"
	"github.com/certspin/reelcore/pkg/cycle"
	"github.com/certspin/reelcore/pkg/engine"
)

func committedRecord(t *testing.T) cycle.Record {
	t.Helper()

	trail := audit.Trail{
		"reel_1": {Result: 7, Seed: 42, Min: 1, Max: 10},
	}
	canonical, err := audit.Canonicalize(trail)
	require.NoError(t, err)

	return cycle.Record{
		ID:         "cy-1",
		At:         time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Production: true,
		Engine: engine.Info{
			Code: "GOLDLINE3", Version: "1.4.2", RTP: 95.7,
			GameType: "video_slot", Name: "Gold Line Classic", Provider: "Certspin Studios",
		},
		Command:   engine.Command{ID: "c1", Type: engine.CommandSpin},
		Result:    engine.Result{Success: true},
		Trail:     trail,
		Canonical: canonical,
		Hash:      audit.HashBytes([]byte(canonical)),
	}
}

func TestIssueAndVerify(t *testing.T) {
	keyring, err := NewKeyring()
	require.NoError(t, err)
	issuer := NewIssuer(keyring, "reelcore-test")

	rec := committedRecord(t)
	token, err := issuer.Issue(rec)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	verifier := NewVerifier()
	verifier.TrustKeyring(keyring)

	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "cy-1", claims.CycleID)
	assert.Equal(t, "cy-1", claims.Subject)
	assert.Equal(t, "c1", claims.CommandID)
	assert.Equal(t, "spin", claims.CommandType)
	assert.Equal(t, "GOLDLINE3", claims.EngineCode)
	assert.Equal(t, "1.4.2", claims.EngineVersion)
	assert.Equal(t, rec.Hash, claims.TrailHash)
	assert.True(t, claims.Production)
	assert.Equal(t, "reelcore-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "each receipt carries its own uuid")
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	signerRing, err := NewKeyring()
	require.NoError(t, err)
	otherRing, err := NewKeyring()
	require.NoError(t, err)

	token, err := NewIssuer(signerRing, "").Issue(committedRecord(t))
	require.NoError(t, err)

	verifier := NewVerifier()
	verifier.TrustKeyring(otherRing)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	keyring, err := NewKeyring()
	require.NoError(t, err)
	token, err := NewIssuer(keyring, "").Issue(committedRecord(t))
	require.NoError(t, err)

	verifier := NewVerifier()
	verifier.TrustKeyring(keyring)

	tampered := token[:len(token)-4] + "AAAA"
	if tampered == token {
		tampered = token[:len(token)-4] + "BBBB"
	}
	_, err = verifier.Verify(tampered)
	assert.Error(t, err)
}

func TestVerifyRecordBinding(t *testing.T) {
	keyring, err := NewKeyring()
	require.NoError(t, err)
	issuer := NewIssuer(keyring, "")
	verifier := NewVerifier()
	verifier.TrustKeyring(keyring)

	rec := committedRecord(t)
	token, err := issuer.Issue(rec)
	require.NoError(t, err)

	_, err = verifier.VerifyRecord(token, rec)
	require.NoError(t, err)

	other := rec
	other.ID = "cy-2"
	_, err = verifier.VerifyRecord(token, other)
	assert.ErrorIs(t, err, ErrMismatch)

	swapped := rec
	swapped.Engine.Version = "1.4.3"
	_, err = verifier.VerifyRecord(token, swapped)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestDeriveKeyringDeterministic(t *testing.T) {
	secret := []byte("master-secret-0123456789abcdef")

	a, err := DeriveKeyring(secret, "mt")
	require.NoError(t, err)
	b, err := DeriveKeyring(secret, "mt")
	require.NoError(t, err)
	c, err := DeriveKeyring(secret, "gi")
	require.NoError(t, err)

	assert.Equal(t, a.Public(), b.Public(), "same secret and context derive the same key")
	assert.Equal(t, a.KeyID(), b.KeyID())
	assert.NotEqual(t, a.Public(), c.Public(), "contexts are domain-separated")

	// A receipt from a derived keyring verifies after re-derivation, the
	// restart story.
	token, err := NewIssuer(a, "").Issue(committedRecord(t))
	require.NoError(t, err)
	verifier := NewVerifier()
	verifier.TrustKeyring(b)
	_, err = verifier.Verify(token)
	assert.NoError(t, err)
}

func TestDeriveKeyringRejectsEmptyInputs(t *testing.T) {
	_, err := DeriveKeyring(nil, "mt")
	assert.Error(t, err)
	_, err = DeriveKeyring([]byte("secret"), "")
	assert.Error(t, err)
}

func TestSigningSink(t *testing.T) {
	keyring, err := NewKeyring()
	require.NoError(t, err)
	inner := cycle.NewMemorySink()
	sink := NewSigningSink(inner, NewIssuer(keyring, ""))

	rec := committedRecord(t)
	require.NoError(t, sink.Emit(context.Background(), rec))

	assert.Equal(t, 1, inner.Len())
	token, ok := sink.Receipt("cy-1")
	require.True(t, ok)

	verifier := NewVerifier()
	verifier.TrustKeyring(keyring)
	_, err = verifier.VerifyRecord(token, rec)
	assert.NoError(t, err)

	// Inner sink refusal propagates and leaves no receipt behind.
	dup := sink.Emit(context.Background(), rec)
	assert.Error(t, dup)
}
