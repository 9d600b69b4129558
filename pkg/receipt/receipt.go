package receipt

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/certspin/reelcore/pkg/cycle"
)

var (
	// ErrUnknownKey reports a receipt signed by a key the verifier does not
	// hold.
	ErrUnknownKey = errors.New("receipt: unknown signing key")
	// ErrMismatch reports a receipt whose claims do not match the record it
	// is presented with.
	ErrMismatch = errors.New("receipt: claims do not match record")
)

// Claims is the receipt payload. Subject carries the cycle id; the rest
// binds the command, the engine build, and the canonical trail hash.
type Claims struct {
	jwt.RegisteredClaims
	CycleID       string `json:"cycle_id"`
	CommandID     string `json:"command_id"`
	CommandType   string `json:"command_type"`
	EngineCode    string `json:"engine_code"`
	EngineVersion string `json:"engine_version"`
	TrailHash     string `json:"trail_hash"`
	Production    bool   `json:"production"`
}

// Issuer signs receipts with one keyring.
type Issuer struct {
	keyring *Keyring
	issuer  string
}

// NewIssuer creates an issuer. The issuer name lands in the `iss` claim.
func NewIssuer(k *Keyring, issuerName string) *Issuer {
	if issuerName == "" {
		issuerName = "reelcore"
	}
	return &Issuer{keyring: k, issuer: issuerName}
}

// Issue signs a receipt for a committed record. Receipts do not expire:
// they are evidence, not sessions.
func (i *Issuer) Issue(rec cycle.Record) (string, error) {
	if i == nil || i.keyring == nil {
		return "", errors.New("receipt: issuer has no keyring (fail-closed)")
	}
	if rec.ID == "" {
		return "", errors.New("receipt: record has no id")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.New().String(),
			Subject:  rec.ID,
			Issuer:   i.issuer,
			Audience: jwt.ClaimStrings{"regulator"},
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
		CycleID:       rec.ID,
		CommandID:     rec.Command.ID,
		CommandType:   string(rec.Command.Type),
		EngineCode:    rec.Engine.Code,
		EngineVersion: rec.Engine.Version,
		TrailHash:     rec.Hash,
		Production:    rec.Production,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = i.keyring.KeyID()
	signed, err := token.SignedString(i.keyring.priv)
	if err != nil {
		return "", fmt.Errorf("receipt: sign: %w", err)
	}
	return signed, nil
}

// Verifier validates receipts against a set of trusted public keys, looked
// up by the `kid` header. It is the regulator-side half: it never holds
// private key material.
type Verifier struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewVerifier creates an empty verifier.
func NewVerifier() *Verifier {
	return &Verifier{keys: make(map[string]ed25519.PublicKey)}
}

// AddKey trusts a verification key under its id.
func (v *Verifier) AddKey(kid string, pub ed25519.PublicKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[kid] = pub
}

// TrustKeyring trusts a keyring's public half.
func (v *Verifier) TrustKeyring(k *Keyring) {
	v.AddKey(k.KeyID(), k.Public())
}

// Verify parses and validates a receipt, returning its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("receipt: verify: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// VerifyRecord validates a receipt and checks that it binds rec: matching
// cycle and command identifiers, engine build, and trail hash, with the
// record itself verifying too.
func (v *Verifier) VerifyRecord(token string, rec cycle.Record) (*Claims, error) {
	claims, err := v.Verify(token)
	if err != nil {
		return nil, err
	}
	if err := rec.Verify(); err != nil {
		return nil, err
	}
	switch {
	case claims.CycleID != rec.ID:
		return nil, fmt.Errorf("%w: cycle id", ErrMismatch)
	case claims.CommandID != rec.Command.ID:
		return nil, fmt.Errorf("%w: command id", ErrMismatch)
	case claims.CommandType != string(rec.Command.Type):
		return nil, fmt.Errorf("%w: command type", ErrMismatch)
	case claims.EngineCode != rec.Engine.Code || claims.EngineVersion != rec.Engine.Version:
		return nil, fmt.Errorf("%w: engine build", ErrMismatch)
	case claims.TrailHash != rec.Hash:
		return nil, fmt.Errorf("%w: trail hash", ErrMismatch)
	case claims.Production != rec.Production:
		return nil, fmt.Errorf("%w: mode", ErrMismatch)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, ErrUnknownKey
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	pub, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return pub, nil
}

// SigningSink decorates a cycle sink: each record is committed to the
// inner sink first, then receipted. Receipt failure fails the cycle, so
// every committed record is retrievable with its receipt.
type SigningSink struct {
	inner  cycle.Sink
	issuer *Issuer

	mu       sync.RWMutex
	receipts map[string]string
}

// NewSigningSink wraps inner with receipt issuance.
func NewSigningSink(inner cycle.Sink, issuer *Issuer) *SigningSink {
	return &SigningSink{
		inner:    inner,
		issuer:   issuer,
		receipts: make(map[string]string),
	}
}

// Emit commits rec and issues its receipt.
func (s *SigningSink) Emit(ctx context.Context, rec cycle.Record) error {
	if s.inner == nil {
		return errors.New("receipt: signing sink has no inner sink (fail-closed)")
	}
	if err := s.inner.Emit(ctx, rec); err != nil {
		return err
	}
	token, err := s.issuer.Issue(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.receipts[rec.ID] = token
	s.mu.Unlock()
	return nil
}

// Receipt returns the receipt issued for a cycle id.
func (s *SigningSink) Receipt(cycleID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.receipts[cycleID]
	return token, ok
}
