// Package encryption implements envelope encryption for `encrypted`-tagged
// fields via AWS KMS, plugged into pkg/codec as a codec.EncryptionHook.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/session"
)

const (
	envelopeVersionV1 = "1"

	envelopeKeyVersion    = "v"
	envelopeKeyEDK        = "edk"
	envelopeKeyNonce      = "nonce"
	envelopeKeyCiphertext = "ct"
)

// Service implements codec.EncryptionHook over AWS KMS: each field is
// sealed under its own per-call data key (envelope encryption), with the
// attribute name bound into the GCM authenticated data so a ciphertext
// can't be replayed under a different field.
type Service struct {
	kms  session.KMSClient
	rand io.Reader

	keyARN string
}

// NewService builds a Service using kmsClient directly.
func NewService(keyARN string, kmsClient session.KMSClient) *Service {
	return NewServiceWithRand(keyARN, kmsClient, rand.Reader)
}

// NewServiceFromSession builds a Service from sess's configured KMS client.
func NewServiceFromSession(sess *session.Session) *Service {
	cfg := sess.Config()
	return NewServiceWithRand(cfg.KMSKeyARN, sess.KMS(), cfg.EncryptionRand)
}

// NewServiceWithRand builds a Service with an explicit randomness source,
// for deterministic tests. A nil rng falls back to crypto/rand.
func NewServiceWithRand(keyARN string, kmsClient session.KMSClient, rng io.Reader) *Service {
	if rng == nil {
		rng = rand.Reader
	}
	return &Service{keyARN: keyARN, kms: kmsClient, rand: rng}
}

// Encrypt implements codec.EncryptionHook.
func (s *Service) Encrypt(ctx context.Context, attributeName string, av ddbtypes.AttributeValue) (ddbtypes.AttributeValue, error) {
	if s == nil {
		return nil, fmt.Errorf("encryption service is nil")
	}
	if s.kms == nil {
		return nil, fmt.Errorf("kms client is nil")
	}
	if s.keyARN == "" {
		return nil, fmt.Errorf("kms key ARN is empty")
	}
	if attributeName == "" {
		return nil, fmt.Errorf("attribute name is empty")
	}

	plaintext, err := encodeAttributeValue(av)
	if err != nil {
		return nil, err
	}

	dataKey, err := s.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.keyARN),
		KeySpec: kmstypes.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("kms GenerateDataKey failed: %w", err)
	}
	if len(dataKey.Plaintext) != 32 {
		return nil, fmt.Errorf("unexpected data key plaintext length: %d", len(dataKey.Plaintext))
	}
	if len(dataKey.CiphertextBlob) == 0 {
		return nil, fmt.Errorf("kms returned empty ciphertext data key")
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	ct := gcm.Seal(nil, nonce, plaintext, aadForAttribute(attributeName))

	return &ddbtypes.AttributeValueMemberM{
		Value: map[string]ddbtypes.AttributeValue{
			envelopeKeyVersion:    &ddbtypes.AttributeValueMemberN{Value: envelopeVersionV1},
			envelopeKeyEDK:        &ddbtypes.AttributeValueMemberB{Value: dataKey.CiphertextBlob},
			envelopeKeyNonce:      &ddbtypes.AttributeValueMemberB{Value: nonce},
			envelopeKeyCiphertext: &ddbtypes.AttributeValueMemberB{Value: ct},
		},
	}, nil
}

// Decrypt implements codec.EncryptionHook.
func (s *Service) Decrypt(ctx context.Context, attributeName string, envelope ddbtypes.AttributeValue) (ddbtypes.AttributeValue, error) {
	if err := s.validateInputs(attributeName); err != nil {
		return nil, err
	}

	parts, err := parseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	dataKey, err := s.decryptDataKey(ctx, parts.edk)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, parts.nonce, parts.ciphertext, aadForAttribute(attributeName))
	if err != nil {
		return nil, fmt.Errorf("aes-gcm decrypt failed: %w", err)
	}

	return decodeAttributeValue(plaintext)
}

func aadForAttribute(attributeName string) []byte {
	return []byte(fmt.Sprintf("pocodynamo:encrypted:v1|attr=%s", attributeName))
}

func (s *Service) validateInputs(attributeName string) error {
	if s == nil {
		return fmt.Errorf("encryption service is nil")
	}
	if s.kms == nil {
		return fmt.Errorf("kms client is nil")
	}
	if s.keyARN == "" {
		return fmt.Errorf("kms key ARN is empty")
	}
	if attributeName == "" {
		return fmt.Errorf("attribute name is empty")
	}
	return nil
}

type envelopeParts struct {
	edk        []byte
	nonce      []byte
	ciphertext []byte
}

func parseEnvelope(envelope ddbtypes.AttributeValue) (envelopeParts, error) {
	env, ok := envelope.(*ddbtypes.AttributeValueMemberM)
	if !ok || env == nil {
		return envelopeParts{}, fmt.Errorf("%w: expected encrypted envelope map, got %T", pocoerrors.ErrInvalidEncryptedEnvelope, envelope)
	}

	if err := validateEnvelopeVersion(env.Value); err != nil {
		return envelopeParts{}, err
	}

	edkAV, ok := env.Value[envelopeKeyEDK].(*ddbtypes.AttributeValueMemberB)
	if !ok || edkAV == nil || len(edkAV.Value) == 0 {
		return envelopeParts{}, fmt.Errorf("%w: missing encrypted data key", pocoerrors.ErrInvalidEncryptedEnvelope)
	}

	nonceAV, ok := env.Value[envelopeKeyNonce].(*ddbtypes.AttributeValueMemberB)
	if !ok || nonceAV == nil || len(nonceAV.Value) == 0 {
		return envelopeParts{}, fmt.Errorf("%w: missing nonce", pocoerrors.ErrInvalidEncryptedEnvelope)
	}

	ctAV, ok := env.Value[envelopeKeyCiphertext].(*ddbtypes.AttributeValueMemberB)
	if !ok || ctAV == nil {
		return envelopeParts{}, fmt.Errorf("%w: missing ciphertext", pocoerrors.ErrInvalidEncryptedEnvelope)
	}

	return envelopeParts{edk: edkAV.Value, nonce: nonceAV.Value, ciphertext: ctAV.Value}, nil
}

func validateEnvelopeVersion(values map[string]ddbtypes.AttributeValue) error {
	versionAV, ok := values[envelopeKeyVersion].(*ddbtypes.AttributeValueMemberN)
	if !ok || versionAV == nil || versionAV.Value != envelopeVersionV1 {
		return fmt.Errorf("%w: unsupported encrypted envelope version", pocoerrors.ErrInvalidEncryptedEnvelope)
	}
	return nil
}

func (s *Service) decryptDataKey(ctx context.Context, edk []byte) ([]byte, error) {
	dec, err := s.kms.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: edk,
		KeyId:          aws.String(s.keyARN),
	})
	if err != nil {
		return nil, fmt.Errorf("kms Decrypt failed: %w", err)
	}
	if len(dec.Plaintext) != 32 {
		return nil, fmt.Errorf("unexpected data key plaintext length: %d", len(dec.Plaintext))
	}
	return dec.Plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm init failed: %w", err)
	}
	return gcm, nil
}

func encodeAttributeValue(av ddbtypes.AttributeValue) ([]byte, error) {
	enc, err := marshalAVJSON(av)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attribute value: %w", err)
	}
	return out, nil
}

func decodeAttributeValue(data []byte) (ddbtypes.AttributeValue, error) {
	var enc avJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("failed to decode attribute value: %w", err)
	}
	return unmarshalAVJSON(enc)
}
