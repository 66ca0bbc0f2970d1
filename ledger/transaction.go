package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/osash4/dujyo-ledger/ledger/codec"
)

// SystemAddress is the sender sentinel for system-issued transactions
// (mining rewards, content registrations minted by the platform). System
// transactions carry no signature and are always valid.
const SystemAddress = ""

// TxKind discriminates plain transfers from contract actions.
type TxKind string

const (
	KindTransfer            TxKind = "TRANSFER"
	KindContentRegistration TxKind = "CONTENT_REGISTRATION"
	KindContentLicense      TxKind = "CONTENT_LICENSE"
	KindStreamReward        TxKind = "STREAM_REWARD"
)

// ContractPayload carries the structured data of a contract-kind transaction.
type ContractPayload struct {
	ContentID      string `json:"contentId"`
	ContentHash    string `json:"contentHash,omitempty"`
	TokenID        string `json:"tokenId,omitempty"`
	ExpirationDate int64  `json:"expirationDate,omitempty"`
}

// Transaction is a value record describing a transfer or contract action.
// It is constructed once, optionally signed, submitted to the ledger's
// pending pool and then embedded immutably inside exactly one block.
type Transaction struct {
	ID        string           `json:"id"`
	Sender    string           `json:"sender"`
	Recipient string           `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
	Kind      TxKind           `json:"kind"`
	Payload   *ContractPayload `json:"payload,omitempty"`
	Signature []byte           `json:"signature,omitempty"`
	Nonce     uint64           `json:"nonce"`
}

// txPreimage is the canonical hash input. The signature (and the ID, which
// is transport metadata) are excluded: the digest is what gets signed.
type txPreimage struct {
	Sender    string           `json:"sender"`
	Recipient string           `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
	Kind      TxKind           `json:"kind"`
	Payload   *ContractPayload `json:"payload,omitempty"`
	Nonce     uint64           `json:"nonce"`
}

// NewTransaction creates a plain transfer. The timestamp is assigned here,
// once, and never changes afterwards.
func NewTransaction(sender, recipient string, amount uint64) (*Transaction, error) {
	return NewContractTransaction(sender, recipient, amount, KindTransfer, nil)
}

// NewContractTransaction creates a transaction of the given kind with an
// optional contract payload.
func NewContractTransaction(sender, recipient string, amount uint64, kind TxKind, payload *ContractPayload) (*Transaction, error) {
	if recipient == "" {
		return nil, fmt.Errorf("%w: empty recipient", ErrInvalidTransaction)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}
	// Balances are signed; an amount past MaxInt64 would wrap during replay.
	if amount > math.MaxInt64 {
		return nil, fmt.Errorf("%w: amount overflows balance arithmetic", ErrInvalidTransaction)
	}
	if sender == recipient {
		return nil, fmt.Errorf("%w: sender and recipient are the same address", ErrInvalidTransaction)
	}
	switch kind {
	case KindTransfer, KindContentRegistration, KindContentLicense, KindStreamReward:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, kind)
	}
	if kind != KindTransfer && payload == nil {
		return nil, fmt.Errorf("%w: %s requires a payload", ErrInvalidTransaction, kind)
	}

	return &Transaction{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: time.Now().UnixMilli(),
		Kind:      kind,
		Payload:   payload,
	}, nil
}

// IsSystem reports whether the transaction was issued by the system sentinel.
func (tx *Transaction) IsSystem() bool {
	return tx.Sender == SystemAddress
}

// ComputeHash recomputes the transaction digest from the canonical fields.
// Pure: two calls on the same content always agree.
func (tx *Transaction) ComputeHash() string {
	return codec.Sum(tx.preimage())
}

func (tx *Transaction) preimage() txPreimage {
	return txPreimage{
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Amount:    tx.Amount,
		Timestamp: tx.Timestamp,
		Kind:      tx.Kind,
		Payload:   tx.Payload,
		Nonce:     tx.Nonce,
	}
}

// Sign sets the signature to the signer's signature over ComputeHash.
// The signer must own the sender address.
func (tx *Transaction) Sign(s Signer) error {
	if s.Address() != tx.Sender {
		return fmt.Errorf("%w: signer %q cannot sign for %q", ErrAuthorization, s.Address(), tx.Sender)
	}
	sig, err := s.Sign(tx.ComputeHash())
	if err != nil {
		return fmt.Errorf("signing transaction %s: %w", tx.ID, err)
	}
	tx.Signature = sig
	return nil
}

// Validate checks the transaction against the given verifier. System
// transactions pass unconditionally; everything else needs a non-empty
// signature that the verifier accepts.
func (tx *Transaction) Validate(v SignatureVerifier) error {
	if tx.IsSystem() {
		return nil
	}
	if len(tx.Signature) == 0 {
		return ErrUnsignedTransaction
	}
	if v == nil {
		v = NoopVerifier{}
	}
	return v.Verify(tx)
}
