// Package stake tracks staked validators and implements stake-weighted
// random selection and slashing. The registry is an independent subsystem:
// it never gates block production, though the miner may stamp its selection
// result onto produced blocks.
package stake

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidStake        = errors.New("stake must be positive")
	ErrBelowMinimumStake   = errors.New("stake below registry minimum")
	ErrNoEligibleValidator = errors.New("no eligible validators")
	ErrValidatorNotFound   = errors.New("validator not found")
)

// SlashReason records why a validator was slashed. Audit metadata only.
type SlashReason string

const (
	ReasonUnspecified SlashReason = "UNSPECIFIED"
	ReasonDoubleSign  SlashReason = "DOUBLE_SIGN"
	ReasonDowntime    SlashReason = "DOWNTIME"
	ReasonFraud       SlashReason = "FRAUD"
)

// Validator is one registry entry. Once Active is false the entry is
// permanently excluded from selection; there is no unslashing path. Entries
// are never removed, so the registry doubles as an audit trail.
type Validator struct {
	Address    string      `json:"address"`
	Stake      uint64      `json:"stake"`
	Active     bool        `json:"active"`
	SlashedFor SlashReason `json:"slashedFor,omitempty"`
}

// Config configures a Registry.
type Config struct {
	// MinimumStake, when non-zero, raises the registration floor above the
	// base requirement that stake be positive.
	MinimumStake uint64
	// Source seeds the selection randomness. Nil uses a time-seeded source;
	// tests inject a fixed seed.
	Source rand.Source
	// Logger is optional; nil silences the registry.
	Logger *logrus.Logger
}

// Registry owns its validator entries exclusively.
type Registry struct {
	mu         sync.Mutex
	validators []*Validator
	minStake   uint64
	rng        *rand.Rand
	log        *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	src := cfg.Source
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Registry{
		minStake: cfg.MinimumStake,
		rng:      rand.New(src),
		log:      logger.WithField("component", "stake"),
	}
}

// Add registers a new active validator. Stake must be strictly positive,
// meet the registry minimum, and keep the active total within the range the
// selection draw operates on. Re-adding an address creates a second
// independent entry; the registry does not deduplicate.
func (r *Registry) Add(address string, stake uint64) error {
	if stake == 0 {
		return fmt.Errorf("%w: %q staked 0", ErrInvalidStake, address)
	}
	if stake < r.minStake {
		return fmt.Errorf("%w: %q staked %d, minimum is %d", ErrBelowMinimumStake, address, stake, r.minStake)
	}

	r.mu.Lock()
	if total := r.totalStakeLocked(); stake > math.MaxInt64-total {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q staking %d would overflow the active total %d", ErrInvalidStake, address, stake, total)
	}
	r.validators = append(r.validators, &Validator{Address: address, Stake: stake, Active: true})
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"address": address, "stake": stake}).Info("validator registered")
	return nil
}

// TotalStake sums the stake of all active validators.
func (r *Registry) TotalStake() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalStakeLocked()
}

func (r *Registry) totalStakeLocked() uint64 {
	var total uint64
	for _, v := range r.validators {
		if v.Active {
			total += v.Stake
		}
	}
	return total
}

// Select draws one validator at random, weighted by stake: a uniform value
// in [0, totalStake) is matched against the cumulative stake of the active
// entries in registration order. The probability of picking a validator is
// stake/totalStake.
func (r *Registry) Select() (Validator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.totalStakeLocked()
	if total == 0 {
		return Validator{}, ErrNoEligibleValidator
	}

	draw := uint64(r.rng.Int63n(int64(total)))
	var cumulative uint64
	for _, v := range r.validators {
		if !v.Active {
			continue
		}
		cumulative += v.Stake
		if draw < cumulative {
			return *v, nil
		}
	}
	// Unreachable: cumulative reaches total and draw < total.
	return Validator{}, ErrNoEligibleValidator
}

// Slash permanently deactivates the first entry matching the address.
func (r *Registry) Slash(address string) error {
	return r.SlashFor(address, ReasonUnspecified)
}

// SlashFor is Slash with an explicit recorded reason.
func (r *Registry) SlashFor(address string, reason SlashReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.validators {
		if v.Address == address {
			v.Active = false
			v.SlashedFor = reason
			r.log.WithFields(logrus.Fields{"address": address, "reason": reason}).Warn("validator slashed")
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrValidatorNotFound, address)
}

// Validators returns a snapshot copy of every entry, slashed ones included.
func (r *Registry) Validators() []Validator {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Validator, len(r.validators))
	for i, v := range r.validators {
		out[i] = *v
	}
	return out
}

// ActiveCount returns the number of entries still eligible for selection.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.validators {
		if v.Active {
			n++
		}
	}
	return n
}
