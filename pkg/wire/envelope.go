package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolVersion is bumped on incompatible changes to Envelope or any
// Message.
const ProtocolVersion uint16 = 2

var (
	ErrVersionMismatch = errors.New("unsupported protocol version")
	ErrUnknownKind     = errors.New("unknown message kind")
	ErrEmptySender     = errors.New("envelope without sender id")
	ErrMalformed       = errors.New("malformed message")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 24,
		MaxMapPairs:      1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Sender identifies the node that produced an envelope.
type Sender struct {
	ID       string
	Address  string
	RoleCode uint8
}

// Envelope is the session header every message travels in. It carries the
// sender identity and the epoch the message belongs to.
type Envelope struct {
	Version       uint16 `cbor:"1,keyasint"`
	Kind          Kind   `cbor:"2,keyasint"`
	SenderID      string `cbor:"3,keyasint"`
	SenderAddress string `cbor:"4,keyasint"`
	SenderRole    uint8  `cbor:"5,keyasint"`
	Epoch         uint64 `cbor:"6,keyasint"`
	Body          []byte `cbor:"7,keyasint"`
}

// Seal wraps msg into an envelope stamped with the current protocol version.
func Seal(from Sender, epoch uint64, msg Message) (Envelope, error) {
	if from.ID == "" {
		return Envelope{}, ErrEmptySender
	}
	body, err := encMode.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return Envelope{
		Version:       ProtocolVersion,
		Kind:          msg.Kind(),
		SenderID:      from.ID,
		SenderAddress: from.Address,
		SenderRole:    from.RoleCode,
		Epoch:         epoch,
		Body:          body,
	}, nil
}

func Encode(env Envelope) ([]byte, error) {
	if err := validate(env); err != nil {
		return nil, err
	}

	return encMode.Marshal(env)
}

// Decode parses an envelope and rejects unknown versions and kinds. The body
// stays encoded until Open.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := validate(env); err != nil {
		return Envelope{}, err
	}

	return env, nil
}

// Open decodes the envelope body into the message type named by its kind.
func Open(env Envelope) (Message, error) {
	var (
		msg Message
		err error
	)
	switch env.Kind {
	case KindGossip:
		var g Gossip
		err = decMode.Unmarshal(env.Body, &g)
		msg = g
	case KindGradient:
		var g GradientContribution
		err = decMode.Unmarshal(env.Body, &g)
		msg = g
	case KindBroadcast:
		var b ParameterBroadcast
		err = decMode.Unmarshal(env.Body, &b)
		msg = b
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s body: %w", ErrMalformed, env.Kind, err)
	}

	return msg, nil
}

func validate(env Envelope) error {
	if env.Version != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrVersionMismatch, env.Version)
	}
	switch env.Kind {
	case KindGossip, KindGradient, KindBroadcast:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if env.SenderID == "" {
		return ErrEmptySender
	}

	return nil
}
