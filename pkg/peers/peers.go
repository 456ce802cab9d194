// Package peers keeps the table of live peers, exchanges it by gossip and
// projects it onto a deterministic aggregation tree.
package peers

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTTL            = 60 * time.Second
	DefaultFanout         = 3
	DefaultGossipInterval = 2000 * time.Millisecond
)

var (
	ErrEmptyID          = errors.New("empty peer id")
	ErrMalformedAddress = errors.New("malformed peer address, expected host:port")
	ErrUnknownRole      = errors.New("unknown peer role")
)

type Role uint8

const (
	Worker Role = iota
	ParameterServer
)

func (r Role) String() string {
	switch r {
	case Worker:
		return "worker"
	case ParameterServer:
		return "parameter_server"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Code is the numeric role carried on the wire.
func (r Role) Code() uint8 {
	return uint8(r)
}

func RoleFromCode(code uint8) (Role, error) {
	switch Role(code) {
	case Worker, ParameterServer:
		return Role(code), nil
	default:
		return Worker, fmt.Errorf("%w: code %d", ErrUnknownRole, code)
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "worker", "w":
		return Worker, nil
	case "parameter_server", "parameter-server", "ps":
		return ParameterServer, nil
	default:
		return Worker, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case Worker, ParameterServer:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnknownRole, uint8(r))
	}
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed

	return nil
}

type Record struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Role     Role      `json:"role"`
	LastSeen time.Time `json:"last_seen"`
}

// Topology is the local node's position in the aggregation tree.
type Topology struct {
	Parent   *Record  `json:"parent,omitempty"`
	Children []Record `json:"children"`
	IsRoot   bool     `json:"is_root"`
}

// Orphan reports a worker that has no parameter server to report to.
func (t Topology) Orphan() bool {
	return !t.IsRoot && t.Parent == nil
}

// Hash is the wrapping byte sum of id. Every node computes the same value for
// the same id, which makes parent assignment agree without coordination.
func Hash(id string) uint64 {
	var sum uint64
	for i := 0; i < len(id); i++ {
		sum += uint64(id[i])
	}

	return sum
}

func ValidateAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMalformedAddress, address, err)
	}
	if host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrMalformedAddress, address)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("%w: %q: invalid port", ErrMalformedAddress, address)
	}

	return nil
}
