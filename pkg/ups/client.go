// Package ups pkg/ups/client.go

package ups

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Client reads OIDs from one SNMP agent.
type Client interface {
	Connect() error
	Get(oids []string) (map[string]interface{}, error)
	Close() error
}

// ClientFactory builds a client for a target.
type ClientFactory func(target *Target) (Client, error)

// SNMPClientImpl implements Client using gosnmp.
type SNMPClientImpl struct {
	client    *gosnmp.GoSNMP
	target    *Target
	mu        sync.Mutex
	connected bool
}

// SNMPError wraps SNMP-specific errors with additional context.
type SNMPError struct {
	Op      string
	Target  string
	Wrapped error
}

func (e *SNMPError) Error() string {
	return fmt.Sprintf("SNMP %s failed for target %s: %v", e.Op, e.Target, e.Wrapped)
}

func (e *SNMPError) Unwrap() error {
	return e.Wrapped
}

// NewSNMPClient is the default ClientFactory.
func NewSNMPClient(target *Target) (Client, error) {
	if err := validateTarget(target); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	client := &gosnmp.GoSNMP{
		Target:             target.Host,
		Port:               target.Port,
		Community:          target.Community,
		Timeout:            target.Timeout.Std(),
		Retries:            target.Retries,
		ExponentialTimeout: true,
		MaxOids:            gosnmp.MaxOids,
	}

	switch target.Version {
	case Version1:
		client.Version = gosnmp.Version1
	case Version2c:
		client.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedVer, target.Version)
	}

	return &SNMPClientImpl{
		client: client,
		target: target,
	}, nil
}

func (s *SNMPClientImpl) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connectLocked()
}

func (s *SNMPClientImpl) connectLocked() error {
	if s.connected {
		return nil
	}

	if err := s.client.Connect(); err != nil {
		return &SNMPError{Op: "connect", Target: s.target.Host, Wrapped: err}
	}

	s.connected = true

	return nil
}

func (s *SNMPClientImpl) Get(oids []string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return nil, err
	}

	result, err := s.client.Get(oids)
	if err != nil {
		// reconnect on the next poll
		s.connected = false

		return nil, &SNMPError{Op: "get", Target: s.target.Host, Wrapped: err}
	}

	values := make(map[string]interface{}, len(result.Variables))

	for _, variable := range result.Variables {
		value, err := convertVariable(variable)
		if err != nil {
			return nil, &SNMPError{Op: "convert", Target: s.target.Host, Wrapped: err}
		}

		values[variable.Name] = value
	}

	return values, nil
}

func (s *SNMPClientImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.connected = false

	return s.client.Conn.Close()
}

// convertVariable converts an SNMP variable to the appropriate Go type.
func convertVariable(variable gosnmp.SnmpPDU) (interface{}, error) {
	switch variable.Type {
	case gosnmp.OctetString:
		return string(variable.Value.([]byte)), nil
	case gosnmp.Integer:
		return variable.Value.(int), nil
	case gosnmp.Counter32, gosnmp.Gauge32:
		return uint64(variable.Value.(uint)), nil
	case gosnmp.Counter64:
		return variable.Value.(uint64), nil
	case gosnmp.TimeTicks:
		return time.Duration(variable.Value.(uint32)) * time.Second / 100, nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported SNMP type: %v", variable.Type)
	}
}
