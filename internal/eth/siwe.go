package eth

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const siweHeaderSuffix = " wants you to sign in with your Ethereum account:"

// SIWEVersion is the only message version defined by EIP-4361
const SIWEVersion = "1"

var (
	ErrInvalidMessage = errors.New("invalid sign-in message")

	nonceRe  = regexp.MustCompile(`^[a-zA-Z0-9]{8,}$`)
	schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*$`)
)

// SIWEMessage is an EIP-4361 Sign-In with Ethereum message
type SIWEMessage struct {
	Scheme         string
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// ValidAt reports whether t falls inside the message's validity window
func (m *SIWEMessage) ValidAt(t time.Time) bool {
	if m.ExpirationTime != nil && !t.Before(*m.ExpirationTime) {
		return false
	}
	if m.NotBefore != nil && t.Before(*m.NotBefore) {
		return false
	}
	return true
}

// String renders the message in the exact form a wallet signs
func (m *SIWEMessage) String() string {
	var b strings.Builder

	if m.Scheme != "" {
		b.WriteString(m.Scheme + "://")
	}
	b.WriteString(m.Domain + siweHeaderSuffix + "\n")
	b.WriteString(m.Address.Hex() + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")

	fields := []string{
		"URI: " + m.URI,
		"Version: " + m.Version,
		"Chain ID: " + strconv.FormatInt(m.ChainID, 10),
		"Nonce: " + m.Nonce,
		"Issued At: " + m.IssuedAt.UTC().Format(time.RFC3339),
	}
	if m.ExpirationTime != nil {
		fields = append(fields, "Expiration Time: "+m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		fields = append(fields, "Not Before: "+m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		fields = append(fields, "Request ID: "+m.RequestID)
	}
	if len(m.Resources) > 0 {
		fields = append(fields, "Resources:")
		for _, r := range m.Resources {
			fields = append(fields, "- "+r)
		}
	}
	b.WriteString(strings.Join(fields, "\n"))

	return b.String()
}

// ParseSIWEMessage parses the textual form of an EIP-4361 message.
// Fields must appear in the order the standard defines.
func ParseSIWEMessage(raw string) (*SIWEMessage, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: message too short", ErrInvalidMessage)
	}

	msg := &SIWEMessage{}

	domain, ok := strings.CutSuffix(lines[0], siweHeaderSuffix)
	if !ok || domain == "" {
		return nil, fmt.Errorf("%w: missing domain header", ErrInvalidMessage)
	}
	if scheme, rest, found := strings.Cut(domain, "://"); found {
		if !schemeRe.MatchString(scheme) {
			return nil, fmt.Errorf("%w: invalid scheme", ErrInvalidMessage)
		}
		msg.Scheme, domain = scheme, rest
	}
	if domain == "" || strings.ContainsAny(domain, " \t/?#") {
		return nil, fmt.Errorf("%w: invalid domain", ErrInvalidMessage)
	}
	msg.Domain = domain

	if !strings.HasPrefix(lines[1], "0x") || !common.IsHexAddress(lines[1]) {
		return nil, fmt.Errorf("%w: invalid address", ErrInvalidMessage)
	}
	msg.Address = common.HexToAddress(lines[1])
	if msg.Address.Hex() != lines[1] {
		return nil, fmt.Errorf("%w: address is not EIP-55 checksummed", ErrInvalidMessage)
	}

	if lines[2] != "" {
		return nil, fmt.Errorf("%w: expected blank line after address", ErrInvalidMessage)
	}

	i := 3
	if strings.HasPrefix(lines[i], "URI: ") {
		// Some wallets drop the second blank line when there is no statement
		i--
	} else if lines[i] != "" {
		msg.Statement = lines[i]
		i++
		if i >= len(lines) || lines[i] != "" {
			return nil, fmt.Errorf("%w: expected blank line after statement", ErrInvalidMessage)
		}
	}
	i++

	p := &fieldParser{lines: lines, pos: i}

	var err error
	if msg.URI, err = p.required("URI"); err != nil {
		return nil, err
	}
	if err := validateURI(msg.URI); err != nil {
		return nil, err
	}
	if msg.Version, err = p.required("Version"); err != nil {
		return nil, err
	}
	if msg.Version != SIWEVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidMessage, msg.Version)
	}

	chainID, err := p.required("Chain ID")
	if err != nil {
		return nil, err
	}
	if msg.ChainID, err = strconv.ParseInt(chainID, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid chain id", ErrInvalidMessage)
	}

	if msg.Nonce, err = p.required("Nonce"); err != nil {
		return nil, err
	}
	if !nonceRe.MatchString(msg.Nonce) {
		return nil, fmt.Errorf("%w: invalid nonce", ErrInvalidMessage)
	}

	issuedAt, err := p.required("Issued At")
	if err != nil {
		return nil, err
	}
	if msg.IssuedAt, err = parseTimestamp(issuedAt); err != nil {
		return nil, err
	}

	if v, ok := p.optional("Expiration Time"); ok {
		ts, err := parseTimestamp(v)
		if err != nil {
			return nil, err
		}
		msg.ExpirationTime = &ts
	}
	if v, ok := p.optional("Not Before"); ok {
		ts, err := parseTimestamp(v)
		if err != nil {
			return nil, err
		}
		msg.NotBefore = &ts
	}
	if v, ok := p.optional("Request ID"); ok {
		msg.RequestID = v
	}
	if p.pos < len(p.lines) && p.lines[p.pos] == "Resources:" {
		p.pos++
		for p.pos < len(p.lines) {
			r, ok := strings.CutPrefix(p.lines[p.pos], "- ")
			if !ok {
				break
			}
			if err := validateURI(r); err != nil {
				return nil, err
			}
			msg.Resources = append(msg.Resources, r)
			p.pos++
		}
	}

	for ; p.pos < len(p.lines); p.pos++ {
		if strings.TrimSpace(p.lines[p.pos]) != "" {
			return nil, fmt.Errorf("%w: unexpected line %q", ErrInvalidMessage, p.lines[p.pos])
		}
	}

	return msg, nil
}

type fieldParser struct {
	lines []string
	pos   int
}

func (p *fieldParser) optional(key string) (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	v, ok := strings.CutPrefix(p.lines[p.pos], key+": ")
	if !ok {
		return "", false
	}
	p.pos++
	return v, true
}

func (p *fieldParser) required(key string) (string, error) {
	v, ok := p.optional(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidMessage, key)
	}
	return v, nil
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidMessage, v)
	}
	return ts, nil
}

// validateURI requires an absolute RFC 3986 URI
func validateURI(v string) error {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || strings.ContainsAny(v, " \t") {
		return fmt.Errorf("%w: invalid uri %q", ErrInvalidMessage, v)
	}
	return nil
}
