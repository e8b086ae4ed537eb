package scanner

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
)

// ClamdStrategy streams content to a clamd daemon using the INSTREAM command.
type ClamdStrategy struct {
	addr    string
	timeout time.Duration
	chunk   int
}

// NewClamdStrategy constructs a clamd client, or returns nil when no address is configured.
func NewClamdStrategy(settings ClamAVSettings) *ClamdStrategy {
	if !settings.Configured() {
		return nil
	}
	chunk := settings.ChunkBytes
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ClamdStrategy{addr: settings.Addr(), timeout: timeout, chunk: chunk}
}

// Type returns TypeClamAV.
func (*ClamdStrategy) Type() Type { return TypeClamAV }

// Scan sends content to clamd and interprets its reply.
func (c *ClamdStrategy) Scan(ctx context.Context, content []byte) Outcome {
	reply, err := c.instream(ctx, content)
	if err != nil {
		return errorOutcome(TypeClamAV, err)
	}
	return parseClamdReply(reply)
}

// Ping checks that the daemon answers PONG.
func (c *ClamdStrategy) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	if _, err = conn.Write([]byte("zPING\x00")); err != nil {
		return errors.Wrap(err, "write clamd ping")
	}
	reply, err := readClamdReply(conn)
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return errors.Errorf("unexpected clamd ping reply %q", reply)
	}
	return nil
}

func (c *ClamdStrategy) instream(ctx context.Context, content []byte) (string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close() //nolint:errcheck

	if _, err = conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return "", errors.Wrap(err, "write clamd command")
	}

	var size [4]byte
	for off := 0; off < len(content); off += c.chunk {
		end := min(off+c.chunk, len(content))
		binary.BigEndian.PutUint32(size[:], uint32(end-off))
		if _, err = conn.Write(size[:]); err != nil {
			return "", errors.Wrap(err, "write clamd chunk size")
		}
		if _, err = conn.Write(content[off:end]); err != nil {
			return "", errors.Wrap(err, "write clamd chunk")
		}
	}
	binary.BigEndian.PutUint32(size[:], 0)
	if _, err = conn.Write(size[:]); err != nil {
		return "", errors.Wrap(err, "write clamd terminator")
	}

	return readClamdReply(conn)
}

// dial connects to clamd with a deadline bounded by both the configured timeout and ctx.
func (c *ClamdStrategy) dial(ctx context.Context) (net.Conn, error) {
	if c == nil {
		return nil, errors.New("clamd strategy is not configured")
	}
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial clamd %s", c.addr)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err = conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "set clamd deadline")
	}
	return conn, nil
}

// readClamdReply reads one NUL-terminated reply.
func readClamdReply(conn net.Conn) (string, error) {
	reply, err := bufio.NewReader(conn).ReadString(0)
	if err != nil && !(errors.Is(err, io.EOF) && reply != "") {
		return "", errors.Wrap(err, "read clamd reply")
	}
	return strings.TrimSpace(strings.TrimRight(reply, "\x00")), nil
}

// parseClamdReply converts replies such as "stream: OK" or
// "stream: Eicar-Signature FOUND" into an Outcome.
func parseClamdReply(reply string) Outcome {
	body := strings.TrimSpace(strings.TrimPrefix(reply, "stream:"))
	switch {
	case body == "OK":
		return threatOutcome(TypeClamAV, nil)
	case strings.HasSuffix(body, " FOUND"):
		name := strings.TrimSpace(strings.TrimSuffix(body, " FOUND"))
		if name == "" {
			name = UnknownThreatName
		}
		return threatOutcome(TypeClamAV, []string{name})
	case strings.HasSuffix(body, "ERROR"):
		return errorOutcome(TypeClamAV, errors.Errorf("clamd error: %s", reply))
	default:
		return errorOutcome(TypeClamAV, errors.Errorf("unexpected clamd reply %q", reply))
	}
}
