package remotefs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/leaktk/sysvolscan/pkg/logger"
)

// NT status codes returned by the server that map to ErrNotFound or
// ErrAccessDenied
const (
	statusAccessDenied       = 0xC0000022
	statusObjectNameNotFound = 0xC0000034
	statusObjectPathNotFound = 0xC000003A
	statusNoSuchFile         = 0xC000000F
	statusBadNetworkName     = 0xC00000CC
)

// SMBOptions holds what's needed to authenticate to a domain controller
type SMBOptions struct {
	Host     string
	Port     int
	Domain   string
	User     string
	Password string
	// NTHash is a hex encoded NT hash used instead of Password when set
	NTHash      string
	DialTimeout time.Duration
}

// SMB reads shares from a live server over SMB2/3
type SMB struct {
	conn    net.Conn
	session *smb2.Session
	mu      sync.Mutex
	shares  map[string]*smb2.Share
}

// DialSMB connects and authenticates to the server
func DialSMB(ctx context.Context, opts SMBOptions) (*SMB, error) {
	initiator := &smb2.NTLMInitiator{
		User:     opts.User,
		Domain:   opts.Domain,
		Password: opts.Password,
	}

	if len(opts.NTHash) > 0 {
		hash, err := hex.DecodeString(opts.NTHash)
		if err != nil {
			return nil, fmt.Errorf("invalid nt hash: %w", err)
		}

		initiator.Password = ""
		initiator.Hash = hash
	}

	port := opts.Port
	if port == 0 {
		port = 445
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: could not connect: addr=%q error=%w", ErrTransport, addr, err)
	}

	d := &smb2.Dialer{Initiator: initiator}
	session, err := d.DialContext(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: could not authenticate: addr=%q user=%q error=%w", classifySMB(err), addr, opts.User, err)
	}

	logger.Debug("smb session established: addr=%q user=%q", addr, opts.User)

	return &SMB{
		conn:    conn,
		session: session,
		shares:  make(map[string]*smb2.Share),
	}, nil
}

// Shares lists the share names the server exposes
func (s *SMB) Shares(ctx context.Context) ([]string, error) {
	names, err := s.session.WithContext(ctx).ListSharenames()
	if err != nil {
		return nil, fmt.Errorf("%w: could not list shares: %w", classifySMB(err), err)
	}

	return names, nil
}

func (s *SMB) mount(share string) (*smb2.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(share)
	if mounted, ok := s.shares[key]; ok {
		return mounted, nil
	}

	mounted, err := s.session.Mount(share)
	if err != nil {
		return nil, err
	}

	s.shares[key] = mounted
	return mounted, nil
}

func smbPath(p string) string {
	return strings.ReplaceAll(Clean(p), "/", `\`)
}

// List implements FS
func (s *SMB) List(ctx context.Context, share, dir string) ([]Entry, error) {
	mounted, err := s.mount(share)
	if err != nil {
		return nil, &PathError{Op: "mount", Share: share, Path: dir, Err: classifySMBErr(err)}
	}

	infos, err := mounted.WithContext(ctx).ReadDir(smbPath(dir))
	if err != nil {
		return nil, &PathError{Op: "list", Share: share, Path: dir, Err: classifySMBErr(err)}
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:  info.Name(),
			IsDir: info.IsDir(),
			Size:  info.Size(),
		})
	}

	return entries, nil
}

// Open implements FS
func (s *SMB) Open(ctx context.Context, share, name string) (io.ReadCloser, error) {
	mounted, err := s.mount(share)
	if err != nil {
		return nil, &PathError{Op: "mount", Share: share, Path: name, Err: classifySMBErr(err)}
	}

	f, err := mounted.WithContext(ctx).Open(smbPath(name))
	if err != nil {
		return nil, &PathError{Op: "open", Share: share, Path: name, Err: classifySMBErr(err)}
	}

	return f, nil
}

// Search implements FS
func (s *SMB) Search(ctx context.Context, share, root, pattern string) ([]string, error) {
	return SearchWalk(ctx, s, share, root, pattern)
}

// Close unmounts the shares and ends the session
func (s *SMB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, mounted := range s.shares {
		if err := mounted.Umount(); err != nil {
			errs = append(errs, fmt.Errorf("could not unmount: share=%q error=%w", name, err))
		}
	}

	clear(s.shares)

	if err := s.session.Logoff(); err != nil {
		errs = append(errs, fmt.Errorf("could not log off: %w", err))
	}

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func classifySMBErr(err error) error {
	return fmt.Errorf("%w: %w", classifySMB(err), err)
}

func classifySMB(err error) error {
	var respErr *smb2.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.Code {
		case statusAccessDenied:
			return ErrAccessDenied
		case statusObjectNameNotFound, statusObjectPathNotFound, statusNoSuchFile, statusBadNetworkName:
			return ErrNotFound
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrAccessDenied
	default:
		return ErrTransport
	}
}
