package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxAudioBytes = 25 << 20

var audioMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".mp4":  "video/mp4",
}

// Audio is a fully buffered recording ready to hand to a provider.
type Audio struct {
	Data     []byte
	MIMEType string
	FileName string
}

var errBlockedAddress = errors.New("address is not publicly routable")

// AudioSource resolves audio references of the forms s3://bucket/key,
// http(s)://... and paths relative to the local storage directory.
//
// With allowed hosts set, URLs must name one of them. Without, any host is
// accepted but connections to loopback, private and link-local addresses are
// refused. Allowed hosts may resolve anywhere.
type AudioSource struct {
	storagePath  string
	objects      *minio.Client
	allowedHosts map[string]bool
	httpClient   *http.Client
}

func NewAudioSource(storagePath string, objects *minio.Client, allowedHosts ...string) *AudioSource {
	s := &AudioSource{
		storagePath:  storagePath,
		objects:      objects,
		allowedHosts: map[string]bool{},
	}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.allowedHosts[h] = true
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = s.dial
	s.httpClient = &http.Client{
		Timeout:   60 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return s.checkHost(req.URL)
		},
	}
	return s
}

func (s *AudioSource) checkHost(u *url.URL) error {
	if len(s.allowedHosts) == 0 || s.allowedHosts[strings.ToLower(u.Hostname())] {
		return nil
	}
	return &ValidationError{Fields: map[string]string{"audio_url": "Audio host " + u.Hostname() + " is not allowed"}}
}

// dial connects to addr, refusing non-public addresses unless the host was
// explicitly allowed. The check runs on the resolved IP.
func (s *AudioSource) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if !s.allowedHosts[strings.ToLower(host)] {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			ipStr, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(ipStr); ip == nil || !isPublicIP(ip) {
				return fmt.Errorf("%s: %w", ipStr, errBlockedAddress)
			}
			return nil
		}
	}
	return dialer.DialContext(ctx, network, addr)
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified())
}

func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

func (s *AudioSource) Open(ctx context.Context, ref string) (*Audio, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &ValidationError{Fields: map[string]string{"audio_url": "Audio reference is required"}}
	}

	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "s3":
			return s.openObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
		case "http", "https":
			return s.openHTTP(ctx, u)
		}
	}
	return s.openLocal(ref)
}

func (s *AudioSource) openObject(ctx context.Context, bucket, key string) (*Audio, error) {
	if s.objects == nil {
		return nil, &ValidationError{Fields: map[string]string{"audio_url": "Object storage is not configured"}}
	}
	if bucket == "" || key == "" {
		return nil, &ValidationError{Fields: map[string]string{"audio_url": "Object reference must be s3://bucket/key"}}
	}

	obj, err := s.objects.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get audio object: %w", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, &NotFoundError{Message: fmt.Sprintf("Audio object %s/%s not found", bucket, key)}
		}
		return nil, fmt.Errorf("failed to stat audio object: %w", err)
	}
	if info.Size > maxAudioBytes {
		return nil, audioTooLarge()
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio object: %w", err)
	}

	mimeType := detectAudioMIME(key)
	if info.ContentType != "" && strings.HasPrefix(info.ContentType, "audio/") {
		mimeType = info.ContentType
	}
	return &Audio{Data: data, MIMEType: mimeType, FileName: path.Base(key)}, nil
}

func (s *AudioSource) openHTTP(ctx context.Context, u *url.URL) (*Audio, error) {
	if err := s.checkHost(u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build audio request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			return nil, validation
		}
		if errors.Is(err, errBlockedAddress) {
			return nil, &ValidationError{Fields: map[string]string{"audio_url": "Audio host resolves to a non-public address"}}
		}
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Message: "Audio not found at " + u.String()}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &ValidationError{Fields: map[string]string{"audio_url": fmt.Sprintf("Audio download rejected with status %d", resp.StatusCode)}}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("audio download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	if len(data) > maxAudioBytes {
		return nil, audioTooLarge()
	}

	mimeType := detectAudioMIME(u.Path)
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "audio/") {
		mimeType = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return &Audio{Data: data, MIMEType: mimeType, FileName: path.Base(u.Path)}, nil
}

func (s *AudioSource) openLocal(ref string) (*Audio, error) {
	full, err := s.resolveLocal(ref)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Message: "Audio file not found: " + ref}
		}
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}
	if info.Size() > maxAudioBytes {
		return nil, audioTooLarge()
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	return &Audio{Data: data, MIMEType: detectAudioMIME(full), FileName: filepath.Base(full)}, nil
}

// resolveLocal maps ref into the storage directory and rejects anything
// that would escape it.
func (s *AudioSource) resolveLocal(ref string) (string, error) {
	root, err := filepath.Abs(s.storagePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage path: %w", err)
	}

	full := filepath.Join(root, filepath.Clean("/"+filepath.FromSlash(ref)))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", &ValidationError{Fields: map[string]string{"audio_url": "Audio path is outside the storage directory"}}
	}
	return full, nil
}

func detectAudioMIME(name string) string {
	if mimeType, ok := audioMIMETypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mimeType
	}
	return "audio/mpeg"
}

func audioTooLarge() error {
	return &ValidationError{Fields: map[string]string{"audio_url": fmt.Sprintf("Audio exceeds %d MB", maxAudioBytes>>20)}}
}
