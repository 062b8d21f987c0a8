package services

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioSource_Local(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sessions"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions", "take1.WAV"), []byte("RIFF"), 0o644))

	src := NewAudioSource(dir, nil)

	audio, err := src.Open(context.Background(), "sessions/take1.WAV")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), audio.Data)
	assert.Equal(t, "audio/wav", audio.MIMEType)
	assert.Equal(t, "take1.WAV", audio.FileName)

	_, err = src.Open(context.Background(), "sessions/missing.mp3")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAudioSource_LocalStaysInsideStorage(t *testing.T) {
	root := t.TempDir()
	src := NewAudioSource(root, nil)

	for _, ref := range []string{"../../etc/passwd", "/etc/passwd", "a/../../b.wav"} {
		full, err := src.resolveLocal(ref)
		require.NoError(t, err, ref)
		rel, err := filepath.Rel(root, full)
		require.NoError(t, err)
		assert.NotContains(t, rel, "..", ref)
	}

	_, err := src.resolveLocal("..")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestAudioSource_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clip.ogg":
			w.Header().Set("Content-Type", "audio/ogg; codecs=opus")
			w.Write([]byte("OggS"))
		case "/broken.mp3":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	src := NewAudioSource(t.TempDir(), nil, "127.0.0.1")

	audio, err := src.Open(context.Background(), server.URL+"/clip.ogg")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", audio.MIMEType)
	assert.Equal(t, "clip.ogg", audio.FileName)

	_, err = src.Open(context.Background(), server.URL+"/gone.mp3")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = src.Open(context.Background(), server.URL+"/broken.mp3")
	require.Error(t, err)
	assert.False(t, isPermanent(err))
}

func TestAudioSource_HTTPRefusesInternalAddresses(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("OggS"))
	}))
	defer server.Close()

	_, err := NewAudioSource(t.TempDir(), nil).Open(context.Background(), server.URL+"/clip.ogg")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.True(t, isPermanent(err))
	assert.Zero(t, hits)
}

func TestAudioSource_HTTPAllowedHosts(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("OggS"))
	}))
	defer server.Close()

	src := NewAudioSource(t.TempDir(), nil, " Audio.Example.com ")

	_, err := src.Open(context.Background(), server.URL+"/clip.ogg")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Fields["audio_url"], "not allowed")
	assert.Zero(t, hits)

	u, err := url.Parse("https://AUDIO.example.com/a.mp3")
	require.NoError(t, err)
	assert.NoError(t, src.checkHost(u))
}

func TestIsPublicIP(t *testing.T) {
	tests := []struct {
		ip     string
		public bool
	}{
		{"8.8.8.8", true},
		{"2001:4860:4860::8888", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.public, isPublicIP(net.ParseIP(tc.ip)), tc.ip)
	}
}

func TestAudioSource_ObjectStorageNotConfigured(t *testing.T) {
	_, err := NewAudioSource(t.TempDir(), nil).Open(context.Background(), "s3://recordings/u1/take.m4a")

	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestDetectAudioMIME(t *testing.T) {
	assert.Equal(t, "audio/mp4", detectAudioMIME("a.M4A"))
	assert.Equal(t, "audio/webm", detectAudioMIME("x/y.webm"))
	assert.Equal(t, "audio/mpeg", detectAudioMIME("noext"))
}
