package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"travelchat/internal/model"
	"travelchat/internal/storage"
)

const (
	maxPrefixLength = 184
	remoteFolder    = "chat-images"
	signedURLTTL    = time.Hour
	uploadPurpose   = "vertex-ai-chat"
)

// StoreOutcome is the row of the storage decision table a write landed on.
type StoreOutcome int

const (
	OutcomeFailed StoreOutcome = iota
	OutcomeRemoteSigned
	OutcomeRemoteUnsigned
	OutcomeLocalOnly
)

func (o StoreOutcome) String() string {
	switch o {
	case OutcomeRemoteSigned:
		return "remote_signed"
	case OutcomeRemoteUnsigned:
		return "remote_unsigned"
	case OutcomeLocalOnly:
		return "local_only"
	default:
		return "failed"
	}
}

// resolveOutcome maps (remote write ok, signed url ok, local write ok) to an outcome.
func resolveOutcome(remoteOK, urlOK, localOK bool) StoreOutcome {
	switch {
	case remoteOK && urlOK:
		return OutcomeRemoteSigned
	case remoteOK:
		return OutcomeRemoteUnsigned
	case localOK:
		return OutcomeLocalOnly
	default:
		return OutcomeFailed
	}
}

// StoreRequest describes one transcoded image to persist.
type StoreRequest struct {
	Data             []byte
	Format           string
	ContentType      string
	OriginalFilename string
	Prefix           string
	Dir              string
}

// StoredImage is where an image ended up.
type StoredImage struct {
	Filename string
	// Path is what the client should display: a signed URL, /uploads/<name> or empty.
	Path      string
	RemoteRef string
	LocalRef  string
	Outcome   StoreOutcome
}

// UseRemotePreview reports whether Path is a signed remote URL.
func (s *StoredImage) UseRemotePreview() bool {
	return s.Outcome == OutcomeRemoteSigned
}

// StorageService writes uploads to the local directory and the configured remote bucket.
type StorageService struct {
	local  *storage.LocalStore
	remote storage.ObjectStore
	logger *log.Logger
	now    func() time.Time
}

// NewStorageService wires the local store with an optional remote store (nil disables remote writes).
func NewStorageService(local *storage.LocalStore, remote storage.ObjectStore, logger *log.Logger) *StorageService {
	return &StorageService{
		local:  local,
		remote: remote,
		logger: logger.WithPrefix("Storage"),
		now:    time.Now,
	}
}

// HasRemote reports whether a remote bucket is configured.
func (s *StorageService) HasRemote() bool {
	return s.remote != nil
}

// GenerateFilename returns <prefix><unix ms>_<32 hex>.<ext>. The prefix is cut to at most
// 184 bytes on a rune boundary so the result always fits in 255.
func GenerateFilename(prefix, ext string, now time.Time) string {
	if len(prefix) > maxPrefixLength {
		cut := maxPrefixLength
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d_%s.%s", prefix, now.UnixMilli(), id, ext)
}

func remoteKey(contentType string, now time.Time) string {
	ext := "jpg"
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		ext = sub
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s/%d-%s.%s", remoteFolder, now.UnixMilli(), suffix, ext)
}

// Store persists req locally and remotely. It fails only when both writes fail.
func (s *StorageService) Store(ctx context.Context, req StoreRequest) (*StoredImage, error) {
	now := s.now()
	name := GenerateFilename(req.Prefix, req.Format, now)

	local := s.local
	if req.Dir != "" && req.Dir != local.Dir() {
		local = storage.NewLocalStore(req.Dir)
	}

	_, localErr := local.Save(name, req.Data)
	if localErr != nil {
		s.logger.Warn("local write failed", "filename", name, "err", localErr)
	}

	var (
		remoteRef storage.Ref
		remoteErr = model.ErrStoreUnavailable
		signed    string
		urlErr    error
	)
	if s.remote != nil {
		key := remoteKey(req.ContentType, now)
		remoteRef, remoteErr = s.remote.Put(ctx, key, req.Data, req.ContentType, map[string]string{
			"purpose":          uploadPurpose,
			"uploadedAt":       now.UTC().Format(time.RFC3339),
			"originalFilename": req.OriginalFilename,
		})
		if remoteErr != nil {
			s.logger.Warn("remote write failed", "key", key, "err", remoteErr)
		} else {
			signed, urlErr = s.remote.SignedURL(ctx, remoteRef.Key, signedURLTTL)
			if urlErr != nil {
				s.logger.Warn("signed url failed", "ref", remoteRef.String(), "err", urlErr)
			}
		}
	}

	outcome := resolveOutcome(remoteErr == nil, remoteErr == nil && urlErr == nil, localErr == nil)
	out := &StoredImage{Filename: name, Outcome: outcome}
	if remoteErr == nil {
		out.RemoteRef = remoteRef.String()
	}

	switch outcome {
	case OutcomeRemoteSigned:
		out.Path = signed
		if localErr == nil {
			if err := local.Delete(name); err != nil {
				s.logger.Warn("local cleanup failed", "filename", name, "err", err)
			}
		}
	case OutcomeRemoteUnsigned, OutcomeLocalOnly:
		if localErr == nil {
			out.LocalRef = storage.LocalRef(name).String()
			out.Path = out.LocalRef
		}
	case OutcomeFailed:
		return nil, errors.Join(localErr, remoteErr)
	}

	s.logger.Info("stored", "filename", name, "outcome", outcome, "remote", out.RemoteRef)
	return out, nil
}

// Delete removes a stored object by ref.
func (s *StorageService) Delete(ctx context.Context, raw string) error {
	ref, err := storage.ParseRef(raw)
	if err != nil {
		return err
	}
	if ref.IsLocal() {
		return s.local.Delete(ref.Key)
	}

	remote, err := s.remoteFor(ref)
	if err != nil {
		return err
	}
	return remote.Delete(ctx, ref.Key)
}

// SignedURL returns a displayable URL for ref. Local refs are already served paths
// and come back unchanged.
func (s *StorageService) SignedURL(ctx context.Context, raw string) (string, error) {
	ref, err := storage.ParseRef(raw)
	if err != nil {
		return "", err
	}
	if ref.IsLocal() {
		if !s.local.Exists(ref.Key) {
			return "", fmt.Errorf("%w: %s not found", model.ErrInvalidReference, raw)
		}
		return ref.String(), nil
	}

	remote, err := s.remoteFor(ref)
	if err != nil {
		return "", err
	}
	return remote.SignedURL(ctx, ref.Key, signedURLTTL)
}

func (s *StorageService) remoteFor(ref storage.Ref) (storage.ObjectStore, error) {
	if s.remote == nil {
		return nil, model.ErrStoreUnavailable
	}
	if ref.Scheme != s.remote.Scheme() || ref.Bucket != s.remote.Bucket() {
		return nil, fmt.Errorf("%w: %s is not in %s://%s", model.ErrInvalidReference, ref, s.remote.Scheme(), s.remote.Bucket())
	}
	return s.remote, nil
}
