package studio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// MaxMediaBytes caps a single staged attachment.
const MaxMediaBytes = 20 << 20

var stagedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// StagingCapacity returns how many attachments a mode accepts.
func StagingCapacity(mode Mode, sub VideoSubMode) int {
	switch mode {
	case ModeAuto, ModeText, ModeImage:
		return 4
	case ModeVideo:
		switch sub {
		case FramesToVideo:
			return 2
		case ReferencesToVideo:
			return 3
		}
	}
	return 0
}

func stagingLabel(mode Mode, sub VideoSubMode, index int) string {
	if mode == ModeVideo {
		switch sub {
		case FramesToVideo:
			if index == 0 {
				return "Start frame"
			}
			return "End frame"
		case ReferencesToVideo:
			return fmt.Sprintf("Reference %d", index+1)
		}
	}
	return fmt.Sprintf("Image %d", index+1)
}

// MediaStager accumulates attachments in the order they were added.
type MediaStager struct {
	mu    sync.Mutex
	items []UploadedMedia
}

func NewMediaStager() *MediaStager {
	return &MediaStager{}
}

// ValidateMedia checks type and size without staging anything.
func ValidateMedia(mimeType string, size int) error {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if !stagedMimeTypes[mt] {
		return fmt.Errorf("%w: %q (png, jpeg, webp or gif only)", ErrUnsupportedMedia, mimeType)
	}
	if size == 0 {
		return fmt.Errorf("%w: attachment is empty", ErrUnsupportedMedia)
	}
	if size > MaxMediaBytes {
		return fmt.Errorf("%w: %s exceeds the %s limit", ErrMediaTooLarge,
			humanize.IBytes(uint64(size)), humanize.IBytes(MaxMediaBytes))
	}
	return nil
}

// add stages media under the given capacity and labels it by position.
func (s *MediaStager) add(m UploadedMedia, mode Mode, sub VideoSubMode) (UploadedMedia, error) {
	if err := ValidateMedia(m.MimeType, len(m.RawData)); err != nil {
		return UploadedMedia{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := StagingCapacity(mode, sub)
	if len(s.items) >= limit {
		return UploadedMedia{}, fmt.Errorf("%w (%d of %d used)", ErrStagingFull, len(s.items), limit)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Label = stagingLabel(mode, sub, len(s.items))
	s.items = append(s.items, m)
	return m, nil
}

// Remove drops one attachment and relabels the rest.
func (s *MediaStager) Remove(id string, mode Mode, sub VideoSubMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.items {
		if m.ID != id {
			continue
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		for j := range s.items {
			s.items[j].Label = stagingLabel(mode, sub, j)
		}
		return true
	}
	return false
}

func (s *MediaStager) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// Items returns a copy in attachment order.
func (s *MediaStager) Items() []UploadedMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadedMedia(nil), s.items...)
}

func (s *MediaStager) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
