package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mbecker/reel/internal/domain"
)

// storyWrapper wraps the Story variants for JSON serialization
type storyWrapper struct {
	Type   string              `json:"type"`
	Text   *domain.TextStory   `json:"text,omitempty"`
	Image  *domain.ImageStory  `json:"image,omitempty"`
	Video  *domain.VideoStory  `json:"video,omitempty"`
	Custom *domain.CustomStory `json:"custom,omitempty"`
}

// groupDoc is the serialized form of one story group
type groupDoc struct {
	ID      string         `json:"id"`
	Author  domain.Author  `json:"author"`
	Stories []storyWrapper `json:"stories"`
}

func wrapStory(s domain.Story) storyWrapper {
	switch v := s.(type) {
	case domain.TextStory:
		return storyWrapper{Type: "text", Text: &v}
	case domain.ImageStory:
		return storyWrapper{Type: "image", Image: &v}
	case domain.VideoStory:
		return storyWrapper{Type: "video", Video: &v}
	case domain.CustomStory:
		return storyWrapper{Type: "custom", Custom: &v}
	default:
		return storyWrapper{Type: "unknown"}
	}
}

func (w storyWrapper) unwrap() (domain.Story, error) {
	switch {
	case w.Type == "text" && w.Text != nil:
		return *w.Text, nil
	case w.Type == "image" && w.Image != nil:
		return *w.Image, nil
	case w.Type == "video" && w.Video != nil:
		return *w.Video, nil
	case w.Type == "custom" && w.Custom != nil:
		return *w.Custom, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStoryType, w.Type)
	}
}

// DecodeGroups reads a JSON feed document.
func DecodeGroups(r io.Reader) ([]domain.StoryGroup, error) {
	var docs []groupDoc
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	groups := make([]domain.StoryGroup, 0, len(docs))
	for _, doc := range docs {
		stories := make([]domain.Story, 0, len(doc.Stories))
		for _, w := range doc.Stories {
			story, err := w.unwrap()
			if err != nil {
				return nil, err
			}
			stories = append(stories, story)
		}
		groups = append(groups, domain.StoryGroup{ID: doc.ID, Author: doc.Author, Stories: stories})
	}
	return groups, nil
}

// EncodeGroups writes groups as a JSON feed document.
func EncodeGroups(w io.Writer, groups []domain.StoryGroup) error {
	docs := make([]groupDoc, 0, len(groups))
	for _, g := range groups {
		wrapped := make([]storyWrapper, 0, len(g.Stories))
		for _, s := range g.Stories {
			wrapped = append(wrapped, wrapStory(s))
		}
		docs = append(docs, groupDoc{ID: g.ID, Author: g.Author, Stories: wrapped})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

// LoadFile reads a feed document from disk.
func LoadFile(path string) ([]domain.StoryGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed file: %w", err)
	}
	defer f.Close()
	return DecodeGroups(f)
}
