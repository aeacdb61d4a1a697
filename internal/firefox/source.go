package firefox

import (
	"context"
	"fmt"

	"github.com/lotas/keeptabs/internal/mirror"
	"github.com/lotas/keeptabs/internal/types"
)

// Source reads a profile's session file on every query. It cannot open
// or close tabs; Firefox only writes the session store, it doesn't
// watch it.
type Source struct {
	profileDir string
}

// NewSource reads tabs from the given profile directory. With an empty
// dir the default profile is discovered.
func NewSource(profileDir string) (*Source, error) {
	if profileDir == "" {
		profiles, err := DiscoverProfiles()
		if err != nil {
			return nil, err
		}
		if len(profiles) == 0 {
			return nil, fmt.Errorf("no Firefox profile with a session file found")
		}
		profileDir = profiles[0].Path
		for _, p := range profiles {
			if p.IsDefault {
				profileDir = p.Path
				break
			}
		}
	}
	return &Source{profileDir: profileDir}, nil
}

func (s *Source) Name() string { return "firefox" }

func (s *Source) QueryTabs(ctx context.Context) ([]types.Tab, error) {
	session, err := ReadSessionFile(s.profileDir)
	if err != nil {
		return nil, err
	}
	return session.Tabs, nil
}

func (s *Source) QueryGroups(ctx context.Context) ([]types.TabGroup, error) {
	session, err := ReadSessionFile(s.profileDir)
	if err != nil {
		return nil, err
	}
	return session.Groups, nil
}

func (s *Source) OpenTab(ctx context.Context, url string, pinned bool) error {
	return mirror.ErrReadOnly
}

func (s *Source) CloseTab(ctx context.Context, id string) error {
	return mirror.ErrReadOnly
}
