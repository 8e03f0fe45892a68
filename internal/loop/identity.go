package loop

import (
	"encoding/json"
	"fmt"

	"github.com/stellarlinkco/mindloop/internal/filestore"
)

const IdentityDoc = "identity.json"

type Law struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Identity is the agent's self description, shown to every prompt.
type Identity struct {
	Version string         `json:"version"`
	Laws    []Law          `json:"laws"`
	Meta    map[string]any `json:"meta"`
}

func DefaultIdentity() Identity {
	return Identity{Version: "1.0", Laws: []Law{}, Meta: map[string]any{}}
}

func LoadIdentity(files *filestore.Store) (Identity, error) {
	id := DefaultIdentity()
	if _, err := files.Load(IdentityDoc, &id); err != nil {
		return DefaultIdentity(), fmt.Errorf("load identity: %w", err)
	}
	return id, nil
}

// SaveIdentityIfMissing writes the default identity on first start.
func SaveIdentityIfMissing(files *filestore.Store) error {
	var existing Identity
	found, err := files.Load(IdentityDoc, &existing)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return files.Save(IdentityDoc, DefaultIdentity())
}

func (id Identity) String() string {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return "ERROR: Identity is not available."
	}
	return string(data)
}
