package scene

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmptySchema is returned when saving a schema without scenes.
var ErrEmptySchema = errors.New("scene: schema has no scenes")

// ParameterType is the kind of value a remote parameter carries.
type ParameterType string

// Parameter types.
const (
	ParameterImage ParameterType = "image"
	ParameterFloat ParameterType = "float"
)

// DMXAuto lets the host assign a parameter's DMX channel.
const DMXAuto = -1

// DMX value types a parameter is carried as.
const (
	DMX8           = 0
	DMX16BigEndian = 2
)

// InputImageKey is the key of every scene's input image parameter.
const InputImageKey = "image_param1"

// Parameter is one remotely controllable value of a scene.
type Parameter struct {
	Group       string        `yaml:"group"`
	Key         string        `yaml:"key"`
	DisplayName string        `yaml:"display_name"`
	Type        ParameterType `yaml:"type"`
	DMXOffset   int           `yaml:"dmx_offset"`
	DMXType     int           `yaml:"dmx_type"`
}

// RemoteScene describes one scene to the host.
type RemoteScene struct {
	Name       string      `yaml:"name"`
	Hash       uint64      `yaml:"hash"`
	Parameters []Parameter `yaml:"parameters"`
}

// Schema is the full set of scenes published to the host. It owns all of
// its data; there is nothing to free.
type Schema struct {
	Engine string        `yaml:"engine"`
	Scenes []RemoteScene `yaml:"scenes"`
}

// NewSchema builds the schema for the given slots, one input image
// parameter per scene.
func NewSchema(engine string, slots []Slot) *Schema {
	s := &Schema{Engine: engine, Scenes: make([]RemoteScene, 0, len(slots))}
	for _, slot := range slots {
		s.Scenes = append(s.Scenes, RemoteScene{
			Name: slot.Name,
			Hash: Hash(slot.Name),
			Parameters: []Parameter{{
				Group:       "Inputs",
				Key:         InputImageKey,
				DisplayName: "Texture",
				Type:        ParameterImage,
				DMXOffset:   DMXAuto,
				DMXType:     DMX16BigEndian,
			}},
		})
	}
	return s
}

// Hash returns the stable identifier of a scene name.
func Hash(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// Scene returns the remote description of scene i.
func (s *Schema) Scene(i int) (RemoteScene, bool) {
	if i < 0 || i >= len(s.Scenes) {
		return RemoteScene{}, false
	}
	return s.Scenes[i], true
}

// Marshal encodes the schema as YAML.
func (s *Schema) Marshal() ([]byte, error) {
	if len(s.Scenes) == 0 {
		return nil, ErrEmptySchema
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("scene: encode schema: %w", err)
	}
	return data, nil
}

// Save writes the schema to path.
func (s *Schema) Save(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // schema is not secret
		return fmt.Errorf("scene: save schema: %w", err)
	}
	return nil
}

// LoadSchema reads a schema written by Save.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-chosen path
	if err != nil {
		return nil, fmt.Errorf("scene: load schema: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scene: decode schema: %w", err)
	}
	return &s, nil
}
