package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// DescriptorName is the file name of the dataset descriptor.
const DescriptorName = "data.yaml"

// Descriptor is the dataset description read by the detector trainer.
type Descriptor struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train,omitempty"`
	Val   string         `yaml:"val,omitempty"`
	Test  string         `yaml:"test,omitempty"`
	NC    int            `yaml:"nc"`
	Names map[int]string `yaml:"names"`
}

// NewDescriptor describes a dataset below root containing the given splits. Image
// directories are relative to root. The class count is the larger of len(names)
// and the highest named class id plus one.
func NewDescriptor(root string, splits []string, names map[int]string) Descriptor {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	d := Descriptor{Path: abs, Names: names}
	for _, s := range splits {
		dir := filepath.ToSlash(filepath.Join("images", s))
		switch s {
		case "train":
			d.Train = dir
		case "val":
			d.Val = dir
		case "test":
			d.Test = dir
		}
	}

	d.NC = len(names)
	for id := range names {
		if id+1 > d.NC {
			d.NC = id + 1
		}
	}
	if d.Names == nil {
		d.Names = map[int]string{}
	}
	return d
}

// WriteDescriptor writes d to root/data.yaml.
func WriteDescriptor(root string, d Descriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode dataset descriptor: %w", err)
	}
	path := filepath.Join(root, DescriptorName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadClassNames reads the class names of a dataset descriptor. The names entry may
// be a mapping from class id to name or a list indexed by class id.
func LoadClassNames(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class names: %w", err)
	}

	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	names := make(map[int]string)
	switch doc.Names.Kind {
	case yaml.MappingNode:
		if err := doc.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("invalid names mapping in %s: %w", path, err)
		}
	case yaml.SequenceNode:
		var list []string
		if err := doc.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("invalid names list in %s: %w", path, err)
		}
		for i, n := range list {
			names[i] = n
		}
	case 0:
		return nil, fmt.Errorf("%s has no names entry", path)
	default:
		return nil, fmt.Errorf("unsupported names entry in %s", path)
	}

	return names, nil
}

// ClassIDs returns the ids of names in ascending order.
func ClassIDs(names map[int]string) []int {
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
