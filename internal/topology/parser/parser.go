// Package parser reads topology descriptors in XML or YAML form and validates them.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	validation "github.com/jellydator/validation"
	"gopkg.in/yaml.v3"

	"github.com/allisson/topogate/internal/errors"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
	customValidation "github.com/allisson/topogate/internal/validation"
)

// Format identifies a descriptor syntax.
type Format string

const (
	FormatXML  Format = "xml"
	FormatYAML Format = "yaml"
)

// Descriptor splits a file name into topology name and format. Only <name>.xml,
// <name>.yaml and <name>.yml are descriptors; hidden files and anything else,
// including in-progress writes such as <name>.xml.<tmp>, are not.
func Descriptor(filename string) (name string, format Format, ok bool) {
	base := filepath.Base(filename)
	if strings.HasPrefix(base, ".") {
		return "", "", false
	}

	ext := filepath.Ext(base)
	switch strings.ToLower(ext) {
	case ".xml":
		format = FormatXML
	case ".yaml", ".yml":
		format = FormatYAML
	default:
		return "", "", false
	}

	name = strings.TrimSuffix(base, ext)
	if name == "" {
		return "", "", false
	}
	return name, format, true
}

// ParseFile reads and parses the descriptor at path. The topology carries the
// file's modification time and content checksum.
func ParseFile(path string) (*topologyDomain.Topology, error) {
	name, format, ok := Descriptor(path)
	if !ok {
		return nil, errors.Wrapf(errors.ErrParse, "%s is not a topology descriptor", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrIO, "stat %s: %v", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrIO, "read %s: %v", path, err)
	}

	topology, err := Parse(name, format, data)
	if err != nil {
		return nil, err
	}
	topology.Timestamp = info.ModTime()
	topology.Source = path
	return topology, nil
}

// Parse decodes and validates descriptor content.
func Parse(name string, format Format, data []byte) (*topologyDomain.Topology, error) {
	var (
		topology *topologyDomain.Topology
		err      error
	)

	switch format {
	case FormatXML:
		topology, err = parseXML(data)
	case FormatYAML:
		topology, err = parseYAML(data)
	default:
		return nil, errors.Wrapf(errors.ErrParse, "unknown descriptor format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "topology %s: %v", name, err)
	}

	topology.Name = name
	topology.Checksum = Checksum(data)

	if err := Validate(topology); err != nil {
		return nil, errors.Wrapf(errors.ErrParse, "topology %s: %v", name, err)
	}
	return topology, nil
}

// Checksum returns the hex sha256 of descriptor content.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks a parsed topology.
func Validate(t *topologyDomain.Topology) error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required, customValidation.TopologyName),
	)
	if err != nil {
		return err
	}

	for i, p := range t.Providers {
		err := validation.ValidateStruct(&p,
			validation.Field(&p.Role, validation.Required, customValidation.NotBlank),
		)
		if err != nil {
			return errors.Wrapf(err, "provider %d", i)
		}
	}

	for i, s := range t.Services {
		err := validation.ValidateStruct(&s,
			validation.Field(&s.Role, validation.Required, customValidation.NotBlank),
			validation.Field(&s.URL, customValidation.AbsoluteURL),
		)
		if err != nil {
			return errors.Wrapf(err, "service %d", i)
		}
	}
	return nil
}

type xmlParam struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

type xmlProvider struct {
	Role    string     `xml:"role"`
	Name    string     `xml:"name"`
	Enabled *string    `xml:"enabled"`
	Params  []xmlParam `xml:"param"`
}

type xmlService struct {
	Role   string     `xml:"role"`
	URLs   []string   `xml:"url"`
	Params []xmlParam `xml:"param"`
}

type xmlTopology struct {
	XMLName xml.Name `xml:"topology"`
	Gateway struct {
		Providers []xmlProvider `xml:"provider"`
	} `xml:"gateway"`
	Services []xmlService `xml:"service"`
}

func parseXML(data []byte) (*topologyDomain.Topology, error) {
	var doc xmlTopology
	decoder := xml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}

	topology := &topologyDomain.Topology{}
	for _, p := range doc.Gateway.Providers {
		if isBlankProvider(p) {
			continue
		}
		enabled, err := parseEnabled(p.Enabled)
		if err != nil {
			return nil, err
		}
		topology.Providers = append(topology.Providers, topologyDomain.Provider{
			Role:    strings.TrimSpace(p.Role),
			Name:    strings.TrimSpace(p.Name),
			Enabled: enabled,
			Params:  convertParams(p.Params),
		})
	}

	for _, s := range doc.Services {
		route := topologyDomain.ServiceRoute{
			Role:   strings.TrimSpace(s.Role),
			Params: convertParams(s.Params),
		}
		if len(s.URLs) > 0 {
			route.URL = strings.TrimSpace(s.URLs[0])
		}
		topology.Services = append(topology.Services, route)
	}
	return topology, nil
}

type yamlProvider struct {
	Role    string                 `yaml:"role"`
	Name    string                 `yaml:"name"`
	Enabled *bool                  `yaml:"enabled"`
	Params  []topologyDomain.Param `yaml:"params"`
}

type yamlTopology struct {
	Providers []yamlProvider                `yaml:"providers"`
	Services  []topologyDomain.ServiceRoute `yaml:"services"`
}

func parseYAML(data []byte) (*topologyDomain.Topology, error) {
	var doc yamlTopology
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}

	topology := &topologyDomain.Topology{Services: doc.Services}
	for _, p := range doc.Providers {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		topology.Providers = append(topology.Providers, topologyDomain.Provider{
			Role:    strings.TrimSpace(p.Role),
			Name:    strings.TrimSpace(p.Name),
			Enabled: enabled,
			Params:  p.Params,
		})
	}
	return topology, nil
}

// isBlankProvider reports an empty <provider/> element, which is tolerated and skipped.
func isBlankProvider(p xmlProvider) bool {
	return strings.TrimSpace(p.Role) == "" && strings.TrimSpace(p.Name) == "" &&
		p.Enabled == nil && len(p.Params) == 0
}

// parseEnabled treats a missing <enabled> element as true.
func parseEnabled(v *string) (bool, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return true, nil
	}
	return strconv.ParseBool(strings.TrimSpace(*v))
}

func convertParams(params []xmlParam) []topologyDomain.Param {
	if len(params) == 0 {
		return nil
	}
	out := make([]topologyDomain.Param, 0, len(params))
	for _, p := range params {
		out = append(out, topologyDomain.Param{
			Name:  strings.TrimSpace(p.Name),
			Value: strings.TrimSpace(p.Value),
		})
	}
	return out
}
