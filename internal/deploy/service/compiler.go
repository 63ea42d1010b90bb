package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	"github.com/allisson/topogate/internal/errors"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

var aliasRefRegex = regexp.MustCompile(`\$\{ALIAS=([^}]+)\}`)

// Artifacts holds compiled artifact contents keyed by file name under WEB-INF.
// The manifest is added by Seal.
type Artifacts map[string][]byte

// Compiler resolves alias references and renders a topology's artifacts.
type Compiler struct {
	aliases AliasResolver
	crypto  Crypto
}

// NewCompiler creates a Compiler.
func NewCompiler(aliases AliasResolver, crypto Crypto) *Compiler {
	return &Compiler{aliases: aliases, crypto: crypto}
}

// Compile renders topology.json, providers.json and routes.json. Provider parameters
// that referenced aliases are stored encrypted; any unresolvable reference fails
// the whole compilation.
func (c *Compiler) Compile(ctx context.Context, topology *topologyDomain.Topology) (Artifacts, error) {
	providers := make([]deployDomain.Provider, 0, len(topology.Providers))
	for _, p := range topology.EnabledProviders() {
		compiled := deployDomain.Provider{Role: p.Role, Name: p.Name, Params: []deployDomain.Param{}}
		for _, param := range p.Params {
			value, err := c.compileParam(ctx, topology.Name, param.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "provider %s param %s", p.Role, param.Name)
			}
			compiled.Params = append(compiled.Params, deployDomain.Param{Name: param.Name, Value: value})
		}
		providers = append(providers, compiled)
	}

	routes := make([]deployDomain.Route, 0, len(topology.Services))
	for _, s := range topology.Services {
		if s.URL == "" {
			continue
		}
		routes = append(routes, deployDomain.Route{Role: s.Role, Path: s.Path(), URL: s.URL})
	}

	descriptor := struct {
		Name      string                        `json:"name"`
		Checksum  string                        `json:"checksum"`
		Providers []topologyDomain.Provider     `json:"providers"`
		Services  []topologyDomain.ServiceRoute `json:"services"`
	}{
		Name:      topology.Name,
		Checksum:  topology.Checksum,
		Providers: topology.Providers,
		Services:  topology.Services,
	}

	artifacts := Artifacts{}
	for file, v := range map[string]any{
		deployDomain.TopologyFile:  descriptor,
		deployDomain.ProvidersFile: providers,
		deployDomain.RoutesFile:    routes,
	} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCompile, "encode %s: %v", file, err)
		}
		artifacts[file] = data
	}
	return artifacts, nil
}

// Seal adds a signed manifest covering every artifact.
func (c *Compiler) Seal(ctx context.Context, artifacts Artifacts, manifest *deployDomain.Manifest) error {
	manifest.Artifacts = make(map[string]string, len(artifacts))
	for file, data := range artifacts {
		manifest.Artifacts[file] = checksum(data)
	}
	manifest.Signature = ""

	unsigned, err := json.Marshal(manifest)
	if err != nil {
		return errors.Wrapf(errors.ErrCompile, "encode manifest: %v", err)
	}
	signature, err := c.crypto.Sign(ctx, deployDomain.KeyAlias, unsigned)
	if err != nil {
		return errors.Wrapf(errors.ErrCompile, "sign manifest: %v", err)
	}
	manifest.Signature = base64.StdEncoding.EncodeToString(signature)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrCompile, "encode manifest: %v", err)
	}
	artifacts[deployDomain.ManifestFile] = data
	return nil
}

func (c *Compiler) compileParam(ctx context.Context, topology, value string) (string, error) {
	matches := aliasRefRegex.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var resolved []byte
	last := 0
	for _, m := range matches {
		name := value[m[2]:m[3]]
		aliasValue, err := c.aliases.GetTopologyAliasValue(ctx, topology, name)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return "", errors.Wrapf(deployDomain.ErrUnresolvedAlias, "%s", name)
			}
			return "", errors.Wrapf(errors.ErrCompile, "resolve alias %s: %v", name, err)
		}
		resolved = append(resolved, value[last:m[0]]...)
		resolved = append(resolved, aliasValue...)
		last = m[1]
	}
	resolved = append(resolved, value[last:]...)

	ciphertext, err := c.crypto.Encrypt(ctx, deployDomain.KeyAlias, resolved)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCompile, "encrypt parameter: %v", err)
	}
	return deployDomain.EncryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}
