// Package manifest extracts service names, host-port mappings and image
// references from a compose manifest.
//
// Parsing is best effort: the registry must list every manifest directory
// even when an individual manifest is malformed, so Parse never returns an
// error; it degrades to empty collections instead.
package manifest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	compose "github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// Names are the manifest filenames recognized under an environment
// directory, in lookup order.
var Names = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// Locate returns the manifest path inside dir, if any.
func Locate(dir string) (string, bool) {
	for _, name := range Names {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// IsManifestName reports whether name is a recognized manifest filename.
func IsManifestName(name string) bool {
	for _, n := range Names {
		if name == n {
			return true
		}
	}
	return false
}

// Result is what a manifest yields. All fields may be empty.
type Result struct {
	// Services in declaration order.
	Services []string
	// Ports maps service name to its first recoverable host port.
	Ports map[string]string
	// Images are the declared image references, deduplicated, in
	// declaration order.
	Images []string
}

// Parse reads and parses the manifest at path. Missing file, malformed
// YAML and unsupported schemas all produce an empty Result.
func Parse(ctx context.Context, path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Ports: map[string]string{}}
	}
	return ParseBytes(ctx, data)
}

// ParseBytes parses raw manifest content. The compose loader is tried
// first; when it rejects the document the raw YAML tree is walked instead,
// and as a last resort image references are scraped line by line.
func ParseBytes(ctx context.Context, data []byte) Result {
	order := serviceOrder(data)

	if res, ok := parseStructured(ctx, data, order); ok {
		if len(res.Images) == 0 {
			res.Images = scanImageLines(data)
		}
		return res
	}

	res := parseTree(data, order)
	if len(res.Images) == 0 {
		res.Images = scanImageLines(data)
	}
	return res
}

// parseStructured loads the document through the compose spec loader.
func parseStructured(ctx context.Context, data []byte, order []string) (Result, bool) {
	details := compose.ConfigDetails{
		ConfigFiles: []compose.ConfigFile{
			{Filename: "docker-compose.yml", Content: data},
		},
	}

	project, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName("vulnlab", false)
		o.SkipConsistencyCheck = true
	})
	if err != nil {
		slog.Debug("compose loader rejected manifest, using fallback", "err", err)
		return Result{}, false
	}

	res := Result{Ports: map[string]string{}}
	seen := map[string]bool{}
	for _, name := range orderedNames(order, project.Services) {
		svc, ok := project.Services[name]
		if !ok {
			continue
		}
		res.Services = append(res.Services, name)
		for _, p := range svc.Ports {
			if p.Published == "" {
				continue
			}
			res.Ports[name] = p.Published
			break
		}
		if svc.Image != "" && !seen[svc.Image] {
			seen[svc.Image] = true
			res.Images = append(res.Images, svc.Image)
		}
	}
	return res, true
}

// orderedNames returns declared service names in manifest order, appending
// any the raw-order pass missed (the loader can synthesize services from
// extends/includes).
func orderedNames(order []string, services compose.Services) []string {
	out := make([]string, 0, len(services))
	used := make(map[string]bool, len(services))
	for _, name := range order {
		if _, ok := services[name]; ok && !used[name] {
			used[name] = true
			out = append(out, name)
		}
	}
	rest := make([]string, 0, len(services))
	for name := range services {
		if !used[name] {
			rest = append(rest, name)
		}
	}
	// Stray names get a deterministic order.
	slices.Sort(rest)
	return append(out, rest...)
}

// serviceOrder extracts service names in declaration order from the raw
// YAML document. The compose model keys services by map, which loses the
// manifest's ordering.
func serviceOrder(data []byte) []string {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		return nil
	}
	services := mappingValue(doc.Content[0], "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return nil
	}

	var names []string
	for i := 0; i+1 < len(services.Content); i += 2 {
		if name := services.Content[i].Value; name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseTree walks the raw YAML tree when the compose loader gives up.
func parseTree(data []byte, order []string) Result {
	res := Result{Services: order, Ports: map[string]string{}}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		res.Services = nil
		return res
	}
	services := mappingValue(doc.Content[0], "services")
	if services == nil || services.Kind != yaml.MappingNode {
		res.Services = nil
		return res
	}

	seen := map[string]bool{}
	for i := 0; i+1 < len(services.Content); i += 2 {
		name, svc := services.Content[i].Value, services.Content[i+1]
		if svc.Kind != yaml.MappingNode {
			continue
		}

		if img := mappingValue(svc, "image"); img != nil && img.Value != "" && !seen[img.Value] {
			seen[img.Value] = true
			res.Images = append(res.Images, img.Value)
		}

		ports := mappingValue(svc, "ports")
		if ports == nil || ports.Kind != yaml.SequenceNode {
			continue
		}
		for _, entry := range ports.Content {
			if hp := hostPort(entry); hp != "" {
				res.Ports[name] = hp
				break
			}
		}
	}
	return res
}

// hostPort recovers the published host port from one ports entry, either
// the short string syntax or the long mapping syntax.
func hostPort(entry *yaml.Node) string {
	switch entry.Kind {
	case yaml.ScalarNode:
		return hostPortFromSpec(entry.Value)
	case yaml.MappingNode:
		if pub := mappingValue(entry, "published"); pub != nil && pub.Value != "" {
			return pub.Value
		}
	}
	return ""
}

// hostPortFromSpec applies the short-syntax rule: the second-to-last
// colon-delimited token is the host port. A bare numeric entry is kept as a
// best-effort host-port guess; anything unparseable is skipped.
func hostPortFromSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ""
	}

	if !strings.Contains(spec, ":") {
		bare := strings.SplitN(spec, "/", 2)[0]
		if _, err := strconv.Atoi(bare); err == nil {
			return bare
		}
		return ""
	}

	if mappings, err := nat.ParsePortSpec(spec); err == nil {
		for _, m := range mappings {
			if m.Binding.HostPort != "" {
				return m.Binding.HostPort
			}
		}
		return ""
	}

	// Spec the nat parser rejects: fall back to raw token slicing.
	parts := strings.Split(strings.SplitN(spec, "/", 2)[0], ":")
	if len(parts) < 2 {
		return ""
	}
	host := parts[len(parts)-2]
	if _, err := strconv.Atoi(host); err == nil {
		return host
	}
	return ""
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

var imageLine = regexp.MustCompile(`(?m)^\s*image\s*:\s*([^\s#]+)`)

// scanImageLines is the last-resort textual scan for image declarations.
func scanImageLines(data []byte) []string {
	var images []string
	seen := map[string]bool{}
	for _, m := range imageLine.FindAllSubmatch(data, -1) {
		img := strings.Trim(string(m[1]), `"'`)
		if img != "" && !seen[img] {
			seen[img] = true
			images = append(images, img)
		}
	}
	return images
}
