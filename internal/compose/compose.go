package compose

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/uzulab/drydock/internal/docker"
	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
)

// DefaultFileName is where "render --compose" writes the projection.
const DefaultFileName = "docker-compose.drydock.yml"

// envPortValue is the serving port passed to variants that read it
// from the environment. Matches the fixed variants' default.
const envPortValue = 8000

// composeFile is the YAML document structure. The top-level name sets
// the Compose project name, which prefixes container, network and
// volume names.
type composeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	ContainerName string `yaml:"container_name"`

	Build composeBuild `yaml:"build"`

	// Ports lists "hostPort:containerPort" mappings. Present only for
	// variants with a fixed serving port.
	Ports []string `yaml:"ports,omitempty"`

	// Environment carries the serving port for variants that read it
	// at runtime.
	Environment map[string]string `yaml:"environment,omitempty"`

	Labels map[string]string `yaml:"labels"`
}

type composeBuild struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

// Generate renders the Compose projection for an application's variant
// set. Each variant becomes a service named after it, building from
// the variant's rendered Dockerfile in the context directory.
func Generate(app string, variants []model.Variant) ([]byte, error) {
	if app == "" {
		return nil, fmt.Errorf("application name is empty")
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("no variants to project")
	}

	file := composeFile{
		Name:     app,
		Services: make(map[string]composeService, len(variants)),
	}

	for _, variant := range variants {
		service := composeService{
			ContainerName: fmt.Sprintf("drydock-%s-%s", app, variant.Name),
			Build: composeBuild{
				Context:    ".",
				Dockerfile: dockerfile.FileName(variant.Name),
			},
			Labels: map[string]string{
				docker.LabelManagedBy: docker.ManagedByValue,
				docker.LabelApp:       app,
				docker.LabelVariant:   variant.Name,
			},
		}

		switch variant.Port.Kind {
		case model.PortFixed:
			service.Ports = []string{fmt.Sprintf("%d:%d", variant.Port.Number, variant.Port.Number)}
		case model.PortEnv:
			service.Environment = map[string]string{
				variant.Port.Env: strconv.Itoa(envPortValue),
			}
		}

		file.Services[variant.Name] = service
	}

	yamlBytes, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize compose projection: %w", err)
	}

	header := fmt.Sprintf(
		"# Generated by drydock render --compose for %q\n# DO NOT EDIT - this file is regenerated on each render\n",
		app,
	)
	return []byte(header + string(yamlBytes)), nil
}
