package config

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Image names must be lowercase registry-style path components
var imageNamePattern = regexp.MustCompile(`^[a-z0-9]+(?:[._/-][a-z0-9]+)*$`)

// Validate performs structural validation of a bakefile.
// Returns an error describing all validation failures found.
func Validate(bf *Bakefile) error {
	var errors []string

	if bf.Version != 1 {
		errors = append(errors, fmt.Sprintf("unsupported bakefile version: %d", bf.Version))
	}

	if err := validateImage(bf.Image); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateBase(bf.Base); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateDependencies(bf.Dependencies); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateLayout(bf); err != nil {
		errors = append(errors, err.Error())
	}

	if len(bf.Entrypoint) == 0 {
		errors = append(errors, "entrypoint is required and must not be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("bakefile validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// validateImage validates the produced image name and tag.
func validateImage(img ImageSection) error {
	var errors []string

	if img.Name == "" {
		errors = append(errors, "image name is required")
	} else if !imageNamePattern.MatchString(img.Name) {
		errors = append(errors, fmt.Sprintf("image name %q is invalid (must be lowercase registry-style)", img.Name))
	}

	if len(errors) > 0 {
		return fmt.Errorf("image: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateBase validates the base image pin.
// A base must be pinned by exactly one of tag or constraint; floating
// bases make the build non-reproducible.
func validateBase(base BaseSection) error {
	var errors []string

	if base.Ref == "" {
		errors = append(errors, "base ref is required")
	}

	if base.Tag == "" && base.Constraint == "" {
		errors = append(errors, "base must pin a tag or a constraint")
	}

	if base.Tag != "" && base.Constraint != "" {
		errors = append(errors, "base tag and constraint are mutually exclusive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("base: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateDependencies validates the dependency manifest declaration.
// Presence of the manifest file itself is checked by the build engine,
// not here: validation is context-free.
func validateDependencies(deps DepsSection) error {
	var errors []string

	if deps.Manifest == "" {
		errors = append(errors, "dependency manifest path is required")
	} else if path.IsAbs(deps.Manifest) {
		errors = append(errors, fmt.Sprintf("dependency manifest %q must be relative to the build context", deps.Manifest))
	}

	if len(errors) > 0 {
		return fmt.Errorf("dependencies: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateLayout validates the workdir and copy declarations.
func validateLayout(bf *Bakefile) error {
	var errors []string

	if !path.IsAbs(bf.Workdir) {
		errors = append(errors, fmt.Sprintf("workdir %q must be an absolute path", bf.Workdir))
	}

	if bf.Source.Path == "" {
		errors = append(errors, "source path is required")
	} else if path.IsAbs(bf.Source.Path) {
		errors = append(errors, fmt.Sprintf("source path %q must be relative to the build context", bf.Source.Path))
	}

	if bf.Config.Path == "" {
		errors = append(errors, "config path is required")
	} else if path.IsAbs(bf.Config.Path) {
		errors = append(errors, fmt.Sprintf("config path %q must be relative to the build context", bf.Config.Path))
	}

	if len(errors) > 0 {
		return fmt.Errorf("layout: %s", strings.Join(errors, "; "))
	}

	return nil
}

// ValidateSchema validates raw bakefile YAML against the embedded JSON
// Schema. This is the second validation pass; it catches type errors the
// structural pass cannot express.
func ValidateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse bakefile YAML: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("bakefile.json", strings.NewReader(bakefileSchema)); err != nil {
		return fmt.Errorf("failed to add bakefile schema resource: %w", err)
	}

	schema, err := compiler.Compile("bakefile.json")
	if err != nil {
		return fmt.Errorf("failed to compile bakefile schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return formatSchemaValidationError(validationErr)
		}
		return fmt.Errorf("bakefile schema validation failed: %w", err)
	}

	return nil
}

// formatSchemaValidationError formats a JSON Schema validation error into a readable message.
func formatSchemaValidationError(err *jsonschema.ValidationError) error {
	var messages []string

	var collectErrors func(*jsonschema.ValidationError)
	collectErrors = func(e *jsonschema.ValidationError) {
		if e.Message != "" {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}

		for _, cause := range e.Causes {
			collectErrors(cause)
		}
	}

	collectErrors(err)

	if len(messages) == 0 {
		return fmt.Errorf("validation failed")
	}

	return fmt.Errorf("bakefile schema validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}
