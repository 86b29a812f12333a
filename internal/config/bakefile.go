// Package config handles bakefile loading and validation for Kiln.
//
// A bakefile is the declarative build manifest: it names the base runtime
// image, the dependency manifest, the application source tree, the
// configuration file, and the entrypoint argv. The build engine consumes
// a validated Bakefile and nothing else.
package config

// Bakefile is the parsed build manifest.
type Bakefile struct {
	// Version is the bakefile format version. Only version 1 is supported.
	Version int `yaml:"version"`

	// Image describes the image being produced.
	Image ImageSection `yaml:"image"`

	// Base describes the base runtime image to build on.
	Base BaseSection `yaml:"base"`

	// Dependencies describes the dependency manifest and installer.
	Dependencies DepsSection `yaml:"dependencies"`

	// Workdir is the fixed working directory inside the image.
	// All copy steps and the entrypoint resolve relative to it.
	Workdir string `yaml:"workdir"`

	// Source is the application source tree copied into the workdir.
	Source CopySection `yaml:"source"`

	// Config is the runtime configuration file, placed at the workdir
	// top level next to the source tree so the application can find it
	// with a relative path.
	Config CopySection `yaml:"config"`

	// Entrypoint is the fixed argv launched when a container starts.
	// It cannot be overridden at run time.
	Entrypoint []string `yaml:"entrypoint"`

	// Env is added to the image config environment.
	Env map[string]string `yaml:"env,omitempty"`

	// Labels is added to the image config labels.
	Labels map[string]string `yaml:"labels,omitempty"`
}

// ImageSection names and tags the produced image.
type ImageSection struct {
	Name string `yaml:"name"`
	Tag  string `yaml:"tag,omitempty"`
}

// BaseSection pins the base runtime image.
// Exactly one of Tag or Constraint must be set: Tag pins an exact tag,
// Constraint is a semver range resolved against the registry's tag list.
type BaseSection struct {
	Ref        string          `yaml:"ref"`
	Tag        string          `yaml:"tag,omitempty"`
	Constraint string          `yaml:"constraint,omitempty"`
	Platform   PlatformSection `yaml:"platform,omitempty"`
}

// PlatformSection selects the target platform.
type PlatformSection struct {
	OS           string `yaml:"os,omitempty"`
	Architecture string `yaml:"architecture,omitempty"`
}

// DepsSection declares the dependency manifest and the installer tool.
type DepsSection struct {
	// Manifest is the path to the requirements file, relative to the
	// build context. Its absence is a fatal build error.
	Manifest string `yaml:"manifest"`

	// Installer is the package installer tool. Defaults to "pip".
	Installer string `yaml:"installer,omitempty"`

	// SkipUpgrade disables the installer self-upgrade that normally
	// runs before the manifest is installed.
	SkipUpgrade bool `yaml:"skip_upgrade,omitempty"`
}

// CopySection declares a path copied into the image.
type CopySection struct {
	// Path is relative to the build context.
	Path string `yaml:"path"`
}

// Reference returns the full tag reference of the produced image.
func (b *Bakefile) Reference() string {
	tag := b.Image.Tag
	if tag == "" {
		tag = DefaultImageTag
	}
	return b.Image.Name + ":" + tag
}

// BaseReference returns the base image reference with its exact tag.
// Callers must resolve a constraint to an exact tag first.
func (b *BaseSection) Reference() string {
	if b.Tag == "" {
		return b.Ref
	}
	return b.Ref + ":" + b.Tag
}

const (
	// DefaultWorkdir is used when the bakefile omits workdir.
	DefaultWorkdir = "/app"

	// DefaultInstaller is used when the bakefile omits the installer.
	DefaultInstaller = "pip"

	// DefaultImageTag is used when the bakefile omits the image tag.
	DefaultImageTag = "latest"
)
