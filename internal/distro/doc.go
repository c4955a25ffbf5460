// Package distro models the configuration of a custom distribution image.
//
// A [BuildConfiguration] is what the wizard collects: base-system drivers,
// the desktop environment or window manager, optional software, system
// settings and post-install tweaks. The package also holds the fixed
// catalogs the wizard offers and maps catalog ids to package names.
//
// Configurations are loaded from YAML or JSON. Loading checks the document
// against an embedded JSON schema, merges it over [Default], and then
// applies the semantic rules in [Validate].
//
// Example usage:
//
//	cfg, err := distro.Load("nextos.yaml")
//	if err != nil {
//	    return err
//	}
//	snapshot := cfg.Clone()
package distro
