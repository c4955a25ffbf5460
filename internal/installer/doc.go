// Package installer turns a build configuration into installer input.
//
// [Translate] produces the declarative [Config] that the installer reads,
// and [PlanPostInstall] produces the follow-up work: extra packages,
// services to enable, and the system tweaks. Both are pure functions of
// the configuration. The post-install plan renders to a bash script in
// which every interpolated value is shell-quoted, so user-supplied fields
// such as the user name or dotfiles URL never reach the shell unquoted.
//
// Example usage:
//
//	cfg := installer.Translate(buildConfig)
//	data, err := cfg.Marshal()
//	if err != nil {
//	    return err
//	}
//	script := installer.PlanPostInstall(buildConfig).Script()
package installer
