// Package build turns a system configuration into a bootable image.
//
// A build is a fixed pipeline of stages: preflight, asset-acquisition,
// environment-setup, configuration, post-install, image-assembly and
// teardown. Each stage reports progress as events tagged with its name and
// the first failure aborts the remaining stages. Teardown is the exception:
// once the environment stage has been entered, the build environment is
// destroyed on every exit path, and a teardown failure never replaces the
// error that stopped the build.
//
// Commands run inside the environment come from a [Toolchain], a fixed set
// of argument-vector templates. Host directories are bind-mounted into the
// environment so that the staged installer configuration goes in and the
// assembled image comes out without copying through the engine.
//
// A [Builder] runs one build at a time. A second concurrent build is
// rejected with [ErrBuildAlreadyInProgress].
//
// Example usage:
//
//	env, err := runtime.Open("docker", process.NewExec(0), "")
//	if err != nil {
//	    return err
//	}
//	b, err := build.New(env, asset.New(), build.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	for e := range b.Stream(ctx, cfg) {
//	    fmt.Println(e)
//	}
package build
