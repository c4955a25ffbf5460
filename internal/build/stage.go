package build

import "slices"

// Stage names, in execution order.
const (
	StagePreflight        = "preflight"
	StageAssetAcquisition = "asset-acquisition"
	StageEnvironmentSetup = "environment-setup"
	StageConfiguration    = "configuration"
	StagePostInstall      = "post-install"
	StageImageAssembly    = "image-assembly"
	StageTeardown         = "teardown"
)

// Whether a stage may be skipped.
type Policy int

const (
	AlwaysRun       Policy = iota // Runs on every build.
	SkipIfSatisfied               // Skipped when its postcondition already holds.
)

// Returns "always-run" or "skip-if-satisfied".
func (p Policy) String() string {
	if p == SkipIfSatisfied {
		return "skip-if-satisfied"
	}
	return "always-run"
}

// One step of the build pipeline.
type Stage struct {
	Name    string // Stage name, carried by every event the stage emits.
	Ordinal int    // 1-based position in the pipeline.
	Policy  Policy // Whether the stage may be skipped.
	Kind    error  // Failure kind reported when the stage fails.
}

// The pipeline. Each failure aborts the remaining stages except teardown,
// which runs once the environment stage has been entered.
var stages = []Stage{
	{Name: StagePreflight, Ordinal: 1, Policy: AlwaysRun, Kind: ErrDependencyMissing},
	{Name: StageAssetAcquisition, Ordinal: 2, Policy: SkipIfSatisfied, Kind: ErrAsset},
	{Name: StageEnvironmentSetup, Ordinal: 3, Policy: AlwaysRun, Kind: ErrEnvironmentStart},
	{Name: StageConfiguration, Ordinal: 4, Policy: AlwaysRun, Kind: ErrConfiguration},
	{Name: StagePostInstall, Ordinal: 5, Policy: AlwaysRun, Kind: ErrPostInstall},
	{Name: StageImageAssembly, Ordinal: 6, Policy: AlwaysRun, Kind: ErrAssembly},
	{Name: StageTeardown, Ordinal: 7, Policy: AlwaysRun, Kind: ErrTeardown},
}

// Returns the pipeline stages in order.
func Stages() []Stage {
	return slices.Clone(stages)
}
